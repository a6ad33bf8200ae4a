package core

import (
	"encoding/hex"
	"errors"
)

// AddressSize is the wire width of a MANY-protocol address: 31 bytes of
// principal identifier plus a 1-byte subaddress tag.
const AddressSize = 32

// subaddressByte is the index of the byte distinguishing subaddresses of the
// same principal.
const subaddressByte = AddressSize - 1

// Address is an opaque MANY-protocol principal identifier. The zero value is
// not a valid address on its own; use AddressAnonymous for the anonymous
// sentinel.
type Address [AddressSize]byte

// AddressAnonymous is the distinguished "no identity" address used by the
// anonymous identity and verifier.
var AddressAnonymous = Address{}

// IsAnonymous reports whether a is the anonymous sentinel address.
func (a Address) IsAnonymous() bool {
	return a == AddressAnonymous
}

// Matches reports whether a and b refer to the same principal, ignoring the
// trailing subaddress byte. Two addresses with different principal bytes
// never match, even if one of them is anonymous.
func (a Address) Matches(b Address) bool {
	return [subaddressByte]byte(a[:subaddressByte]) == [subaddressByte]byte(b[:subaddressByte])
}

// Subaddress returns a derived address sharing a's principal bytes but
// carrying the given subaddress tag.
func (a Address) Subaddress(tag byte) Address {
	out := a
	out[subaddressByte] = tag
	return out
}

// Bytes returns a copy of the address's raw bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressSize)
	copy(out, a[:])
	return out
}

// String renders the address as a lower-case hex string.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// ParseAddress decodes a hex-encoded address string.
func ParseAddress(s string) (Address, error) {
	var a Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, err
	}
	if len(b) != AddressSize {
		return a, errors.New("address: wrong length")
	}
	copy(a[:], b)
	return a, nil
}

// AddressFromBytes copies a byte slice into an Address, failing if the
// length does not match AddressSize.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressSize {
		return a, errors.New("address: wrong length")
	}
	copy(a[:], b)
	return a, nil
}
