package core

import "testing"

func TestAddressMatchesIgnoresSubaddress(t *testing.T) {
	var a, b Address
	a[0] = 0xaa
	b[0] = 0xaa
	a[subaddressByte] = 1
	b[subaddressByte] = 2
	if !a.Matches(b) {
		t.Fatal("expected addresses with the same principal to match")
	}
}

func TestAddressMatchesRejectsDifferentPrincipal(t *testing.T) {
	var a, b Address
	a[0] = 0xaa
	b[0] = 0xbb
	if a.Matches(b) {
		t.Fatal("expected addresses with different principals to not match")
	}
}

func TestSubaddressPreservesPrincipal(t *testing.T) {
	var a Address
	a[0] = 0x42
	sub := a.Subaddress(7)
	if !a.Matches(sub) {
		t.Fatal("subaddress should match its parent principal")
	}
	if sub[subaddressByte] != 7 {
		t.Fatalf("expected subaddress tag 7, got %d", sub[subaddressByte])
	}
}

func TestParseAddressRoundTrip(t *testing.T) {
	var a Address
	for i := range a {
		a[i] = byte(i)
	}
	s := a.String()
	got, err := ParseAddress(s)
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if got != a {
		t.Fatalf("round trip mismatch: got %s want %s", got, a)
	}
}

func TestParseAddressRejectsWrongLength(t *testing.T) {
	if _, err := ParseAddress("aabb"); err == nil {
		t.Fatal("expected error for short address")
	}
}

func TestAddressAnonymousIsAnonymous(t *testing.T) {
	if !AddressAnonymous.IsAnonymous() {
		t.Fatal("zero address should be anonymous")
	}
	var nonzero Address
	nonzero[0] = 1
	if nonzero.IsAnonymous() {
		t.Fatal("non-zero address should not be anonymous")
	}
}
