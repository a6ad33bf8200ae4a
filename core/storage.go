// core/storage.go
package core

// Merkle-backed key-value storage with write-back references. A single
// mutex guards the index with short critical sections, backed by a real
// ordered key-value store (github.com/cometbft/cometbft-db) and producing
// an authenticated root hash over its contents via RootHashForEntries.

import (
	"fmt"
	"sync"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/fxamacker/cbor/v2"
	logrus "github.com/sirupsen/logrus"
)

// StorageVersion tags which on-disk format a MerkleStore's InnerStorage
// currently uses.
type StorageVersion int

const (
	StorageV1 StorageVersion = iota
	StorageV2
)

// InnerStorage is the tagged variant the migration engine swaps out from
// under a live MerkleStore: V1 and V2 both speak dbm.DB, but the migration
// controls which backend/layout is actually open.
type InnerStorage struct {
	Version StorageVersion
	DB      dbm.DB
}

// MerkleStore is a shared Merkle key-value database protected by a
// read/write lock: many readers, one writer, writers block readers. It is
// the concrete backing for StorageRef[T].
type MerkleStore struct {
	mu     sync.RWMutex
	inner  *InnerStorage
	logger *logrus.Logger
}

// NewMerkleStore wires a MerkleStore around an already-open InnerStorage.
func NewMerkleStore(inner *InnerStorage, lg *logrus.Logger) *MerkleStore {
	if lg == nil {
		lg = logrus.New()
	}
	return &MerkleStore{inner: inner, logger: lg}
}

// SwapInner atomically replaces the live InnerStorage, used by the
// migration engine's reopen step. The old storage is returned so the
// caller can close it.
func (m *MerkleStore) SwapInner(next *InnerStorage) *InnerStorage {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.inner
	m.inner = next
	return old
}

func (m *MerkleStore) get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inner.DB.Get(key)
}

func (m *MerkleStore) put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := m.inner.DB.NewBatch()
	defer batch.Close()
	if err := batch.Set(key, value); err != nil {
		return err
	}
	return batch.WriteSync()
}

// RootHash computes the authenticated root hash over the store's entire
// contents by iterating every key/value pair. Intended for tests and
// operator diagnostics, not the per-call hot path.
func (m *MerkleStore) RootHash() ([32]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	it, err := m.inner.DB.Iterator(nil, nil)
	if err != nil {
		return [32]byte{}, fmt.Errorf("%w: %v", ErrStorageIO, err)
	}
	defer it.Close()

	var entries []KVEntry
	for ; it.Valid(); it.Next() {
		entries = append(entries, KVEntry{
			Key:   append([]byte(nil), it.Key()...),
			Value: append([]byte(nil), it.Value()...),
		})
	}
	return RootHashForEntries(entries), nil
}

// StorageRef is a scoped write-back handle over a single key's decoded
// value. On Release, if the handle is dirty, T is re-encoded with the
// canonical CBOR binary encoding and flushed to the store in a single Put.
// Go has no destructors, so callers MUST defer ref.Release() immediately
// after obtaining a ref — this is the "explicit commit/drop idiom" the
// design notes call for.
type StorageRef[T any] struct {
	store    *MerkleStore
	key      []byte
	dirty    bool
	value    T
	released bool
}

// Load fetches key, decodes it as T, and returns a non-dirty StorageRef. It
// returns (nil, nil) if the key is absent.
func Load[T any](store *MerkleStore, key []byte) (*StorageRef[T], error) {
	raw, err := store.get(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageIO, err)
	}
	if raw == nil {
		return nil, nil
	}
	var v T
	if err := cbor.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	return &StorageRef[T]{store: store, key: key, value: v}, nil
}

// Create constructs a StorageRef already marked dirty, so that Release
// flushes the initial value even if the caller never mutates it.
func Create[T any](store *MerkleStore, key []byte, initial T) *StorageRef[T] {
	return &StorageRef[T]{store: store, key: key, value: initial, dirty: true}
}

// Get returns a read-only copy of the current value. It never raises the
// dirty flag.
func (r *StorageRef[T]) Get() T {
	return r.value
}

// Mutate applies fn to the in-memory value and marks the handle dirty.
func (r *StorageRef[T]) Mutate(fn func(*T)) {
	fn(&r.value)
	r.dirty = true
}

// Release flushes the value back to the store if dirty, on every exit path
// including failure. Flush errors are swallowed — write-back is
// best-effort; callers needing confirmation should call Commit instead.
// Calling Release more than once is a no-op.
func (r *StorageRef[T]) Release() {
	if r.released {
		return
	}
	r.released = true
	if !r.dirty {
		return
	}
	if err := r.flush(); err != nil {
		r.store.logger.WithError(err).WithField("key", string(r.key)).Warn("storage: write-back flush failed")
	}
}

// Commit flushes the value back to the store immediately if dirty and
// returns any error, for callers that need a confirmed write rather than
// best-effort write-back. It does not mark the ref released.
func (r *StorageRef[T]) Commit() error {
	if !r.dirty {
		return nil
	}
	return r.flush()
}

func (r *StorageRef[T]) flush() error {
	encoded, err := cbor.Marshal(r.value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	if err := r.store.put(r.key, encoded); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageIO, err)
	}
	r.dirty = false
	return nil
}

// moduleInfoKey computes the "module_info/" ++ address.bytes key layout.
func moduleInfoKey(addr Address) []byte {
	prefix := []byte("module_info/")
	key := make([]byte, 0, len(prefix)+AddressSize)
	key = append(key, prefix...)
	key = append(key, addr.Bytes()...)
	return key
}

// ModuleInfo is the persisted per-contract record described in spec §3.
type ModuleInfo struct {
	Version     uint64  `cbor:"1,keyasint"`
	Address     Address `cbor:"2,keyasint"`
	ModulePath  string  `cbor:"3,keyasint"`
	MemoryPath  string  `cbor:"4,keyasint"`
}

// LoadModuleInfo loads the ModuleInfo for addr, if any.
func LoadModuleInfo(store *MerkleStore, addr Address) (*StorageRef[ModuleInfo], error) {
	return Load[ModuleInfo](store, moduleInfoKey(addr))
}

// CreateModuleInfo constructs a dirty StorageRef for a brand-new
// ModuleInfo, to be flushed on Release.
func CreateModuleInfo(store *MerkleStore, info ModuleInfo) *StorageRef[ModuleInfo] {
	return Create(store, moduleInfoKey(info.Address), info)
}

// ListModuleAddresses iterates the "module_info/" namespace and returns
// every installed contract address.
func ListModuleAddresses(store *MerkleStore) ([]Address, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	prefix := []byte("module_info/")
	it, err := store.inner.DB.Iterator(prefix, prefixUpperBound(prefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageIO, err)
	}
	defer it.Close()

	var out []Address
	for ; it.Valid(); it.Next() {
		k := it.Key()
		if len(k) != len(prefix)+AddressSize {
			continue
		}
		addr, err := AddressFromBytes(k[len(prefix):])
		if err != nil {
			continue
		}
		out = append(out, addr)
	}
	return out, nil
}

// prefixUpperBound returns the smallest key that is strictly greater than
// every key sharing prefix, for use as an iterator's exclusive end bound.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xff bytes; no finite upper bound
}
