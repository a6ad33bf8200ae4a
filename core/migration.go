package core

// Storage migration engine: registered, named format migrations, run as an
// ordered on-disk state machine using os.MkdirAll, os.Rename and
// os.RemoveAll over whole directories.

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	dbm "github.com/cometbft/cometbft-db"
)

// MigrationExtra carries free-form JSON-ish parameters to a migration's
// Initialize call, keyed by name.
type MigrationExtra map[string]any

// Migration is a registered, named format migration for a MerkleStore.
type Migration struct {
	Name        string
	Description string
	Initialize  func(store *MerkleStore, extra MigrationExtra) error
}

var (
	registryMu sync.Mutex
	registry   []Migration
)

// RegisterMigration appends m to the global, deterministically ordered
// migration registry. Call from an init() func or explicitly at startup;
// the registry preserves registration order.
func RegisterMigration(m Migration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, m)
}

// Migrations returns a snapshot of the registered migrations in
// registration order.
func Migrations() []Migration {
	registryMu.Lock()
	defer registryMu.Unlock()
	out := make([]Migration, len(registry))
	copy(out, registry)
	return out
}

func init() {
	RegisterMigration(Migration{
		Name:        "hash-scheme-v1-to-v2",
		Description: "rewrites the on-disk key layout from the v1 hash scheme to v2, preserving all key/value pairs",
		Initialize:  RunHashSchemeMigration,
	})
}

// ledgerDBName is the fixed dbm.DB name used for both the V1 and V2
// layouts: cometbft-db opens "<dir>/<name>.db", so every store this
// migration touches (live, staged, reopened) resolves to "<parent>/ledger.db".
const ledgerDBName = "ledger"

// RunHashSchemeMigration is the canonical V1 -> V2 migration: a five-step
// on-disk state machine (quiesce, copy, swap, reopen, cleanup) operating on
// a MerkleStore whose InnerStorage currently points at a V1-format
// directory.
//
// extra["path"] names the parent directory containing ledger.db, not the
// ledger.db directory itself.
//
// Crash semantics: failure before the first rename leaves the original
// directory untouched and an orphan temp directory (safe to delete
// manually); failure after the second rename leaves the migrated data
// authoritative but the migration may re-run on next boot if the
// activation flag was not yet cleared. The swap is two renames, not one
// atomic exchange: a crash between them leaves the original data at
// "<path>/ledger.db.migrating-old" and nothing at "<path>/ledger.db".
func RunHashSchemeMigration(store *MerkleStore, extra MigrationExtra) error {
	store.mu.Lock()
	if store.inner.Version == StorageV2 {
		store.mu.Unlock()
		return nil // already migrated; no-op per idempotence requirement
	}
	parent, _ := extra["path"].(string)
	store.mu.Unlock()

	if parent == "" {
		return fmt.Errorf("%w: migration requires extra[\"path\"]", ErrStorageIO)
	}
	originalPath := filepath.Join(parent, ledgerDBName+".db")

	lg := store.logger

	// Step 1: Quiesce — replace the live storage with an ephemeral V1 store
	// in a fresh temp directory, releasing file handles on the original.
	tmpDir, err := os.MkdirTemp(parent, "migrate-v1-v2-*")
	if err != nil {
		return fmt.Errorf("%w: quiesce mkdtemp: %v", ErrStorageIO, err)
	}
	ephemeral, err := dbm.NewDB("ephemeral", dbm.GoLevelDBBackend, tmpDir)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return fmt.Errorf("%w: quiesce open ephemeral: %v", ErrStorageIO, err)
	}
	old := store.SwapInner(&InnerStorage{Version: StorageV1, DB: ephemeral})
	if old != nil && old.DB != nil {
		_ = old.DB.Close()
	}
	lg.Infof("migration: quiesced %s, released original handles", originalPath)

	// Step 2: Copy — open the original directory read-only (as far as the
	// backend allows), open a fresh V2 store, and copy every pair.
	v1, err := dbm.NewDB(ledgerDBName, dbm.GoLevelDBBackend, parent)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return fmt.Errorf("%w: open original v1: %v", ErrStorageIO, err)
	}
	newLedgerDir := filepath.Join(tmpDir, ledgerDBName+".db")
	v2, err := dbm.NewDB(ledgerDBName, dbm.GoLevelDBBackend, tmpDir)
	if err != nil {
		_ = v1.Close()
		_ = os.RemoveAll(tmpDir)
		return fmt.Errorf("%w: open fresh v2: %v", ErrStorageIO, err)
	}

	it, err := v1.Iterator(nil, nil)
	if err != nil {
		_ = v1.Close()
		_ = v2.Close()
		_ = os.RemoveAll(tmpDir)
		return fmt.Errorf("%w: iterate v1: %v", ErrStorageIO, err)
	}
	batch := v2.NewBatch()
	copied := 0
	for ; it.Valid(); it.Next() {
		if err := batch.Set(append([]byte(nil), it.Key()...), append([]byte(nil), it.Value()...)); err != nil {
			it.Close()
			batch.Close()
			_ = v1.Close()
			_ = v2.Close()
			_ = os.RemoveAll(tmpDir)
			return fmt.Errorf("%w: stage copy: %v", ErrStorageIO, err)
		}
		copied++
	}
	it.Close()
	if err := batch.WriteSync(); err != nil {
		batch.Close()
		_ = v1.Close()
		_ = v2.Close()
		_ = os.RemoveAll(tmpDir)
		return fmt.Errorf("%w: commit copy: %v", ErrStorageIO, err)
	}
	batch.Close()
	_ = v1.Close()
	_ = v2.Close()
	lg.Infof("migration: copied %d entries from v1 to v2 staging dir", copied)

	// Step 3: Swap — rename the original directory aside, then rename the
	// staged V2 directory into its place. The two renames are separate
	// steps, not one atomic exchange. After the second, V2 is authoritative.
	swapTmp := originalPath + ".migrating-old"
	if err := os.Rename(originalPath, swapTmp); err != nil {
		_ = os.RemoveAll(tmpDir)
		return fmt.Errorf("%w: swap out original: %v", ErrStorageIO, err)
	}
	if err := os.Rename(newLedgerDir, originalPath); err != nil {
		// best effort to restore the original so the operator isn't stuck
		_ = os.Rename(swapTmp, originalPath)
		_ = os.RemoveAll(tmpDir)
		return fmt.Errorf("%w: swap in v2: %v", ErrStorageIO, err)
	}
	_ = os.RemoveAll(swapTmp)
	lg.Infof("migration: swapped %s to v2 layout", originalPath)

	// Step 4: Reopen — open the now-V2 original path and install it live.
	reopened, err := dbm.NewDB(ledgerDBName, dbm.GoLevelDBBackend, parent)
	if err != nil {
		return fmt.Errorf("%w: reopen v2: %v", ErrStorageIO, err)
	}
	prior := store.SwapInner(&InnerStorage{Version: StorageV2, DB: reopened})
	if prior != nil && prior.DB != nil {
		_ = prior.DB.Close()
	}

	// Step 5: Cleanup — recursively remove the temporary directory.
	if err := os.RemoveAll(tmpDir); err != nil {
		lg.WithError(err).Warn("migration: cleanup of temp dir failed; safe to remove manually")
	}
	lg.Infof("migration: %s complete", originalPath)
	return nil
}
