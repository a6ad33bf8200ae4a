// Command executiond runs and administers a MANY-protocol execution host.
// A bare root command with grouped subcommands, each leaf wired to real
// logic instead of a mock print statement.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	logrus "github.com/sirupsen/logrus"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/synnergy-labs/many-execution-host/core"
	"github.com/synnergy-labs/many-execution-host/pkg/config"
)

func main() {
	rootCmd := &cobra.Command{Use: "executiond"}
	rootCmd.AddCommand(identityCmd())
	rootCmd.AddCommand(moduleCmd())
	rootCmd.AddCommand(storageCmd())
	rootCmd.AddCommand(serveCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *logrus.Logger {
	lg := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		lg.SetLevel(lvl)
	}
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err == nil {
			lg.SetOutput(f)
		}
	}
	return lg
}

// openStore opens the ledger directory named by cfg.Storage.RootDir.
// Backend here means on-disk key layout (v1/v2), not the storage engine:
// both layouts are served by the same pure-Go goleveldb-backed dbm.DB
// (no cgo, no librocksdb), matching the migration engine's assumption that
// only the key scheme changes underfoot.
func openStore(cfg *config.Config, lg *logrus.Logger) (*core.MerkleStore, func(), error) {
	db, err := dbm.NewDB("ledger", dbm.GoLevelDBBackend, cfg.Storage.RootDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}
	version := core.StorageV1
	if cfg.Storage.Backend == "v2" {
		version = core.StorageV2
	}
	store := core.NewMerkleStore(&core.InnerStorage{Version: version, DB: db}, lg)
	return store, func() { _ = db.Close() }, nil
}

func loadConfig() (*config.Config, error) {
	return config.LoadFromEnv()
}
