package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/synnergy-labs/many-execution-host/core"
)

func storageCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "storage"}
	cmd.AddCommand(storageMigrateCmd())
	cmd.AddCommand(storageRootHashCmd())
	return cmd
}

func storageRootHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roothash",
		Short: "print the authenticated root hash over the configured storage root",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			lg := newLogger(cfg)
			store, closeStore, err := openStore(cfg, lg)
			if err != nil {
				return err
			}
			defer closeStore()

			root, err := store.RootHash()
			if err != nil {
				return err
			}
			fmt.Printf("%x\n", root)
			return nil
		},
	}
}

func storageMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "run the v1-to-v2 hash-scheme migration against the configured storage root",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			lg := newLogger(cfg)
			store, closeStore, err := openStore(cfg, lg)
			if err != nil {
				return err
			}
			defer closeStore()

			for _, m := range core.Migrations() {
				lg.Infof("running migration %s: %s", m.Name, m.Description)
				if err := m.Initialize(store, core.MigrationExtra{"path": cfg.Storage.RootDir}); err != nil {
					return fmt.Errorf("migration %s: %w", m.Name, err)
				}
			}
			fmt.Println("migration complete")
			return nil
		},
	}
}
