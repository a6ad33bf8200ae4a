package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/synnergy-labs/many-execution-host/core"
	"github.com/synnergy-labs/many-execution-host/pkg/config"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the boot sequence (add_module_config, init) and, if admin is enabled, serve the debug surface",
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

			library := core.NewModuleLibrary()
			host := core.NewWasmHost(store, library, cfg.Wasm.ModuleDir, lg)

			bootEntries, initEntries, err := resolveModuleConfig(cfg)
			if err != nil {
				return err
			}
			lg.Infof("serve: add_module_config over %d module(s)", len(bootEntries))
			if err := host.AddModuleConfig(bootEntries); err != nil {
				return fmt.Errorf("add_module_config: %w", err)
			}
			lg.Infof("serve: init over %d module(s)", len(initEntries))
			if err := host.Init(initEntries); err != nil {
				return fmt.Errorf("init: %w", err)
			}

			if !cfg.Admin.Enabled {
				lg.Info("serve: boot sequence complete, admin surface disabled, exiting")
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := host.DebugServer(cfg.Admin.ListenAddr)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			lg.Infof("serve: admin surface listening on %s", cfg.Admin.ListenAddr)

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithCancel(context.Background())
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			case err := <-errCh:
				if err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			}
		},
	}
}

// resolveModuleConfig parses cfg.Modules into the core package's boot-entry
// types, splitting out the subset that also requests an init call.
func resolveModuleConfig(cfg *config.Config) ([]core.ModuleBootEntry, []core.InitBootEntry, error) {
	var bootEntries []core.ModuleBootEntry
	var initEntries []core.InitBootEntry
	for _, m := range cfg.Modules {
		addr, err := core.ParseAddress(m.Address)
		if err != nil {
			return nil, nil, fmt.Errorf("module %s: %w", m.Name, err)
		}
		bootEntries = append(bootEntries, core.ModuleBootEntry{Address: addr, Name: m.Name, ModulePath: m.ModulePath})
		if m.InitHex != "" {
			payload, err := hex.DecodeString(m.InitHex)
			if err != nil {
				return nil, nil, fmt.Errorf("module %s: decode init_hex: %w", m.Name, err)
			}
			initEntries = append(initEntries, core.InitBootEntry{Address: addr, Payload: payload})
		}
	}
	return bootEntries, initEntries, nil
}
