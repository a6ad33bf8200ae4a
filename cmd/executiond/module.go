package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/synnergy-labs/many-execution-host/core"
)

func moduleCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "module"}
	cmd.AddCommand(moduleInstallCmd())
	cmd.AddCommand(moduleListCmd())
	cmd.AddCommand(moduleCallCmd())
	return cmd
}

func bootstrap() (*core.MerkleStore, func(), *core.ModuleLibrary, *core.WasmHost, *core.ExecutionFacade, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	lg := newLogger(cfg)
	store, closeStore, err := openStore(cfg, lg)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	library := core.NewModuleLibrary()
	host := core.NewWasmHost(store, library, cfg.Wasm.ModuleDir, lg)
	facade := core.NewExecutionFacade(store, library, host, cfg.Wasm.ModuleDir)
	return store, closeStore, library, host, facade, nil
}

func moduleInstallCmd() *cobra.Command {
	var name, initHex string
	c := &cobra.Command{
		Use:   "install [wasm-file]",
		Short: "install a compiled WASM module, running its init export when --init is given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, closeStore, _, _, facade, err := bootstrap()
			if err != nil {
				return err
			}
			defer closeStore()

			wasmBytes, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			addr, err := facade.Create()
			if err != nil {
				return err
			}
			var initPayload []byte
			if initHex != "" {
				initPayload, err = hex.DecodeString(initHex)
				if err != nil {
					return fmt.Errorf("decode init payload: %w", err)
				}
			}
			if err := facade.Install(addr, name, wasmBytes, initPayload); err != nil {
				return err
			}
			fmt.Println(addr)
			return nil
		},
	}
	c.Flags().StringVar(&name, "name", "", "module name")
	c.Flags().StringVar(&initHex, "init", "", "hex-encoded init payload")
	return c
}

func moduleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list installed modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, closeStore, _, _, facade, err := bootstrap()
			if err != nil {
				return err
			}
			defer closeStore()

			summaries, err := facade.List()
			if err != nil {
				return err
			}
			for _, s := range summaries {
				fmt.Printf("%s\t%s\tv%d\t%v\n", s.Address, s.Name, s.Version, s.Endpoints)
			}
			return nil
		},
	}
}

func moduleCallCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "call [endpoint] [request-hex]",
		Short: "invoke an installed endpoint with a hex-encoded MANY request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, closeStore, _, host, _, err := bootstrap()
			if err != nil {
				return err
			}
			defer closeStore()

			req, err := hex.DecodeString(args[1])
			if err != nil {
				return fmt.Errorf("decode request: %w", err)
			}
			resp, err := host.CallEndpoint(args[0], req)
			if err != nil {
				return err
			}
			fmt.Println(hex.EncodeToString(resp))
			return nil
		},
	}
	return c
}
