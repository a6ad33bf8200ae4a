package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/synnergy-labs/many-execution-host/core"
)

func identityCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "identity"}
	cmd.AddCommand(identityKeygenCmd())
	cmd.AddCommand(identityAddressCmd())
	return cmd
}

func identityKeygenCmd() *cobra.Command {
	var account, index int
	c := &cobra.Command{
		Use:   "keygen",
		Short: "generate a fresh BIP-39 mnemonic and print its Ed25519 identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			wallet, mnemonic, err := core.NewRandomWallet(256, nil)
			if err != nil {
				return err
			}
			id, err := wallet.Identity(uint32(account), uint32(index))
			if err != nil {
				return err
			}
			fmt.Printf("mnemonic: %s\n", mnemonic)
			fmt.Printf("address:  %s\n", id.Address())
			return nil
		},
	}
	c.Flags().IntVar(&account, "account", 0, "hardened account index")
	c.Flags().IntVar(&index, "index", 0, "hardened key index")
	return c
}

func identityAddressCmd() *cobra.Command {
	var account, index int
	var passphrase string
	c := &cobra.Command{
		Use:   "address [mnemonic]",
		Short: "derive the address for an existing mnemonic at account/index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wallet, err := core.WalletFromMnemonic(args[0], passphrase, nil)
			if err != nil {
				return err
			}
			id, err := wallet.Identity(uint32(account), uint32(index))
			if err != nil {
				return err
			}
			fmt.Println(id.Address())
			return nil
		},
	}
	c.Flags().IntVar(&account, "account", 0, "hardened account index")
	c.Flags().IntVar(&index, "index", 0, "hardened key index")
	c.Flags().StringVar(&passphrase, "passphrase", "", "BIP-39 passphrase")
	return c
}
