package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jordanhubbard/codeopen-orchestrator/internal/keymanager"
)

// vault operations run directly against the encrypted store file rather
// than through the HTTP API: credential material never travels over the
// wire to this CLI, only to orchestratord itself when it unlocks its own
// copy at startup. Both this tool and orchestratord must point at the
// same store path to see the same keys.
func newVaultCommand() *cobra.Command {
	var storePath string
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "manage the local encrypted credential store",
	}
	cmd.PersistentFlags().StringVar(&storePath, "store", defaultVaultStorePath(), "path to the vault store file")
	cmd.AddCommand(newVaultInitCommand(&storePath))
	cmd.AddCommand(newVaultStoreCommand(&storePath))
	cmd.AddCommand(newVaultListCommand(&storePath))
	cmd.AddCommand(newVaultDeleteCommand(&storePath))
	return cmd
}

func defaultVaultStorePath() string {
	if p := os.Getenv("ORCHESTRATOR_VAULT_STORE_PATH"); p != "" {
		return p
	}
	return "vault.json"
}

func unlockVault(storePath string) (*keymanager.KeyManager, error) {
	km := keymanager.New(storePath)
	password := os.Getenv("ORCHESTRATOR_VAULT_PASSWORD")
	if password == "" {
		var err error
		password, err = readPassword("vault password: ")
		if err != nil {
			return nil, err
		}
	}
	if err := km.Unlock(password); err != nil {
		return nil, fmt.Errorf("unlocking vault: %w", err)
	}
	return km, nil
}

func newVaultInitCommand(storePath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "create or unlock the vault store, confirming the password works",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := unlockVault(*storePath)
			if err != nil {
				return err
			}
			fmt.Println("vault ready")
			return nil
		},
	}
}

func newVaultStoreCommand(storePath *string) *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "store <credential-id>",
		Short: "encrypt and store a credential, prompting for its value without echo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			km, err := unlockVault(*storePath)
			if err != nil {
				return err
			}
			value, err := readPassword("credential value: ")
			if err != nil {
				return err
			}
			if err := km.Store(args[0], name, description, value, nil); err != nil {
				return fmt.Errorf("storing credential: %w", err)
			}
			fmt.Printf("stored %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "human-readable name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	return cmd
}

func newVaultListCommand(storePath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list stored credential metadata, never values",
		RunE: func(cmd *cobra.Command, args []string) error {
			km, err := unlockVault(*storePath)
			if err != nil {
				return err
			}
			entries, err := km.List()
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%s\t%s\t%s\n", e.ID, e.Name, e.Description)
			}
			return nil
		},
	}
}

func newVaultDeleteCommand(storePath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <credential-id>",
		Short: "remove a stored credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			km, err := unlockVault(*storePath)
			if err != nil {
				return err
			}
			if err := km.Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}
}
