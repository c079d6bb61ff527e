package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCredentialsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "manage which LLM provider projects use",
	}
	cmd.AddCommand(newCredentialsSyncCommand())
	cmd.AddCommand(newCredentialsSetCommand())
	return cmd
}

func newCredentialsSyncCommand() *cobra.Command {
	var providerID string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "rotate every running project onto a provider and restart its container",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := newClient().post("/api/v1/credentials/sync", map[string]string{"llm_provider_id": providerID})
			if err != nil {
				return err
			}
			printJSON(data)
			return nil
		},
	}
	cmd.Flags().StringVar(&providerID, "provider", "", "LLM provider id to roll out (required)")
	cmd.MarkFlagRequired("provider")
	return cmd
}

func newCredentialsSetCommand() *cobra.Command {
	var providerID string
	cmd := &cobra.Command{
		Use:   "set <project-id>",
		Short: "switch a single project onto a different provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := newClient().put(fmt.Sprintf("/api/v1/projects/%s/credentials", args[0]), map[string]string{"llm_provider_id": providerID})
			if err != nil {
				return err
			}
			printJSON(data)
			return nil
		},
	}
	cmd.Flags().StringVar(&providerID, "provider", "", "LLM provider id (required)")
	cmd.MarkFlagRequired("provider")
	return cmd
}
