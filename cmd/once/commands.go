package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tendant/once/pkg/once/client"
)

// NewShareCommand creates the share command
func NewShareCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share <file>",
		Short: "Upload a file and print its one-time link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filePath := args[0]
			verbose, _ := cmd.Flags().GetBool("verbose")
			configFile, _ := cmd.Flags().GetString("config")

			cfg, err := LoadClientConfig(configFile)
			if err != nil {
				return err
			}
			secret, err := cfg.Secret()
			if err != nil {
				return err
			}

			file, err := os.Open(filePath)
			if err != nil {
				return fmt.Errorf("failed to open file: %w", err)
			}
			defer file.Close()

			c, err := client.New(cfg.BaseURL, secret, client.WithSignatureHeader(cfg.SignatureHeader))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if verbose {
				fmt.Fprintf(out, "GET %s\n", cfg.BaseURL)
			}

			result, err := c.Share(cmd.Context(), filePath, file)
			if err != nil {
				return fmt.Errorf("share failed: %w", err)
			}

			if verbose {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "    ")
				if err := enc.Encode(result.Ticket); err != nil {
					return err
				}
			}

			fmt.Fprintf(out, "File uploaded in %s\n", result.UploadDuration)
			fmt.Fprintf(out, "File can be downloaded once at: %s\n", result.Ticket.DownloadURL)
			return nil
		},
	}

	return cmd
}
