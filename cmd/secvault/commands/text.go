package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/secvault/internal/config"
)

func NewEncryptTextCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt-text <plaintext>",
		Short: "Encrypt a value and print its base64 ciphertext",
		Long: `Encrypt a single value with the primary repository's keystore.

The output can be pasted into a secrets file as "cipherText <output>".

Examples:
  secvault encrypt-text 'admin123'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openPrimary(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			out, err := repo.Encrypt([]byte(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func NewDecryptTextCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt-text <ciphertext>",
		Short: "Decrypt a base64 ciphertext and print the value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openPrimary(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			out, err := repo.Decrypt([]byte(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
