package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/secvault/internal/config"
)

func NewResolveCommand(cfg *config.Config) *cobra.Command {
	var alias bool

	cmd := &cobra.Command{
		Use:   "resolve <text>",
		Short: "Substitute $secret{alias} tokens in text",
		Long: `Initialize the vault and print text with every protected
$secret{alias} token replaced by its decrypted value. Text without tokens
is treated as an alias itself.

Examples:
  secvault resolve 'jdbc://$secret{db.user}@db:5432'
  secvault resolve --alias vault:hashicorp:dbPassword`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vault, err := openVault(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer vault.Shutdown()

			if alias {
				value, err := vault.ResolveSecret(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), value)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), vault.Resolve(args[0]))
			return nil
		},
	}

	cmd.Flags().BoolVar(&alias, "alias", false, "Treat the argument as a bare or qualified alias")
	return cmd
}
