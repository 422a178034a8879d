package commands

import (
	"github.com/spf13/cobra"

	"github.com/systmms/secvault/internal/config"
)

func NewEncryptSecretsCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt-secrets",
		Short: "Encrypt every plainText entry in the secrets file",
		Long: `Rewrite the primary repository's secrets file, replacing each
"plainText <value>" entry with "cipherText <base64>". Entries that are
already encrypted are left untouched and are not decrypted, so a keystore
holding only a trusted certificate is enough. The file is replaced
atomically, so a failure leaves it as it was.

Examples:
  secvault encrypt-secrets --config conf/securevault.yaml
  secvault encrypt-secrets -D keyStorePassword=wso2carbon`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openPrimary(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return repo.PersistSecrets(repo.section)
		},
	}
}
