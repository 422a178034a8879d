package commands

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/systmms/secvault/internal/config"
	"github.com/systmms/secvault/internal/logging"
	"github.com/systmms/secvault/internal/sysprop"
)

// EnvPrefix prefixes environment variables that override global flags,
// e.g. SECVAULT_CONFIG or SECVAULT_NO_COLOR.
const EnvPrefix = "SECVAULT"

// NewRootCommand builds the secvault command tree.
func NewRootCommand(version string) *cobra.Command {
	var defines []string

	cfg := &config.Config{Properties: sysprop.New()}
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "secvault",
		Short: "Encrypt secrets and resolve secret aliases",
		Long: `secvault encrypts secrets with a keystore and resolves the aliases
that configuration files use to refer to them.

Secrets live in a properties file as "plainText <value>" or
"cipherText <base64>" entries. Master keys protecting the keystore are
read from -D properties, environment variables or a master-keys file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg.Path = v.GetString("config")
			cfg.Logger = logging.NewWithWriter(cmd.ErrOrStderr(), v.GetBool("debug"), v.GetBool("no-color"))
			if err := cfg.Properties.ParseAssignments(defines); err != nil {
				return err
			}
			if cfg.Logger.DebugEnabled() {
				for _, name := range cfg.Properties.Names() {
					value, _ := cfg.Properties.Get(name)
					cfg.Logger.Debug("Property %s=%s", name, logging.Secret(value))
				}
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "securevault.yaml", "Config file path")
	flags.Bool("no-color", false, "Disable colored output")
	flags.Bool("debug", false, "Enable debug logging")
	flags.StringArrayVarP(&defines, "define", "D", nil, "Set a property (name=value); repeatable")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlag("config", flags.Lookup("config"))
	_ = v.BindPFlag("no-color", flags.Lookup("no-color"))
	_ = v.BindPFlag("debug", flags.Lookup("debug"))

	rootCmd.AddCommand(
		NewEncryptSecretsCommand(cfg),
		NewEncryptTextCommand(cfg),
		NewDecryptTextCommand(cfg),
		NewResolveCommand(cfg),
	)
	for _, sub := range rootCmd.Commands() {
		run := sub.RunE
		sub.RunE = func(cmd *cobra.Command, args []string) error {
			return userError(run(cmd, args), cfg.Properties)
		}
	}
	return rootCmd
}
