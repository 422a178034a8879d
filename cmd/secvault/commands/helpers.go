package commands

import (
	"context"

	"github.com/systmms/secvault/internal/config"
	dserrors "github.com/systmms/secvault/internal/errors"
	"github.com/systmms/secvault/internal/masterkey"
	"github.com/systmms/secvault/internal/repository"
	"github.com/systmms/secvault/internal/securevault"
)

// openVault loads the configuration and initializes a vault from it.
func openVault(ctx context.Context, cfg *config.Config) (*securevault.Vault, error) {
	if err := cfg.Load(); err != nil {
		return nil, err
	}
	vault := securevault.New(securevault.Options{
		Logger:     cfg.Logger,
		Properties: cfg.Properties,
	})
	if err := vault.InitWithConfig(ctx, cfg.Definition); err != nil {
		return nil, err
	}
	return vault, nil
}

// primaryRepository holds an initialized primary repository and the
// section it was built from.
type primaryRepository struct {
	repository.Repository
	section config.TypedConfig
}

// openPrimary loads the configuration and initializes only the master key
// reader and the primary repository. Secrets are not loaded, so encrypting
// works before the secrets file exists or while it holds bad entries.
func openPrimary(ctx context.Context, cfg *config.Config) (*primaryRepository, error) {
	if err := cfg.Load(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	def := cfg.Definition

	name, repoCfg, err := primaryConfig(def)
	if err != nil {
		return nil, err
	}

	reader, err := masterkey.NewRegistry().Create(def.MasterKeyReaderConfig(), masterkey.Options{
		Properties: cfg.Properties,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	repo, err := repository.NewRegistry().Create(name, repoCfg, repository.Options{Logger: cfg.Logger})
	if err != nil {
		return nil, err
	}
	if err := repo.Init(repoCfg, reader); err != nil {
		return nil, err
	}
	return &primaryRepository{Repository: repo, section: repoCfg}, nil
}

// primaryConfig returns the name and section of the repository that
// encrypt and decrypt requests go to.
func primaryConfig(def *config.Definition) (string, config.TypedConfig, error) {
	if legacy := def.LegacyRepositories(); len(legacy) > 0 {
		return legacy[0].Name, legacy[0].Typed(), nil
	}

	var (
		name  string
		found config.TypedConfig
		count int
	)
	for _, provider := range def.ProviderNames() {
		for repoName, repo := range def.SecretProviders[provider].Repositories {
			name, found = provider+":"+repoName, repo
			count++
		}
	}
	if count != 1 {
		return "", config.TypedConfig{}, dserrors.UserError{
			Message:    "No primary secret repository",
			Details:    "encrypting needs a secretRepository section or exactly one provider repository",
			Suggestion: "Add a secretRepository section to your securevault.yaml",
		}
	}
	return name, found, nil
}
