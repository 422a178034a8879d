package registry

import (
	"sort"

	"github.com/systmms/secvault/internal/config"
	"github.com/systmms/secvault/internal/masterkey"
	"github.com/systmms/secvault/internal/repository"
)

// Provider groups named repositories under one provider name, e.g. the
// "hashicorp" repository of the "vault" provider.
type Provider interface {
	Name() string
	Init(cfg config.ProviderConfig, reader masterkey.Reader, repos *repository.Registry, opts repository.Options) error
	Repository(name string) (repository.Repository, bool)
	RepositoryNames() []string
}

// ProviderFactory creates an uninitialized provider.
type ProviderFactory func(name string) Provider

// DefaultProvider builds each configured repository from the repository
// registry, initializes it and loads its secrets.
type DefaultProvider struct {
	name         string
	repositories map[string]repository.Repository
}

// NewDefaultProviderFactory creates a DefaultProvider
func NewDefaultProviderFactory(name string) Provider {
	return &DefaultProvider{name: name, repositories: make(map[string]repository.Repository)}
}

// Name implements Provider.
func (p *DefaultProvider) Name() string {
	return p.name
}

// Init implements Provider.
func (p *DefaultProvider) Init(cfg config.ProviderConfig, reader masterkey.Reader, repos *repository.Registry, opts repository.Options) error {
	names := make([]string, 0, len(cfg.Repositories))
	for name := range cfg.Repositories {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		repoCfg := cfg.Repositories[name]
		repo, err := repos.Create(p.name+":"+name, repoCfg, opts)
		if err != nil {
			return err
		}
		if err := repo.Init(repoCfg, reader); err != nil {
			return err
		}
		if err := repo.LoadSecrets(repoCfg); err != nil {
			return err
		}
		p.repositories[name] = repo
	}
	return nil
}

// Repository implements Provider.
func (p *DefaultProvider) Repository(name string) (repository.Repository, bool) {
	repo, ok := p.repositories[name]
	return repo, ok
}

// RepositoryNames implements Provider.
func (p *DefaultProvider) RepositoryNames() []string {
	names := make([]string, 0, len(p.repositories))
	for name := range p.repositories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
