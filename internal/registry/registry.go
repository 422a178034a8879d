// Package registry routes secret aliases to repositories.
//
// Two models coexist. The legacy model is one ordered chain of
// repositories, configured by secretRepository and secretRepositories; a
// bare alias resolves against its members that are no other member's
// parent. Parents hold bootstrap material such as child keystore passwords
// and are reachable only through their children. The provider model is a set of named
// providers, each owning named repositories; a qualified alias
// "provider:repository:alias" resolves to exactly one repository.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/systmms/secvault/internal/config"
	dserrors "github.com/systmms/secvault/internal/errors"
	"github.com/systmms/secvault/internal/logging"
	"github.com/systmms/secvault/internal/masterkey"
	"github.com/systmms/secvault/internal/metrics"
	"github.com/systmms/secvault/internal/repository"
)

// Delimiter separates the parts of a qualified alias.
const Delimiter = ":"

// Options carries the collaborators the registry hands to readers and
// repositories.
type Options struct {
	Logger    *logging.Logger
	Metrics   *metrics.Metrics
	ReaderOpt masterkey.Options
}

// Registry resolves aliases. It is written once by Init and read-only
// afterwards, so lookups take no locks.
type Registry struct {
	opts      Options
	readers   *masterkey.Registry
	repos     *repository.Registry
	factories map[string]ProviderFactory

	reader      masterkey.Reader
	legacy      []repository.Repository
	served      []repository.Repository
	providers   map[string]Provider
	initialized bool
}

// New creates an empty registry using the given reader and repository
// factories. The "default" provider type is built in.
func New(readers *masterkey.Registry, repos *repository.Registry, opts Options) *Registry {
	r := &Registry{
		opts:      opts,
		readers:   readers,
		repos:     repos,
		factories: make(map[string]ProviderFactory),
		providers: make(map[string]Provider),
	}
	r.RegisterProvider("default", NewDefaultProviderFactory)
	return r
}

// RegisterProvider registers a provider factory for a given type
func (r *Registry) RegisterProvider(providerType string, factory ProviderFactory) {
	r.factories[providerType] = factory
}

// Init builds the master key reader, the legacy chain and the providers
// described by def, initializing every repository and loading its secrets.
func (r *Registry) Init(def *config.Definition) error {
	if r.initialized {
		return nil
	}
	logger := logging.OrDiscard(r.opts.Logger)

	readerOpts := r.opts.ReaderOpt
	if readerOpts.Logger == nil {
		readerOpts.Logger = r.opts.Logger
	}
	if readerOpts.Metrics == nil {
		readerOpts.Metrics = r.opts.Metrics
	}
	reader, err := r.readers.Create(def.MasterKeyReaderConfig(), readerOpts)
	if err != nil {
		return err
	}
	r.reader = reader

	legacy, err := r.initLegacy(def.LegacyRepositories())
	if err != nil {
		return err
	}

	providers := make(map[string]Provider, len(def.SecretProviders))
	for _, name := range def.ProviderNames() {
		cfg := def.SecretProviders[name]
		factory, ok := r.factories[cfg.Type]
		if !ok {
			return dserrors.Configuration("init providers",
				fmt.Sprintf("unknown provider type %q for %s", cfg.Type, name), nil)
		}
		provider := factory(name)
		if err := provider.Init(cfg, reader, r.repos, r.repoOptions()); err != nil {
			return err
		}
		providers[name] = provider
		logger.Debug("Provider %s initialized with repositories %v", name, provider.RepositoryNames())
	}

	r.legacy = legacy
	r.served = servedRepositories(def.LegacyRepositories(), legacy)
	r.providers = providers
	r.initialized = true
	return nil
}

// initLegacy creates the chain, links parents, then initializes parents
// before the repositories that depend on them.
func (r *Registry) initLegacy(chain []config.RepositoryConfig) ([]repository.Repository, error) {
	byName := make(map[string]repository.Repository, len(chain))
	cfgs := make(map[string]config.RepositoryConfig, len(chain))
	ordered := make([]repository.Repository, 0, len(chain))

	for _, rc := range chain {
		repo, err := r.repos.Create(rc.Name, rc.Typed(), r.repoOptions())
		if err != nil {
			return nil, err
		}
		byName[rc.Name] = repo
		cfgs[rc.Name] = rc
		ordered = append(ordered, repo)
	}

	for _, rc := range chain {
		if rc.Parent == "" {
			continue
		}
		parent, ok := byName[rc.Parent]
		if !ok {
			return nil, dserrors.Configuration("init repositories",
				fmt.Sprintf("repository %s names unknown parent %q", rc.Name, rc.Parent), nil)
		}
		if err := byName[rc.Name].SetParent(parent); err != nil {
			return nil, err
		}
	}

	done := make(map[string]bool, len(chain))
	var initOne func(repo repository.Repository) error
	initOne = func(repo repository.Repository) error {
		if done[repo.Name()] {
			return nil
		}
		if parent := repo.Parent(); parent != nil {
			if err := initOne(parent); err != nil {
				return err
			}
		}
		cfg := cfgs[repo.Name()].Typed()
		if err := repo.Init(cfg, r.reader); err != nil {
			return err
		}
		if err := repo.LoadSecrets(cfg); err != nil {
			return err
		}
		done[repo.Name()] = true
		logging.OrDiscard(r.opts.Logger).Debug("Repository %s ready", repo.Name())
		return nil
	}
	for _, repo := range ordered {
		if err := initOne(repo); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

func (r *Registry) repoOptions() repository.Options {
	return repository.Options{Logger: r.opts.Logger, Metrics: r.opts.Metrics}
}

// IsInitialized reports whether Init completed.
func (r *Registry) IsInitialized() bool {
	return r.initialized
}

// Reader returns the master key reader built by Init.
func (r *Registry) Reader() masterkey.Reader {
	return r.reader
}

// Primary returns the repository used for encrypt and decrypt requests:
// the first legacy repository, or the only provider repository.
func (r *Registry) Primary() (repository.Repository, bool) {
	if len(r.legacy) > 0 {
		return r.legacy[0], true
	}
	if repo, ok := r.implicitPair(); ok {
		return repo, true
	}
	return nil, false
}

// LegacyRepositories returns the legacy chain in resolution order.
func (r *Registry) LegacyRepositories() []repository.Repository {
	return append([]repository.Repository(nil), r.legacy...)
}

// ProviderNames returns the initialized provider names in sorted order.
func (r *Registry) ProviderNames() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveSecret resolves a bare or qualified alias.
//
// A bare alias uses the legacy chain when one is configured, otherwise the
// single provider repository when exactly one exists, otherwise it is
// returned unchanged. More than one provider repository without a legacy
// chain makes a bare alias ambiguous. A "provider:repository:alias"
// annotation looks up that exact repository. Any other number of parts is
// a resolution error. Unknown aliases are never an error.
func (r *Registry) ResolveSecret(annotation string) (string, error) {
	parts := strings.Split(annotation, Delimiter)

	switch len(parts) {
	case 1:
		alias := parts[0]
		if len(r.legacy) > 0 {
			return r.record(r.GetSecret(alias), alias), nil
		}
		if len(r.providers) == 0 {
			return r.record(alias, alias), nil
		}
		repo, ok := r.implicitPair()
		if !ok {
			r.opts.Metrics.RecordResolution(metrics.OutcomeError)
			return "", dserrors.Resolution("resolve secret",
				fmt.Sprintf("alias %q is ambiguous: qualify it as provider%srepository%salias", alias, Delimiter, Delimiter), nil)
		}
		return r.record(repo.GetSecret(alias), alias), nil

	case 3:
		provider, repoName, alias := parts[0], parts[1], parts[2]
		return r.record(r.GetSecretFrom(provider, repoName, alias), alias), nil
	}

	r.opts.Metrics.RecordResolution(metrics.OutcomeError)
	return "", dserrors.Resolution("resolve secret",
		fmt.Sprintf("%q has %d parts; expected alias or provider%srepository%salias",
			annotation, len(parts), Delimiter, Delimiter), nil)
}

func (r *Registry) record(value, alias string) string {
	if value == alias {
		r.opts.Metrics.RecordResolution(metrics.OutcomeUnknown)
	} else {
		r.opts.Metrics.RecordResolution(metrics.OutcomeResolved)
	}
	return value
}

// servedRepositories returns the chain members that answer bare aliases:
// every member not named as another member's parent, in chain order.
func servedRepositories(chain []config.RepositoryConfig, repos []repository.Repository) []repository.Repository {
	parents := make(map[string]bool, len(chain))
	for _, rc := range chain {
		if rc.Parent != "" {
			parents[rc.Parent] = true
		}
	}
	served := make([]repository.Repository, 0, len(repos))
	for _, repo := range repos {
		if !parents[repo.Name()] {
			served = append(served, repo)
		}
	}
	return served
}

// GetSecret resolves alias against the legacy chain; the first served
// repository holding it wins.
func (r *Registry) GetSecret(alias string) string {
	for _, repo := range r.served {
		if repo.Has(alias) {
			return repo.GetSecret(alias)
		}
	}
	return alias
}

// GetEncryptedData returns the stored ciphertext for alias from the legacy
// chain, or alias when no repository holds it.
func (r *Registry) GetEncryptedData(alias string) string {
	for _, repo := range r.served {
		if repo.Has(alias) {
			return repo.GetEncryptedData(alias)
		}
	}
	return alias
}

// GetSecretFrom resolves alias in one provider repository. An unknown
// provider or repository returns alias.
func (r *Registry) GetSecretFrom(provider, repoName, alias string) string {
	repo, ok := r.lookup(provider, repoName)
	if !ok {
		return alias
	}
	return repo.GetSecret(alias)
}

// IsKnown reports whether annotation resolves to a stored secret.
func (r *Registry) IsKnown(annotation string) bool {
	parts := strings.Split(annotation, Delimiter)
	switch len(parts) {
	case 1:
		if len(r.legacy) > 0 {
			for _, repo := range r.served {
				if repo.Has(parts[0]) {
					return true
				}
			}
			return false
		}
		if repo, ok := r.implicitPair(); ok {
			return repo.Has(parts[0])
		}
	case 3:
		if repo, ok := r.lookup(parts[0], parts[1]); ok {
			return repo.Has(parts[2])
		}
	}
	return false
}

func (r *Registry) lookup(provider, repoName string) (repository.Repository, bool) {
	p, ok := r.providers[provider]
	if !ok {
		return nil, false
	}
	return p.Repository(repoName)
}

// implicitPair returns the only provider repository when exactly one is
// configured.
func (r *Registry) implicitPair() (repository.Repository, bool) {
	var found repository.Repository
	count := 0
	for _, p := range r.providers {
		for _, name := range p.RepositoryNames() {
			count++
			found, _ = p.Repository(name)
		}
	}
	if count != 1 {
		return nil, false
	}
	return found, true
}
