// Package repository implements secret repositories: alias to secret
// stores that decrypt their whole secrets file at load time and serve
// lookups from memory afterwards.
package repository

import (
	"fmt"
	"sort"

	"github.com/systmms/secvault/internal/config"
	dserrors "github.com/systmms/secvault/internal/errors"
	"github.com/systmms/secvault/internal/logging"
	"github.com/systmms/secvault/internal/masterkey"
	"github.com/systmms/secvault/internal/metrics"
)

// Repository is a store of alias to secret mappings.
//
// GetSecret and GetEncryptedData never fail: an unknown alias, or a lookup
// on a repository that is uninitialized or empty, returns the alias itself.
type Repository interface {
	Name() string
	// Init wires key material. Master keys are taken from the parent
	// repository first, then from reader.
	Init(cfg config.TypedConfig, reader masterkey.Reader) error
	// LoadSecrets reads and decrypts the secrets store.
	LoadSecrets(cfg config.TypedConfig) error
	// PersistSecrets encrypts every plaintext entry of the secrets store
	// in place. Used by offline tooling.
	PersistSecrets(cfg config.TypedConfig) error

	GetSecret(alias string) string
	GetEncryptedData(alias string) string
	// Has reports whether alias is held by this repository.
	Has(alias string) bool

	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)

	// Parent returns the repository supplying this one's master keys.
	Parent() Repository
	// SetParent sets the parent, rejecting cycles.
	SetParent(parent Repository) error
}

// Options carries the collaborators repositories may need.
type Options struct {
	Logger  *logging.Logger
	Metrics *metrics.Metrics
}

// Factory creates an uninitialized repository.
type Factory func(name string, opts Options) Repository

// Registry maps repository type ids to factories
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a registry with the built-in repository types
func NewRegistry() *Registry {
	registry := &Registry{
		factories: make(map[string]Factory),
	}

	registry.Register("file", NewFileRepositoryFactory)

	return registry
}

// Register registers a repository factory for a given type
func (r *Registry) Register(repoType string, factory Factory) {
	r.factories[repoType] = factory
}

// Create creates an uninitialized repository of cfg.Type
func (r *Registry) Create(name string, cfg config.TypedConfig, opts Options) (Repository, error) {
	factory, exists := r.factories[cfg.Type]
	if !exists {
		return nil, dserrors.Configuration("create secret repository",
			fmt.Sprintf("unknown secret repository type %q for %s", cfg.Type, name), nil)
	}
	return factory(name, opts), nil
}

// GetSupportedTypes returns the registered repository types in sorted order
func (r *Registry) GetSupportedTypes() []string {
	types := make([]string, 0, len(r.factories))
	for repoType := range r.factories {
		types = append(types, repoType)
	}
	sort.Strings(types)
	return types
}

// IsSupported checks if a repository type is registered
func (r *Registry) IsSupported(repoType string) bool {
	_, exists := r.factories[repoType]
	return exists
}

// checkParent reports a cycle if child appears among parent's ancestors.
func checkParent(child, parent Repository) error {
	visited := make(map[Repository]bool)
	for p := parent; p != nil; p = p.Parent() {
		if p == child {
			return dserrors.CyclicReference("set parent repository",
				fmt.Sprintf("%s cannot be its own ancestor", child.Name()), nil)
		}
		if visited[p] {
			return dserrors.CyclicReference("set parent repository",
				fmt.Sprintf("parent chain of %s loops at %s", child.Name(), p.Name()), nil)
		}
		visited[p] = true
	}
	return nil
}
