// Package securevault is the process-wide context object. It loads the
// configuration once, builds the secret registry and answers alias and
// token resolution requests.
package securevault

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/systmms/secvault/internal/config"
	dserrors "github.com/systmms/secvault/internal/errors"
	"github.com/systmms/secvault/internal/logging"
	"github.com/systmms/secvault/internal/masterkey"
	"github.com/systmms/secvault/internal/metrics"
	"github.com/systmms/secvault/internal/registry"
	"github.com/systmms/secvault/internal/repository"
	"github.com/systmms/secvault/internal/sysprop"
	"github.com/systmms/secvault/internal/token"
)

// Options configures a Vault. Every field is optional.
type Options struct {
	Logger     *logging.Logger
	Properties *sysprop.Properties
	// Registerer receives the vault metrics. Nil leaves them unregistered.
	// Vaults sharing a Registerer record into the same collectors.
	Registerer prometheus.Registerer
	// Observer is told which master key file supplied the keys.
	Observer  masterkey.StoreObserver
	LookupEnv func(string) (string, bool)
}

// state is everything Init produces. It is published once and read
// without locking afterwards.
type state struct {
	registry  *registry.Registry
	protected map[string]struct{}
}

// Vault resolves secrets for one process.
type Vault struct {
	logger  *logging.Logger
	props   *sysprop.Properties
	metrics *metrics.Metrics
	opts    Options

	readers *masterkey.Registry
	repos   *repository.Registry

	mu    sync.Mutex
	state atomic.Pointer[state]
}

// New creates an uninitialized vault with the built-in reader and
// repository types registered.
func New(opts Options) *Vault {
	props := opts.Properties
	if props == nil {
		props = sysprop.New()
	}
	return &Vault{
		logger:  logging.OrDiscard(opts.Logger),
		props:   props,
		metrics: metrics.New(opts.Registerer),
		opts:    opts,
		readers: masterkey.NewRegistry(),
		repos:   repository.NewRegistry(),
	}
}

// Properties returns the property table consulted for ${sys:...}
// placeholders and master key lookups.
func (v *Vault) Properties() *sysprop.Properties {
	return v.props
}

// Readers returns the master key reader registry. Register custom types
// before Init.
func (v *Vault) Readers() *masterkey.Registry {
	return v.readers
}

// Repositories returns the secret repository registry. Register custom
// types before Init.
func (v *Vault) Repositories() *repository.Registry {
	return v.repos
}

// Init loads the configuration at configPath and initializes the vault.
// Only the first successful call does any work.
func (v *Vault) Init(ctx context.Context, configPath string) error {
	if v.IsInitialized() {
		return nil
	}
	cfg := &config.Config{Path: configPath, Logger: v.logger, Properties: v.props}
	if err := cfg.Load(); err != nil {
		return err
	}
	return v.InitWithConfig(ctx, cfg.Definition)
}

// InitWithConfig initializes the vault from an already parsed definition.
// Concurrent callers block until the first finishes; a failed attempt
// leaves the vault uninitialized so a later call can retry.
func (v *Vault) InitWithConfig(ctx context.Context, def *config.Definition) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state.Load() != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if def == nil {
		return dserrors.Configuration("init secure vault", "no configuration", nil)
	}

	start := time.Now()
	reg := registry.New(v.readers, v.repos, registry.Options{
		Logger:  v.logger,
		Metrics: v.metrics,
		ReaderOpt: masterkey.Options{
			Properties: v.props,
			Observer:   v.observer(),
			LookupEnv:  v.opts.LookupEnv,
		},
	})
	if err := reg.Init(def); err != nil {
		v.logger.Debug("Secure vault initialization failed: %v", err)
		return err
	}

	st := &state{registry: reg}
	if len(def.ProtectedTokens) > 0 {
		st.protected = make(map[string]struct{}, len(def.ProtectedTokens))
		for _, alias := range def.ProtectedTokens {
			st.protected[alias] = struct{}{}
		}
	}
	v.state.Store(st)

	v.metrics.ObserveInit(time.Since(start))
	v.logger.Debug("Secure vault initialized in %s", time.Since(start).Round(time.Millisecond))
	return nil
}

func (v *Vault) observer() masterkey.StoreObserver {
	if v.opts.Observer != nil {
		return v.opts.Observer
	}
	return func(path string, permanent bool) {
		if !permanent {
			v.logger.Debug("Master key file %s is not permanent; remove it once the server is up", path)
		}
	}
}

// IsInitialized reports whether Init has completed.
func (v *Vault) IsInitialized() bool {
	return v.state.Load() != nil
}

// Registry returns the secret registry, or nil before Init.
func (v *Vault) Registry() *registry.Registry {
	if st := v.state.Load(); st != nil {
		return st.registry
	}
	return nil
}

// ResolveSecret resolves a bare or qualified alias. Before Init the alias
// is returned unchanged.
func (v *Vault) ResolveSecret(annotation string) (string, error) {
	st := v.state.Load()
	if st == nil {
		return annotation, nil
	}
	return st.registry.ResolveSecret(annotation)
}

// Resolve substitutes $secret{...} tokens in text.
func (v *Vault) Resolve(text string) string {
	return token.Resolve(text, v.Resolver())
}

// ResolveProperties substitutes tokens and secretAlias: references in
// every value of props.
func (v *Vault) ResolveProperties(props map[string]string) map[string]string {
	return token.ResolveMap(props, v.Resolver())
}

// Resolver returns the token resolver backed by this vault.
func (v *Vault) Resolver() *SecretResolver {
	return &SecretResolver{vault: v}
}

// Encrypt encrypts plaintext with the primary repository and returns the
// base64 ciphertext.
func (v *Vault) Encrypt(plaintext []byte) ([]byte, error) {
	repo, err := v.primary("encrypt")
	if err != nil {
		return nil, err
	}
	return repo.Encrypt(plaintext)
}

// Decrypt decrypts base64 ciphertext with the primary repository.
func (v *Vault) Decrypt(ciphertext []byte) ([]byte, error) {
	repo, err := v.primary("decrypt")
	if err != nil {
		return nil, err
	}
	return repo.Decrypt(ciphertext)
}

func (v *Vault) primary(op string) (repository.Repository, error) {
	st := v.state.Load()
	if st == nil {
		return nil, dserrors.Configuration(op, "secure vault is not initialized", nil)
	}
	repo, ok := st.registry.Primary()
	if !ok {
		return nil, dserrors.Configuration(op,
			"no primary repository: configure secretRepository or a single provider repository", nil)
	}
	return repo, nil
}

// Shutdown drops the initialized state. A later Init starts over.
func (v *Vault) Shutdown() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state.Swap(nil) != nil {
		v.logger.Debug("Secure vault shut down")
	}
}
