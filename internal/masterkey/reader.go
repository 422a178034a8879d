package masterkey

import (
	"fmt"
	"os"
	"sort"

	"github.com/systmms/secvault/internal/config"
	dserrors "github.com/systmms/secvault/internal/errors"
	"github.com/systmms/secvault/internal/logging"
	"github.com/systmms/secvault/internal/metrics"
	"github.com/systmms/secvault/internal/sysprop"
)

// FileParameter names the master-keys file in the reader parameters.
const FileParameter = "masterKeyReaderFile"

// Reader fills in master key values.
type Reader interface {
	// Init configures the reader from its masterKeyReader section.
	Init(cfg config.TypedConfig) error
	// ReadMasterKeys resolves as many of keys as it can. Keys it cannot
	// resolve are left untouched.
	ReadMasterKeys(keys Keys) error
}

// Options carries the collaborators readers may need.
type Options struct {
	Properties *sysprop.Properties
	Logger     *logging.Logger
	Metrics    *metrics.Metrics
	Observer   StoreObserver
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

func (o Options) lookupEnv(name string) (string, bool) {
	if o.LookupEnv != nil {
		return o.LookupEnv(name)
	}
	return os.LookupEnv(name)
}

// Factory creates an uninitialized reader.
type Factory func(opts Options) Reader

// Registry maps reader type ids to factories
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a registry with the built-in reader types
func NewRegistry() *Registry {
	registry := &Registry{
		factories: make(map[string]Factory),
	}

	registry.Register("default", NewDefaultReaderFactory)
	registry.Register("keyring", NewKeyringReaderFactory)
	registry.Register("static", NewStaticReaderFactory)

	return registry
}

// Register registers a reader factory for a given type
func (r *Registry) Register(readerType string, factory Factory) {
	r.factories[readerType] = factory
}

// Create builds and initializes the reader selected by cfg.Type
func (r *Registry) Create(cfg config.TypedConfig, opts Options) (Reader, error) {
	factory, exists := r.factories[cfg.Type]
	if !exists {
		return nil, dserrors.Configuration("create master key reader",
			fmt.Sprintf("unknown master key reader type: %q", cfg.Type), nil)
	}

	reader := factory(opts)
	if err := reader.Init(cfg); err != nil {
		return nil, err
	}
	return reader, nil
}

// GetSupportedTypes returns the registered reader types in sorted order
func (r *Registry) GetSupportedTypes() []string {
	types := make([]string, 0, len(r.factories))
	for readerType := range r.factories {
		types = append(types, readerType)
	}
	sort.Strings(types)
	return types
}

// IsSupported checks if a reader type is registered
func (r *Registry) IsSupported(readerType string) bool {
	_, exists := r.factories[readerType]
	return exists
}

// DefaultReader resolves keys from process properties, then environment
// variables, then the master-keys file.
type DefaultReader struct {
	opts     Options
	filePath string
}

// NewDefaultReaderFactory creates a DefaultReader
func NewDefaultReaderFactory(opts Options) Reader {
	return &DefaultReader{opts: opts}
}

// Init records the master-keys file location. The file is not read until
// a key is missing from the properties and the environment.
func (r *DefaultReader) Init(cfg config.TypedConfig) error {
	r.filePath = cfg.Param(FileParameter, "")
	return nil
}

// ReadMasterKeys implements Reader.
func (r *DefaultReader) ReadMasterKeys(keys Keys) error {
	logger := logging.OrDiscard(r.opts.Logger)

	for _, key := range keys.Unresolved() {
		if v, ok := r.opts.Properties.Get(key.Name()); ok && v != "" {
			r.resolve(key, []byte(v), SourceProperty)
			continue
		}
		if v, ok := r.opts.lookupEnv(key.Name()); ok && v != "" {
			r.resolve(key, []byte(v), SourceEnvironment)
		}
	}

	pending := keys.Unresolved()
	if len(pending) == 0 {
		return nil
	}
	if r.filePath == "" {
		logger.Debug("No master keys file configured; %d key(s) left unresolved", len(pending))
		return nil
	}

	store, err := ResolveStore(r.filePath)
	if err != nil {
		return err
	}
	if r.opts.Observer != nil {
		r.opts.Observer(store.Path, store.Permanent)
	}

	for _, key := range pending {
		if v, ok := store.MasterKeys[key.Name()]; ok && v != "" {
			r.resolve(key, []byte(v), SourceFile)
		}
	}
	for _, key := range keys.Unresolved() {
		logger.Debug("Master key %s not found in any source", key.Name())
	}
	return nil
}

func (r *DefaultReader) resolve(key *MasterKey, value []byte, source Source) {
	if key.Resolve(value, source) {
		logging.OrDiscard(r.opts.Logger).Debug("Master key %s resolved from %s", key.Name(), source)
		r.opts.Metrics.RecordMasterKeySource(string(source))
	}
}

// StaticReader resolves keys from its own parameters. Intended for tests
// and for embedding fixed development credentials.
type StaticReader struct {
	opts   Options
	values map[string]string
}

// NewStaticReaderFactory creates a StaticReader
func NewStaticReaderFactory(opts Options) Reader {
	return &StaticReader{opts: opts}
}

// Init implements Reader.
func (r *StaticReader) Init(cfg config.TypedConfig) error {
	r.values = make(map[string]string, len(cfg.Parameters))
	for k, v := range cfg.Parameters {
		r.values[k] = v
	}
	return nil
}

// ReadMasterKeys implements Reader.
func (r *StaticReader) ReadMasterKeys(keys Keys) error {
	for _, key := range keys.Unresolved() {
		if v, ok := r.values[key.Name()]; ok {
			if key.Resolve([]byte(v), SourceStatic) {
				r.opts.Metrics.RecordMasterKeySource(string(SourceStatic))
			}
		}
	}
	return nil
}
