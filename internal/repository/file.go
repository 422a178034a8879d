package repository

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/magiconair/properties"

	"github.com/systmms/secvault/internal/config"
	dserrors "github.com/systmms/secvault/internal/errors"
	"github.com/systmms/secvault/internal/keycipher"
	"github.com/systmms/secvault/internal/logging"
	"github.com/systmms/secvault/internal/masterkey"
)

// SecretsFileParameter names the secrets store in the repository parameters.
const SecretsFileParameter = "secretPropertiesFile"

// DefaultSecretsFile is used next to the keystore when no file is configured.
const DefaultSecretsFile = "secrets.properties"

// Value prefixes in the secrets store.
const (
	PlainTextPrefix  = "plainText"
	CipherTextPrefix = "cipherText"
)

// FileRepository is the "file" repository type: a JKS keystore for key
// material and a properties file of
//
//	alias=plainText <value>
//	alias=cipherText <base64 ciphertext>
//
// entries.
type FileRepository struct {
	name string
	opts Options

	mu          sync.RWMutex
	engine      *keycipher.Engine
	secrets     map[string]string
	encrypted   map[string]string
	parent      Repository
	initialized bool
}

// NewFileRepositoryFactory creates a FileRepository
func NewFileRepositoryFactory(name string, opts Options) Repository {
	return NewFileRepository(name, opts)
}

// NewFileRepository creates an uninitialized file repository.
func NewFileRepository(name string, opts Options) *FileRepository {
	return &FileRepository{
		name:      name,
		opts:      opts,
		secrets:   make(map[string]string),
		encrypted: make(map[string]string),
	}
}

// Name implements Repository.
func (r *FileRepository) Name() string {
	return r.name
}

// Init implements Repository.
func (r *FileRepository) Init(cfg config.TypedConfig, reader masterkey.Reader) error {
	logger := logging.OrDiscard(r.opts.Logger)

	keys := masterkey.NewKeys(keycipher.MasterKeyNames()...)
	defer keys.Destroy()

	if parent := r.Parent(); parent != nil {
		for _, key := range keys {
			if parent.Has(key.Name()) {
				key.Resolve([]byte(parent.GetSecret(key.Name())), masterkey.SourceParent)
				r.opts.Metrics.RecordMasterKeySource(string(masterkey.SourceParent))
				logger.Debug("Master key %s for %s supplied by parent %s", key.Name(), r.name, parent.Name())
			}
		}
	}
	if reader != nil && len(keys.Unresolved()) > 0 {
		if err := reader.ReadMasterKeys(keys); err != nil {
			return err
		}
	}

	engine, err := keycipher.New(cfg, keys)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.engine = engine
	r.initialized = true
	r.mu.Unlock()

	logger.Debug("Secret repository %s initialized (%s, alias %s)", r.name, engine.Algorithm(), engine.Alias())
	return nil
}

// LoadSecrets implements Repository.
func (r *FileRepository) LoadSecrets(cfg config.TypedConfig) error {
	engine, err := r.requireEngine("load secrets")
	if err != nil {
		return err
	}

	path := SecretsPath(cfg)
	p, err := loadProperties(path)
	if err != nil {
		return err
	}

	secrets := make(map[string]string, p.Len())
	encrypted := make(map[string]string, p.Len())
	for _, alias := range p.Keys() {
		raw, _ := p.Get(alias)
		kind, value, err := parseEntry(alias, raw)
		if err != nil {
			return err
		}
		switch kind {
		case PlainTextPrefix:
			secrets[alias] = value
		case CipherTextPrefix:
			plain, err := engine.DecryptText(value)
			if err != nil {
				return dserrors.Codec("load secrets", "cannot decrypt "+alias, err)
			}
			secrets[alias] = plain
			encrypted[alias] = value
		}
	}

	r.mu.Lock()
	r.secrets = secrets
	r.encrypted = encrypted
	r.mu.Unlock()

	r.opts.Metrics.RecordSecretsLoaded(r.name, len(secrets))
	logging.OrDiscard(r.opts.Logger).Debug("Loaded %d secret(s) into %s from %s", len(secrets), r.name, path)
	return nil
}

// PersistSecrets implements Repository. The file is replaced atomically;
// on any failure it is left as it was.
func (r *FileRepository) PersistSecrets(cfg config.TypedConfig) error {
	engine, err := r.requireEngine("persist secrets")
	if err != nil {
		return err
	}

	path := SecretsPath(cfg)
	p, err := loadProperties(path)
	if err != nil {
		return err
	}

	converted := 0
	for _, alias := range p.Keys() {
		raw, _ := p.Get(alias)
		kind, value, err := parseEntry(alias, raw)
		if err != nil {
			return err
		}
		if kind != PlainTextPrefix {
			continue
		}
		ct, err := engine.EncryptText(value)
		if err != nil {
			return err
		}
		if _, _, err := p.Set(alias, CipherTextPrefix+" "+ct); err != nil {
			return dserrors.Codec("persist secrets", "cannot update "+alias, err)
		}
		converted++
	}

	var buf bytes.Buffer
	if _, err := p.WriteComment(&buf, "# ", properties.UTF8); err != nil {
		return dserrors.Codec("persist secrets", "cannot encode secrets", err)
	}
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return err
	}

	logging.OrDiscard(r.opts.Logger).Info("Encrypted %d secret(s) in %s", converted, path)
	return nil
}

// GetSecret implements Repository.
func (r *FileRepository) GetSecret(alias string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.secrets[alias]; ok && v != "" {
		return v
	}
	return alias
}

// GetEncryptedData implements Repository.
func (r *FileRepository) GetEncryptedData(alias string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.encrypted[alias]; ok && v != "" {
		return v
	}
	return alias
}

// Has implements Repository.
func (r *FileRepository) Has(alias string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.secrets[alias]
	return ok && v != ""
}

// Encrypt implements Repository.
func (r *FileRepository) Encrypt(plaintext []byte) ([]byte, error) {
	engine, err := r.requireEngine("encrypt")
	if err != nil {
		return nil, err
	}
	out, err := engine.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}
	return []byte(base64.StdEncoding.EncodeToString(out)), nil
}

// Decrypt implements Repository. ciphertext is base64 encoded, as written
// in the secrets store.
func (r *FileRepository) Decrypt(ciphertext []byte) ([]byte, error) {
	engine, err := r.requireEngine("decrypt")
	if err != nil {
		return nil, err
	}
	plain, err := engine.DecryptText(string(ciphertext))
	if err != nil {
		return nil, err
	}
	return []byte(plain), nil
}

// Parent implements Repository.
func (r *FileRepository) Parent() Repository {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.parent
}

// SetParent implements Repository.
func (r *FileRepository) SetParent(parent Repository) error {
	if parent != nil {
		if err := checkParent(r, parent); err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.parent = parent
	r.mu.Unlock()
	return nil
}

func (r *FileRepository) requireEngine(op string) (*keycipher.Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.initialized {
		return nil, dserrors.Configuration(op, "repository "+r.name+" is not initialized", nil)
	}
	return r.engine, nil
}

// SecretsPath returns the secrets store location for cfg: the configured
// secretPropertiesFile, or secrets.properties next to the keystore.
func SecretsPath(cfg config.TypedConfig) string {
	if p := cfg.Param(SecretsFileParameter, ""); p != "" {
		return p
	}
	keystore := cfg.Param(keycipher.ParamKeystoreLocation, "")
	return filepath.Join(filepath.Dir(keystore), DefaultSecretsFile)
}

func loadProperties(path string) (*properties.Properties, error) {
	loader := properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := loader.LoadFile(path)
	if err != nil {
		if _, statErr := os.Stat(path); statErr != nil {
			return nil, dserrors.Configuration("read secrets", "cannot read "+path, statErr)
		}
		return nil, dserrors.Codec("read secrets", "invalid properties in "+path, err)
	}
	p.DisableExpansion = true
	return p, nil
}

// parseEntry splits "plainText value" or "cipherText value".
func parseEntry(alias, raw string) (kind, value string, err error) {
	trimmed := strings.TrimSpace(raw)
	kind, value, _ = strings.Cut(trimmed, " ")
	switch kind {
	case PlainTextPrefix:
		return kind, strings.TrimSpace(value), nil
	case CipherTextPrefix:
		value = strings.TrimSpace(value)
		if value == "" {
			return "", "", dserrors.Codec("read secrets", "empty cipherText for "+alias, nil)
		}
		return kind, value, nil
	}
	return "", "", dserrors.Codec("read secrets",
		"value of "+alias+" must start with "+PlainTextPrefix+" or "+CipherTextPrefix, nil)
}
