package masterkey

import (
	"errors"

	"github.com/zalando/go-keyring"

	"github.com/systmms/secvault/internal/config"
	dserrors "github.com/systmms/secvault/internal/errors"
	"github.com/systmms/secvault/internal/logging"
)

// DefaultKeyringService is the keyring service holding master keys.
const DefaultKeyringService = "secvault"

// KeyringReader resolves keys from the OS keyring (macOS Keychain, Secret
// Service on Linux, Windows Credential Manager). Each key is stored under
// the configured service with the key name as the account.
type KeyringReader struct {
	opts    Options
	service string
}

// NewKeyringReaderFactory creates a KeyringReader
func NewKeyringReaderFactory(opts Options) Reader {
	return &KeyringReader{opts: opts}
}

// Init implements Reader.
func (r *KeyringReader) Init(cfg config.TypedConfig) error {
	r.service = cfg.Param("service", DefaultKeyringService)
	return nil
}

// ReadMasterKeys implements Reader. Missing entries leave keys unresolved.
func (r *KeyringReader) ReadMasterKeys(keys Keys) error {
	logger := logging.OrDiscard(r.opts.Logger)

	for _, key := range keys.Unresolved() {
		secret, err := keyring.Get(r.service, key.Name())
		if err != nil {
			if errors.Is(err, keyring.ErrNotFound) {
				logger.Debug("Master key %s not in keyring service %s", key.Name(), r.service)
				continue
			}
			return dserrors.KeyMaterial("read master keys", "keyring lookup failed for "+key.Name(), err)
		}
		if key.Resolve([]byte(secret), SourceKeyring) {
			r.opts.Metrics.RecordMasterKeySource(string(SourceKeyring))
		}
	}
	return nil
}
