package securevault

import (
	"context"
	"sync"

	"github.com/systmms/secvault/internal/masterkey"
	"github.com/systmms/secvault/internal/repository"
)

// ComponentDirectory is the host's view of the implementations contributed
// so far. Each getter reports false until that implementation is present.
type ComponentDirectory interface {
	MasterKeyReader() (string, masterkey.Factory, bool)
	SecretRepository() (string, repository.Factory, bool)
}

// Component initializes a Vault once the directory holds both a master key
// reader and a secret repository.
type Component struct {
	vault      *Vault
	dir        ComponentDirectory
	configPath string

	mu sync.Mutex
}

// NewComponent creates a component that will initialize vault from configPath.
func NewComponent(vault *Vault, dir ComponentDirectory, configPath string) *Component {
	return &Component{vault: vault, dir: dir, configPath: configPath}
}

// Refresh is called whenever the directory changes. It returns true once
// the vault is initialized and false while a dependency is still missing.
func (c *Component) Refresh(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vault.IsInitialized() {
		return true, nil
	}

	readerType, readerFactory, ok := c.dir.MasterKeyReader()
	if !ok {
		c.vault.logger.Debug("Waiting for a master key reader")
		return false, nil
	}
	repoType, repoFactory, ok := c.dir.SecretRepository()
	if !ok {
		c.vault.logger.Debug("Waiting for a secret repository")
		return false, nil
	}

	c.vault.readers.Register(readerType, readerFactory)
	c.vault.repos.Register(repoType, repoFactory)

	if err := c.vault.Init(ctx, c.configPath); err != nil {
		return false, err
	}
	return true, nil
}

// Directory is a ComponentDirectory the host fills in as implementations
// become available.
type Directory struct {
	mu          sync.RWMutex
	readerType  string
	reader      masterkey.Factory
	repoType    string
	repoFactory repository.Factory
}

// SetMasterKeyReader records the reader implementation.
func (d *Directory) SetMasterKeyReader(readerType string, factory masterkey.Factory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readerType, d.reader = readerType, factory
}

// SetSecretRepository records the repository implementation.
func (d *Directory) SetSecretRepository(repoType string, factory repository.Factory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.repoType, d.repoFactory = repoType, factory
}

// MasterKeyReader implements ComponentDirectory.
func (d *Directory) MasterKeyReader() (string, masterkey.Factory, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.readerType, d.reader, d.reader != nil
}

// SecretRepository implements ComponentDirectory.
func (d *Directory) SecretRepository() (string, repository.Factory, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.repoType, d.repoFactory, d.repoFactory != nil
}
