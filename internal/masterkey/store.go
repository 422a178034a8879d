package masterkey

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	dserrors "github.com/systmms/secvault/internal/errors"
)

// Store is a master-keys YAML file.
//
//	permanent: true
//	masterKeys:
//	  keyStorePassword: wso2carbon
//	relocation: ../shared/master-keys.yaml
type Store struct {
	Permanent  bool              `yaml:"permanent"`
	MasterKeys map[string]string `yaml:"masterKeys"`
	Relocation string            `yaml:"relocation,omitempty"`

	// Path is the absolute path the store was read from.
	Path string `yaml:"-"`
}

// StoreObserver is told which store supplied master keys and whether it is
// marked permanent. Deciding what to do with a non-permanent file is left
// to the observer; readers never modify or delete it.
type StoreObserver func(path string, permanent bool)

// LoadStore reads a single store file without following relocation.
func LoadStore(path string) (*Store, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, dserrors.KeyMaterial("read master keys", "invalid path "+path, err)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, dserrors.KeyMaterial("read master keys", "cannot read "+abs, err)
	}

	var store Store
	if err := yaml.Unmarshal(data, &store); err != nil {
		return nil, dserrors.Configuration("read master keys", "invalid YAML in "+abs, err)
	}
	store.Path = abs
	return &store, nil
}

// ResolveStore reads path and follows relocation pointers to the last store
// in the chain, which is the one whose values apply. Relative relocation
// paths are taken from the directory of the file that names them. Visiting
// a file twice is a cyclic reference error.
func ResolveStore(path string) (*Store, error) {
	visited := make(map[string]bool)
	current := path

	for {
		abs, err := filepath.Abs(current)
		if err != nil {
			return nil, dserrors.KeyMaterial("read master keys", "invalid path "+current, err)
		}
		abs = filepath.Clean(abs)
		if visited[abs] {
			return nil, dserrors.CyclicReference("read master keys", "relocation revisits "+abs, nil)
		}
		visited[abs] = true

		store, err := LoadStore(abs)
		if err != nil {
			return nil, err
		}
		if store.Relocation == "" {
			return store, nil
		}

		next := store.Relocation
		if !filepath.IsAbs(next) {
			next = filepath.Join(filepath.Dir(abs), next)
		}
		current = next
	}
}

// Save writes the store as YAML. Used by tooling and tests that prepare
// master-keys files.
func (s *Store) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return dserrors.Configuration("write master keys", "cannot encode store", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return dserrors.KeyMaterial("write master keys", "cannot write "+path, err)
	}
	return nil
}
