// Package masterkey resolves the named master keys that unlock keystores.
//
// A repository creates unresolved keys for the passwords it needs and hands
// them to a Reader. The default reader consults, in order, the process
// properties table, the environment and a master-keys YAML file that may
// relocate to another file. Keys no source supplies stay unresolved; that is
// not an error, the requesting repository decides what to do about it.
package masterkey

import (
	"sync"

	"github.com/systmms/secvault/internal/secure"
)

// Source names where a master key value came from.
type Source string

const (
	SourceProperty    Source = "property"
	SourceEnvironment Source = "environment"
	SourceFile        Source = "file"
	SourceKeyring     Source = "keyring"
	SourceStatic      Source = "static"
	SourceParent      Source = "parent"
)

// MasterKey is a named password. Its value is set at most once and is held
// in a memguard enclave until Destroy.
type MasterKey struct {
	name string

	mu     sync.RWMutex
	value  *secure.SecureBuffer
	source Source
}

// New creates an unresolved master key.
func New(name string) *MasterKey {
	return &MasterKey{name: name}
}

// Name returns the key name.
func (k *MasterKey) Name() string {
	return k.name
}

// Resolve sets the value if the key is still unresolved and reports whether
// it did. value is copied; the caller keeps ownership of its slice.
func (k *MasterKey) Resolve(value []byte, source Source) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.value != nil {
		return false
	}
	sealed := make([]byte, len(value))
	copy(sealed, value)
	buf, err := secure.NewSecureBuffer(sealed)
	if err != nil {
		return false
	}
	k.value = buf
	k.source = source
	return true
}

// IsResolved reports whether a value has been set.
func (k *MasterKey) IsResolved() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.value != nil
}

// Value returns a copy of the value, or false when the key is unresolved.
// Callers should zero the copy once they are done with it.
func (k *MasterKey) Value() ([]byte, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.value == nil {
		return nil, false
	}
	v, err := k.value.Copy()
	if err != nil {
		return nil, false
	}
	return v, true
}

// Source reports where the value came from.
func (k *MasterKey) Source() Source {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.source
}

// Destroy releases the sealed value. The key stays resolved.
func (k *MasterKey) Destroy() {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.value != nil {
		k.value.Destroy()
	}
}

// String never includes the value.
func (k *MasterKey) String() string {
	if k.IsResolved() {
		return k.name + "=[REDACTED]"
	}
	return k.name + "=<unresolved>"
}

// GoString matches String so %#v does not leak the value.
func (k *MasterKey) GoString() string {
	return k.String()
}

// Keys is an ordered set of master keys requested together.
type Keys []*MasterKey

// NewKeys creates unresolved keys for names.
func NewKeys(names ...string) Keys {
	keys := make(Keys, 0, len(names))
	for _, name := range names {
		keys = append(keys, New(name))
	}
	return keys
}

// Get returns the key with the given name, or nil.
func (ks Keys) Get(name string) *MasterKey {
	for _, k := range ks {
		if k.name == name {
			return k
		}
	}
	return nil
}

// Unresolved returns the keys that still have no value.
func (ks Keys) Unresolved() Keys {
	var out Keys
	for _, k := range ks {
		if !k.IsResolved() {
			out = append(out, k)
		}
	}
	return out
}

// Destroy releases every key's sealed value.
func (ks Keys) Destroy() {
	for _, k := range ks {
		k.Destroy()
	}
}
