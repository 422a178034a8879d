package secure

import (
	"sync"

	"github.com/awnumar/memguard"
)

// SecureBuffer keeps a master key or other sensitive value sealed in a
// memguard enclave. The plaintext only exists inside short-lived locked
// buffers returned by Open, or in caller-owned copies returned by Copy.
type SecureBuffer struct {
	enclave   *memguard.Enclave
	mu        sync.RWMutex
	destroyed bool
}

// NewSecureBuffer seals data into an enclave. memguard wipes data after
// copying it, so callers that still need the bytes must pass a copy.
// Empty input yields a buffer that opens to an empty value.
func NewSecureBuffer(data []byte) (*SecureBuffer, error) {
	return &SecureBuffer{
		enclave: memguard.NewEnclave(data),
	}, nil
}

// Open decrypts the enclave into a locked buffer. The caller MUST call
// Destroy on the returned buffer when done.
func (s *SecureBuffer) Open() (*memguard.LockedBuffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// memguard returns a nil enclave for empty input
	if s.destroyed || s.enclave == nil {
		return memguard.NewBufferFromBytes([]byte{}), nil
	}
	return s.enclave.Open()
}

// Copy returns the plaintext in a regular byte slice owned by the caller.
func (s *SecureBuffer) Copy() ([]byte, error) {
	locked, err := s.Open()
	if err != nil {
		return nil, err
	}
	defer locked.Destroy()

	out := make([]byte, len(locked.Bytes()))
	copy(out, locked.Bytes())
	return out, nil
}

// Destroy marks the buffer unusable. Idempotent; after Destroy, Open
// returns an empty buffer. Call memguard.Purge at process exit for a
// full wipe.
func (s *SecureBuffer) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return
	}
	s.enclave = nil
	s.destroyed = true
}
