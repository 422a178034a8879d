// Package testutil provides fixtures shared by the package tests: JKS
// keystores with a generated RSA identity, configuration and master-key
// file writers, and a capturing logger.
package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
)

// Defaults used by NewKeystore.
const (
	DefaultAlias         = "wso2carbon"
	DefaultStorePassword = "wso2carbon"
)

// Keystore describes a generated JKS file.
type Keystore struct {
	Path          string
	Alias         string
	StorePassword string
	KeyPassword   string
	PrivateKey    *rsa.PrivateKey
	Certificate   []byte
}

// KeystoreOption customizes NewKeystore.
type KeystoreOption func(*keystoreOptions)

type keystoreOptions struct {
	name          string
	alias         string
	storePassword string
	keyPassword   string
	trustedOnly   bool
	fresh         bool
}

// WithAlias sets the entry alias.
func WithAlias(alias string) KeystoreOption {
	return func(s *keystoreOptions) { s.alias = alias }
}

// WithPasswords sets the keystore and private key passwords.
func WithPasswords(store, key string) KeystoreOption {
	return func(s *keystoreOptions) {
		s.storePassword = store
		s.keyPassword = key
	}
}

// WithFileName sets the keystore file name inside the directory.
func WithFileName(name string) KeystoreOption {
	return func(s *keystoreOptions) { s.name = name }
}

// TrustedCertificateOnly stores only the certificate, no private key.
func TrustedCertificateOnly() KeystoreOption {
	return func(s *keystoreOptions) { s.trustedOnly = true }
}

// FreshKey generates a new RSA key instead of reusing the shared one.
func FreshKey() KeystoreOption {
	return func(s *keystoreOptions) { s.fresh = true }
}

var (
	sharedKeyOnce sync.Once
	sharedKey     *rsa.PrivateKey
	sharedCert    []byte
	sharedKeyErr  error
)

// NewKeystore writes a JKS keystore into dir holding an RSA 2048 key and a
// self-signed certificate. Key generation is shared across tests unless
// FreshKey is given.
func NewKeystore(t *testing.T, dir string, opts ...KeystoreOption) *Keystore {
	t.Helper()

	o := keystoreOptions{
		name:          "wso2carbon.jks",
		alias:         DefaultAlias,
		storePassword: DefaultStorePassword,
		keyPassword:   DefaultStorePassword,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		key  *rsa.PrivateKey
		cert []byte
		err  error
	)
	if o.fresh {
		key, cert, err = generateIdentity()
	} else {
		sharedKeyOnce.Do(func() {
			sharedKey, sharedCert, sharedKeyErr = generateIdentity()
		})
		key, cert, err = sharedKey, sharedCert, sharedKeyErr
	}
	if err != nil {
		t.Fatalf("Failed to generate RSA identity: %v", err)
	}

	ks := keystore.New()
	now := time.Now()
	certificate := keystore.Certificate{Type: "X509", Content: cert}

	if o.trustedOnly {
		err = ks.SetTrustedCertificateEntry(o.alias, keystore.TrustedCertificateEntry{
			CreationTime: now,
			Certificate:  certificate,
		})
	} else {
		der, mErr := x509.MarshalPKCS8PrivateKey(key)
		if mErr != nil {
			t.Fatalf("Failed to marshal private key: %v", mErr)
		}
		err = ks.SetPrivateKeyEntry(o.alias, keystore.PrivateKeyEntry{
			CreationTime:     now,
			PrivateKey:       der,
			CertificateChain: []keystore.Certificate{certificate},
		}, []byte(o.keyPassword))
	}
	if err != nil {
		t.Fatalf("Failed to add keystore entry: %v", err)
	}

	path := filepath.Join(dir, o.name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create keystore file: %v", err)
	}
	defer f.Close()

	if err := ks.Store(f, []byte(o.storePassword)); err != nil {
		t.Fatalf("Failed to write keystore: %v", err)
	}

	return &Keystore{
		Path:          path,
		Alias:         o.alias,
		StorePassword: o.storePassword,
		KeyPassword:   o.keyPassword,
		PrivateKey:    key,
		Certificate:   cert,
	}
}

func generateIdentity() (*rsa.PrivateKey, []byte, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, err
	}

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "secvault test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	cert, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, err
	}
	return key, cert, nil
}
