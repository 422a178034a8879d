// Package keycipher encrypts and decrypts secrets with key material held in
// a JKS keystore.
//
// Two algorithms are supported. RSA (the default) uses RSA-OAEP with
// SHA-256 against the certificate of the configured alias. AES-GCM derives
// a 256-bit key from the alias's private key with HKDF-SHA256 and produces
// a self-describing record carrying a fresh IV per encryption:
//
//	{"iv":"<base64>","cipherText":"<base64>"}
package keycipher

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
	"golang.org/x/crypto/hkdf"

	"github.com/systmms/secvault/internal/config"
	dserrors "github.com/systmms/secvault/internal/errors"
	"github.com/systmms/secvault/internal/masterkey"
)

// Parameters read from the repository configuration.
const (
	ParamKeystoreLocation = "keystoreLocation"
	ParamPrivateKeyAlias  = "privateKeyAlias"
	ParamAlgorithm        = "algorithm"
)

// Master keys the engine needs.
const (
	KeyStorePassword   = "keyStorePassword"
	PrivateKeyPassword = "privateKeyPassword"
)

// Supported algorithms.
const (
	AlgorithmRSA    = "RSA"
	AlgorithmAESGCM = "AES-GCM"
)

const (
	gcmNonceSize = 12
	aesKeyLength = 32
	hkdfInfo     = "secvault aes-gcm key: "
)

// MasterKeyNames lists the master keys New reads.
func MasterKeyNames() []string {
	return []string{KeyStorePassword, PrivateKeyPassword}
}

// Engine is an initialized cipher bound to one keystore alias.
type Engine struct {
	alias      string
	algorithm  string
	publicKey  *rsa.PublicKey
	privateKey *rsa.PrivateKey
	aead       cipher.AEAD
}

// record is the AES-GCM ciphertext envelope.
type record struct {
	IV         []byte `json:"iv"`
	CipherText []byte `json:"cipherText"`
}

// New opens the keystore named in cfg and prepares the selected algorithm.
// keyStorePassword must be resolved; privateKeyPassword falls back to it.
func New(cfg config.TypedConfig, keys masterkey.Keys) (*Engine, error) {
	location := cfg.Param(ParamKeystoreLocation, "")
	alias := cfg.Param(ParamPrivateKeyAlias, "")
	if location == "" {
		return nil, dserrors.Configuration("init cipher", ParamKeystoreLocation+" is required", nil)
	}
	if alias == "" {
		return nil, dserrors.Configuration("init cipher", ParamPrivateKeyAlias+" is required", nil)
	}
	algorithm, err := normalizeAlgorithm(cfg.Param(ParamAlgorithm, AlgorithmRSA))
	if err != nil {
		return nil, err
	}

	storePassword, ok := keyValue(keys, KeyStorePassword)
	if !ok {
		return nil, dserrors.KeyMaterial("init cipher", "master key "+KeyStorePassword+" is not resolved", nil)
	}
	defer zeroBytes(storePassword)
	keyPassword, ok := keyValue(keys, PrivateKeyPassword)
	if !ok {
		keyPassword = append([]byte(nil), storePassword...)
	}
	defer zeroBytes(keyPassword)

	ks, err := loadKeyStore(location, storePassword)
	if err != nil {
		return nil, err
	}

	e := &Engine{alias: alias, algorithm: algorithm}

	switch {
	case ks.IsPrivateKeyEntry(alias):
		entry, err := ks.GetPrivateKeyEntry(alias, append([]byte(nil), keyPassword...))
		if err != nil {
			return nil, dserrors.KeyMaterial("init cipher", "cannot recover private key "+alias, err)
		}
		if err := e.initIdentity(entry); err != nil {
			return nil, err
		}
	case ks.IsTrustedCertificateEntry(alias):
		if algorithm != AlgorithmRSA {
			return nil, dserrors.KeyMaterial("init cipher",
				"alias "+alias+" holds only a certificate; "+algorithm+" needs a private key", nil)
		}
		entry, err := ks.GetTrustedCertificateEntry(alias)
		if err != nil {
			return nil, dserrors.KeyMaterial("init cipher", "cannot read certificate "+alias, err)
		}
		pub, err := rsaPublicKey(entry.Certificate.Content)
		if err != nil {
			return nil, err
		}
		e.publicKey = pub
	default:
		return nil, dserrors.KeyMaterial("init cipher", "alias "+alias+" not found in "+location, nil)
	}

	return e, nil
}

func (e *Engine) initIdentity(entry keystore.PrivateKeyEntry) error {
	if e.algorithm == AlgorithmAESGCM {
		key, err := deriveKey(entry.PrivateKey, e.alias)
		if err != nil {
			return err
		}
		defer zeroBytes(key)

		block, err := aes.NewCipher(key)
		if err != nil {
			return dserrors.KeyMaterial("init cipher", "failed to create cipher", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return dserrors.KeyMaterial("init cipher", "failed to create GCM", err)
		}
		e.aead = gcm
		return nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(entry.PrivateKey)
	if err != nil {
		return dserrors.KeyMaterial("init cipher", "cannot parse private key "+e.alias, err)
	}
	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return dserrors.KeyMaterial("init cipher", fmt.Sprintf("private key %s is %T, not RSA", e.alias, parsed), nil)
	}
	e.privateKey = priv
	e.publicKey = &priv.PublicKey

	if len(entry.CertificateChain) > 0 {
		pub, err := rsaPublicKey(entry.CertificateChain[0].Content)
		if err != nil {
			return err
		}
		e.publicKey = pub
	}
	return nil
}

// Alias returns the keystore alias the engine is bound to.
func (e *Engine) Alias() string {
	return e.alias
}

// Algorithm returns RSA or AES-GCM.
func (e *Engine) Algorithm() string {
	return e.algorithm
}

// CanDecrypt reports whether the engine holds a private key. Engines built
// from a trusted certificate can only encrypt.
func (e *Engine) CanDecrypt() bool {
	return e.privateKey != nil || e.aead != nil
}

// Encrypt returns the ciphertext for plaintext: raw RSA-OAEP bytes, or the
// JSON record in AES-GCM mode.
func (e *Engine) Encrypt(plaintext []byte) ([]byte, error) {
	if e.aead != nil {
		nonce := make([]byte, gcmNonceSize)
		if _, err := rand.Read(nonce); err != nil {
			return nil, dserrors.KeyMaterial("encrypt", "failed to generate IV", err)
		}
		out, err := json.Marshal(record{IV: nonce, CipherText: e.aead.Seal(nil, nonce, plaintext, nil)})
		if err != nil {
			return nil, dserrors.Codec("encrypt", "failed to encode record", err)
		}
		return out, nil
	}

	out, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, e.publicKey, plaintext, nil)
	if err != nil {
		return nil, dserrors.Codec("encrypt", "RSA encryption failed", err)
	}
	return out, nil
}

// Decrypt reverses Encrypt. Malformed or tampered input is a codec error.
func (e *Engine) Decrypt(ciphertext []byte) ([]byte, error) {
	if !e.CanDecrypt() {
		return nil, dserrors.KeyMaterial("decrypt", "alias "+e.alias+" has no private key", nil)
	}

	if e.aead != nil {
		var rec record
		dec := json.NewDecoder(bytes.NewReader(ciphertext))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&rec); err != nil {
			return nil, dserrors.Codec("decrypt", "invalid AES-GCM record", err)
		}
		if len(rec.IV) != gcmNonceSize || len(rec.CipherText) == 0 {
			return nil, dserrors.Codec("decrypt", "AES-GCM record is missing iv or cipherText", nil)
		}
		plain, err := e.aead.Open(nil, rec.IV, rec.CipherText, nil)
		if err != nil {
			return nil, dserrors.Codec("decrypt", "decryption failed (wrong key or corrupted data)", err)
		}
		return plain, nil
	}

	plain, err := rsa.DecryptOAEP(sha256.New(), nil, e.privateKey, ciphertext, nil)
	if err != nil {
		return nil, dserrors.Codec("decrypt", "RSA decryption failed", err)
	}
	return plain, nil
}

// EncryptText encrypts plaintext and returns standard base64.
func (e *Engine) EncryptText(plaintext string) (string, error) {
	out, err := e.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// DecryptText decodes base64 ciphertext and decrypts it.
func (e *Engine) DecryptText(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertext))
	if err != nil {
		return "", dserrors.Codec("decrypt", "ciphertext is not valid base64", err)
	}
	plain, err := e.Decrypt(raw)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func loadKeyStore(location string, password []byte) (keystore.KeyStore, error) {
	f, err := os.Open(location)
	if err != nil {
		return keystore.KeyStore{}, dserrors.KeyMaterial("init cipher", "cannot open keystore "+location, err)
	}
	defer f.Close()

	ks := keystore.New()
	if err := ks.Load(f, append([]byte(nil), password...)); err != nil {
		return keystore.KeyStore{}, dserrors.KeyMaterial("init cipher", "cannot load keystore "+location, err)
	}
	return ks, nil
}

func rsaPublicKey(der []byte) (*rsa.PublicKey, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, dserrors.KeyMaterial("init cipher", "cannot parse certificate", err)
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, dserrors.KeyMaterial("init cipher", fmt.Sprintf("certificate key is %T, not RSA", cert.PublicKey), nil)
	}
	return pub, nil
}

func deriveKey(privateKeyDER []byte, alias string) ([]byte, error) {
	key := make([]byte, aesKeyLength)
	r := hkdf.New(sha256.New, privateKeyDER, nil, []byte(hkdfInfo+alias))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, dserrors.KeyMaterial("init cipher", "key derivation failed", err)
	}
	return key, nil
}

func normalizeAlgorithm(name string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "RSA", "RSA/ECB/OAEPWITHSHA-256ANDMGF1PADDING":
		return AlgorithmRSA, nil
	case "AES-GCM", "AES", "AES/GCM/NOPADDING":
		return AlgorithmAESGCM, nil
	}
	return "", dserrors.Configuration("init cipher", "unsupported algorithm "+name, nil)
}

func keyValue(keys masterkey.Keys, name string) ([]byte, bool) {
	k := keys.Get(name)
	if k == nil {
		return nil, false
	}
	return k.Value()
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
