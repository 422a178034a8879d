package keycipher

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/secvault/internal/config"
	dserrors "github.com/systmms/secvault/internal/errors"
	"github.com/systmms/secvault/internal/masterkey"
	"github.com/systmms/secvault/internal/testutil"
)

func keysFor(values map[string]string) masterkey.Keys {
	keys := masterkey.NewKeys(MasterKeyNames()...)
	for name, v := range values {
		keys.Get(name).Resolve([]byte(v), masterkey.SourceStatic)
	}
	return keys
}

func newEngine(t *testing.T, ks *testutil.Keystore, algorithm string) *Engine {
	t.Helper()
	e, err := New(config.TypedConfig{
		Type: "file",
		Parameters: map[string]string{
			ParamKeystoreLocation: ks.Path,
			ParamPrivateKeyAlias:  ks.Alias,
			ParamAlgorithm:        algorithm,
		},
	}, keysFor(map[string]string{KeyStorePassword: ks.StorePassword, PrivateKeyPassword: ks.KeyPassword}))
	require.NoError(t, err)
	return e
}

func TestEngine_RoundTrip(t *testing.T) {
	t.Parallel()

	ks := testutil.NewKeystore(t, t.TempDir())

	plaintexts := []string{
		"",
		"admin",
		"p@ss word with spaces and ünïcödé",
		strings.Repeat("x", 150),
	}

	for _, algorithm := range []string{AlgorithmRSA, AlgorithmAESGCM} {
		algorithm := algorithm
		t.Run(algorithm, func(t *testing.T) {
			t.Parallel()

			e := newEngine(t, ks, algorithm)
			assert.Equal(t, algorithm, e.Algorithm())
			assert.True(t, e.CanDecrypt())

			for _, p := range plaintexts {
				ct, err := e.Encrypt([]byte(p))
				require.NoError(t, err)
				got, err := e.Decrypt(ct)
				require.NoError(t, err)
				assert.Equal(t, p, string(got))

				text, err := e.EncryptText(p)
				require.NoError(t, err)
				back, err := e.DecryptText(text)
				require.NoError(t, err)
				assert.Equal(t, p, back)
			}
		})
	}
}

func TestEngine_DefaultAlgorithmIsRSA(t *testing.T) {
	t.Parallel()

	ks := testutil.NewKeystore(t, t.TempDir())
	e := newEngine(t, ks, "")
	assert.Equal(t, AlgorithmRSA, e.Algorithm())
}

func TestEngine_GCMFreshIV(t *testing.T) {
	t.Parallel()

	ks := testutil.NewKeystore(t, t.TempDir())
	e := newEngine(t, ks, AlgorithmAESGCM)

	first, err := e.Encrypt([]byte("same"))
	require.NoError(t, err)
	second, err := e.Encrypt([]byte("same"))
	require.NoError(t, err)

	var r1, r2 map[string]string
	require.NoError(t, json.Unmarshal(first, &r1))
	require.NoError(t, json.Unmarshal(second, &r2))

	assert.Contains(t, r1, "iv")
	assert.Contains(t, r1, "cipherText")
	assert.NotEqual(t, r1["iv"], r2["iv"])
	assert.NotEqual(t, r1["cipherText"], r2["cipherText"])

	iv, err := base64.StdEncoding.DecodeString(r1["iv"])
	require.NoError(t, err)
	assert.Len(t, iv, gcmNonceSize)
}

func TestEngine_GCMKeyIsStableAcrossInstances(t *testing.T) {
	t.Parallel()

	ks := testutil.NewKeystore(t, t.TempDir())
	ct, err := newEngine(t, ks, AlgorithmAESGCM).EncryptText("persisted")
	require.NoError(t, err)

	got, err := newEngine(t, ks, AlgorithmAESGCM).DecryptText(ct)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got)
}

func TestEngine_DecryptCodecErrors(t *testing.T) {
	t.Parallel()

	ks := testutil.NewKeystore(t, t.TempDir())
	rsaEngine := newEngine(t, ks, AlgorithmRSA)
	gcmEngine := newEngine(t, ks, AlgorithmAESGCM)

	valid, err := gcmEngine.Encrypt([]byte("secret"))
	require.NoError(t, err)
	var rec map[string]string
	require.NoError(t, json.Unmarshal(valid, &rec))
	tamperedCT, _ := base64.StdEncoding.DecodeString(rec["cipherText"])
	tamperedCT[0] ^= 0xff
	rec["cipherText"] = base64.StdEncoding.EncodeToString(tamperedCT)
	tampered, _ := json.Marshal(rec)

	tests := []struct {
		name   string
		engine *Engine
		input  string
	}{
		{"rsa not base64", rsaEngine, "!!not base64!!"},
		{"rsa garbage", rsaEngine, base64.StdEncoding.EncodeToString([]byte("garbage"))},
		{"gcm not json", gcmEngine, base64.StdEncoding.EncodeToString([]byte("not json"))},
		{"gcm missing iv", gcmEngine, base64.StdEncoding.EncodeToString([]byte(`{"cipherText":"AAAA"}`))},
		{"gcm short iv", gcmEngine, base64.StdEncoding.EncodeToString([]byte(`{"iv":"AAAA","cipherText":"AAAA"}`))},
		{"gcm unknown field", gcmEngine, base64.StdEncoding.EncodeToString([]byte(`{"nonce":"AAAA"}`))},
		{"gcm tampered", gcmEngine, base64.StdEncoding.EncodeToString(tampered)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := tt.engine.DecryptText(tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, dserrors.ErrCodec)
		})
	}
}

func TestEngine_TrustedCertificateEncryptOnly(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	identity := testutil.NewKeystore(t, dir)
	trust := testutil.NewKeystore(t, dir, testutil.TrustedCertificateOnly(), testutil.WithFileName("trust.jks"))

	encryptor := newEngine(t, trust, AlgorithmRSA)
	assert.False(t, encryptor.CanDecrypt())

	ct, err := encryptor.EncryptText("from trust store")
	require.NoError(t, err)

	_, err = encryptor.DecryptText(ct)
	assert.ErrorIs(t, err, dserrors.ErrKeyMaterial)

	got, err := newEngine(t, identity, AlgorithmRSA).DecryptText(ct)
	require.NoError(t, err)
	assert.Equal(t, "from trust store", got)

	_, err = New(config.TypedConfig{Parameters: map[string]string{
		ParamKeystoreLocation: trust.Path,
		ParamPrivateKeyAlias:  trust.Alias,
		ParamAlgorithm:        AlgorithmAESGCM,
	}}, keysFor(map[string]string{KeyStorePassword: trust.StorePassword}))
	assert.ErrorIs(t, err, dserrors.ErrKeyMaterial)
}

func TestEngine_PrivateKeyPasswordFallback(t *testing.T) {
	t.Parallel()

	ks := testutil.NewKeystore(t, t.TempDir())
	_, err := New(config.TypedConfig{Parameters: map[string]string{
		ParamKeystoreLocation: ks.Path,
		ParamPrivateKeyAlias:  ks.Alias,
	}}, keysFor(map[string]string{KeyStorePassword: ks.StorePassword}))
	assert.NoError(t, err)
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ks := testutil.NewKeystore(t, dir)
	splitPasswords := testutil.NewKeystore(t, dir,
		testutil.WithFileName("split.jks"), testutil.WithPasswords("store-pass", "key-pass"))

	good := map[string]string{KeyStorePassword: ks.StorePassword}

	tests := []struct {
		name     string
		params   map[string]string
		keys     map[string]string
		sentinel error
	}{
		{
			name:     "missing location",
			params:   map[string]string{ParamPrivateKeyAlias: ks.Alias},
			keys:     good,
			sentinel: dserrors.ErrConfiguration,
		},
		{
			name:     "missing alias",
			params:   map[string]string{ParamKeystoreLocation: ks.Path},
			keys:     good,
			sentinel: dserrors.ErrConfiguration,
		},
		{
			name:     "unsupported algorithm",
			params:   map[string]string{ParamKeystoreLocation: ks.Path, ParamPrivateKeyAlias: ks.Alias, ParamAlgorithm: "DES"},
			keys:     good,
			sentinel: dserrors.ErrConfiguration,
		},
		{
			name:     "unresolved keystore password",
			params:   map[string]string{ParamKeystoreLocation: ks.Path, ParamPrivateKeyAlias: ks.Alias},
			keys:     nil,
			sentinel: dserrors.ErrKeyMaterial,
		},
		{
			name:     "keystore not found",
			params:   map[string]string{ParamKeystoreLocation: dir + "/missing.jks", ParamPrivateKeyAlias: ks.Alias},
			keys:     good,
			sentinel: dserrors.ErrKeyMaterial,
		},
		{
			name:     "wrong keystore password",
			params:   map[string]string{ParamKeystoreLocation: ks.Path, ParamPrivateKeyAlias: ks.Alias},
			keys:     map[string]string{KeyStorePassword: "wrong"},
			sentinel: dserrors.ErrKeyMaterial,
		},
		{
			name:     "alias absent",
			params:   map[string]string{ParamKeystoreLocation: ks.Path, ParamPrivateKeyAlias: "nope"},
			keys:     good,
			sentinel: dserrors.ErrKeyMaterial,
		},
		{
			name:     "wrong private key password",
			params:   map[string]string{ParamKeystoreLocation: splitPasswords.Path, ParamPrivateKeyAlias: splitPasswords.Alias},
			keys:     map[string]string{KeyStorePassword: "store-pass"},
			sentinel: dserrors.ErrKeyMaterial,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := New(config.TypedConfig{Parameters: tt.params}, keysFor(tt.keys))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}

	e, err := New(config.TypedConfig{Parameters: map[string]string{
		ParamKeystoreLocation: splitPasswords.Path,
		ParamPrivateKeyAlias:  splitPasswords.Alias,
	}}, keysFor(map[string]string{KeyStorePassword: "store-pass", PrivateKeyPassword: "key-pass"}))
	require.NoError(t, err)
	assert.True(t, e.CanDecrypt())
}
