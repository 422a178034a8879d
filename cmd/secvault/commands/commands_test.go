package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dserrors "github.com/systmms/secvault/internal/errors"
	"github.com/systmms/secvault/internal/testutil"
)

const cliConfig = `
secretRepository:
  type: file
  parameters:
    keystoreLocation: wso2carbon.jks
    privateKeyAlias: wso2carbon
`

type cliFixture struct {
	configPath  string
	secretsPath string
	password    string
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()

	return newCLIFixtureWith(t, map[string]string{
		"db.password": "plainText s3cret",
		"db.user":     "plainText admin",
	})
}

// newCLIFixtureWith writes a keystore and configuration, plus a secrets
// file holding entries when entries is non-nil.
func newCLIFixtureWith(t *testing.T, entries map[string]string, opts ...testutil.KeystoreOption) *cliFixture {
	t.Helper()

	dir := t.TempDir()
	ks := testutil.NewKeystore(t, dir, opts...)
	secrets := filepath.Join(dir, "secrets.properties")
	if entries != nil {
		secrets = testutil.WriteSecrets(t, dir, entries)
	}
	return &cliFixture{
		configPath:  testutil.WriteFile(t, dir, "securevault.yaml", cliConfig),
		secretsPath: secrets,
		password:    ks.StorePassword,
	}
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	out, _, err := executeWithStderr(t, args...)
	return out, err
}

// executeWithStderr runs the root command and returns stdout and stderr.
func executeWithStderr(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	root := NewRootCommand("test")
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func (f *cliFixture) args(rest ...string) []string {
	return append([]string{"--config", f.configPath, "--no-color", "-D", "keyStorePassword=" + f.password}, rest...)
}

func TestEncryptSecretsCommand(t *testing.T) {
	t.Parallel()

	fx := newCLIFixture(t)

	_, err := execute(t, fx.args("encrypt-secrets")...)
	require.NoError(t, err)

	data, err := os.ReadFile(fx.secretsPath)
	require.NoError(t, err)
	content := string(data)
	assert.NotContains(t, content, "s3cret")
	assert.NotContains(t, content, "plainText")
	assert.Equal(t, 2, strings.Count(content, "cipherText "))

	out, err := execute(t, fx.args("resolve", "--alias", "db.password")...)
	require.NoError(t, err)
	assert.Equal(t, "s3cret\n", out)

	// A second run has nothing left to encrypt and keeps the file readable.
	_, err = execute(t, fx.args("encrypt-secrets")...)
	require.NoError(t, err)
	out, err = execute(t, fx.args("resolve", "--alias", "db.user")...)
	require.NoError(t, err)
	assert.Equal(t, "admin\n", out)
}

func TestEncryptDecryptTextCommands(t *testing.T) {
	t.Parallel()

	fx := newCLIFixture(t)

	cipherText, err := execute(t, fx.args("encrypt-text", "hunter2")...)
	require.NoError(t, err)
	cipherText = strings.TrimSpace(cipherText)
	assert.NotEmpty(t, cipherText)
	assert.NotContains(t, cipherText, "hunter2")

	plain, err := execute(t, fx.args("decrypt-text", cipherText)...)
	require.NoError(t, err)
	assert.Equal(t, "hunter2\n", plain)

	_, err = execute(t, fx.args("decrypt-text", "%%% not base64")...)
	assert.ErrorIs(t, err, dserrors.ErrCodec)
}

func TestResolveCommand(t *testing.T) {
	t.Parallel()

	fx := newCLIFixture(t)

	out, err := execute(t, fx.args("resolve", "jdbc://$secret{db.user}@db/$secret{unknown}")...)
	require.NoError(t, err)
	assert.Equal(t, "jdbc://admin@db/$secret{unknown}\n", out)

	out, err = execute(t, fx.args("resolve", "db.password")...)
	require.NoError(t, err)
	assert.Equal(t, "s3cret\n", out)

	_, err = execute(t, fx.args("resolve", "--alias", "a:b")...)
	assert.ErrorIs(t, err, dserrors.ErrResolution)
}

func TestCommandErrors(t *testing.T) {
	t.Parallel()

	fx := newCLIFixture(t)

	t.Run("missing config", func(t *testing.T) {
		_, err := execute(t, "--config", fx.configPath+".missing", "resolve", "x")
		var cfgErr dserrors.ConfigError
		assert.ErrorAs(t, err, &cfgErr)
	})

	t.Run("missing master key", func(t *testing.T) {
		_, err := execute(t, "--config", fx.configPath, "encrypt-text", "x")
		assert.ErrorIs(t, err, dserrors.ErrKeyMaterial)
	})

	t.Run("malformed property", func(t *testing.T) {
		_, err := execute(t, "--config", fx.configPath, "-D", "novalue", "resolve", "x")
		assert.Error(t, err)
	})

	t.Run("wrong arity", func(t *testing.T) {
		_, err := execute(t, fx.args("encrypt-text")...)
		assert.Error(t, err)
	})
}

func TestConfigFromEnvironment(t *testing.T) {
	fx := newCLIFixture(t)
	t.Setenv("SECVAULT_CONFIG", fx.configPath)

	out, err := execute(t, "-D", "keyStorePassword="+fx.password, "resolve", "db.user")
	require.NoError(t, err)
	assert.Equal(t, "admin\n", out)
}

func TestTextCommandsWithoutSecretsFile(t *testing.T) {
	t.Parallel()

	fx := newCLIFixtureWith(t, nil)

	cipherText, err := execute(t, fx.args("encrypt-text", "hunter2")...)
	require.NoError(t, err)
	cipherText = strings.TrimSpace(cipherText)
	require.NotEmpty(t, cipherText)

	plain, err := execute(t, fx.args("decrypt-text", cipherText)...)
	require.NoError(t, err)
	assert.Equal(t, "hunter2\n", plain)

	_, err = os.Stat(fx.secretsPath)
	assert.True(t, os.IsNotExist(err), "text commands never create the secrets file")
}

func TestCommandsIgnoreCorruptSiblingEntry(t *testing.T) {
	t.Parallel()

	fx := newCLIFixtureWith(t, map[string]string{
		"a": "plainText first",
		"b": "cipherText Zm9v",
	})

	cipherText, err := execute(t, fx.args("encrypt-text", "hunter2")...)
	require.NoError(t, err)

	plain, err := execute(t, fx.args("decrypt-text", strings.TrimSpace(cipherText))...)
	require.NoError(t, err)
	assert.Equal(t, "hunter2\n", plain)

	_, err = execute(t, fx.args("encrypt-secrets")...)
	require.NoError(t, err)

	data, err := os.ReadFile(fx.secretsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "cipherText Zm9v")
	assert.NotContains(t, string(data), "plainText")

	// Full resolution still loads every entry and reports the bad one.
	_, err = execute(t, fx.args("resolve", "a")...)
	assert.ErrorIs(t, err, dserrors.ErrCodec)
}

func TestEncryptSecretsWithTrustedCertificate(t *testing.T) {
	t.Parallel()

	fx := newCLIFixtureWith(t, map[string]string{
		"done": "cipherText Zm9v",
		"todo": "plainText pending",
	}, testutil.TrustedCertificateOnly())

	_, err := execute(t, fx.args("encrypt-secrets")...)
	require.NoError(t, err)

	data, err := os.ReadFile(fx.secretsPath)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "cipherText "))
	assert.NotContains(t, string(data), "pending")

	_, err = execute(t, fx.args("encrypt-text", "hunter2")...)
	require.NoError(t, err)
}

func TestErrorsRedactPropertyValues(t *testing.T) {
	t.Parallel()

	fx := newCLIFixture(t)

	_, err := execute(t, fx.args("-D", "marker=topsecretvalue", "resolve", "--alias", "x:topsecretvalue")...)
	require.Error(t, err)
	assert.ErrorIs(t, err, dserrors.ErrResolution)
	assert.NotContains(t, err.Error(), "topsecretvalue")
	assert.Contains(t, err.Error(), "[REDACTED]")
}

func TestDebugLogsPropertyNamesOnly(t *testing.T) {
	t.Parallel()

	fx := newCLIFixture(t)

	_, stderr, err := executeWithStderr(t, fx.args("--debug", "resolve", "db.user")...)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Property keyStorePassword=[REDACTED]")
	assert.NotContains(t, stderr, "="+fx.password)
	assert.NotContains(t, stderr, "admin")
}
