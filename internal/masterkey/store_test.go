package masterkey

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dserrors "github.com/systmms/secvault/internal/errors"
)

func saveStore(t *testing.T, path string, store Store) {
	t.Helper()
	require.NoError(t, store.Save(path))
}

func TestResolveStore_NoRelocation(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "master-keys.yaml")
	saveStore(t, path, Store{Permanent: true, MasterKeys: map[string]string{"keyStorePassword": "wso2carbon"}})

	store, err := ResolveStore(path)
	require.NoError(t, err)
	assert.True(t, store.Permanent)
	assert.Equal(t, "wso2carbon", store.MasterKeys["keyStorePassword"])
	assert.Equal(t, path, store.Path)
}

func TestResolveStore_Relocation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "shared"), 0o755))

	first := filepath.Join(dir, "master-keys.yaml")
	second := filepath.Join(dir, "shared", "new-master-keys.yaml")
	third := filepath.Join(dir, "final.yaml")

	saveStore(t, first, Store{
		MasterKeys: map[string]string{"keyStorePassword": "from-first"},
		Relocation: "shared/new-master-keys.yaml",
	})
	saveStore(t, second, Store{
		MasterKeys: map[string]string{"keyStorePassword": "from-second"},
		Relocation: "../final.yaml",
	})
	saveStore(t, third, Store{
		Permanent:  true,
		MasterKeys: map[string]string{"MasterKey1": "MyPasswordFromFile"},
	})

	store, err := ResolveStore(first)
	require.NoError(t, err)
	assert.Equal(t, third, store.Path)
	assert.Equal(t, "MyPasswordFromFile", store.MasterKeys["MasterKey1"])
	_, ok := store.MasterKeys["keyStorePassword"]
	assert.False(t, ok, "only the terminal store's values apply")
}

func TestResolveStore_Cycle(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	saveStore(t, a, Store{MasterKeys: map[string]string{"k": "a"}, Relocation: b})
	saveStore(t, b, Store{MasterKeys: map[string]string{"k": "b"}, Relocation: "./a.yaml"})

	_, err := ResolveStore(a)
	require.Error(t, err)
	assert.ErrorIs(t, err, dserrors.ErrCyclicReference)
}

func TestResolveStore_SelfReference(t *testing.T) {
	t.Parallel()

	a := filepath.Join(t.TempDir(), "a.yaml")
	saveStore(t, a, Store{Relocation: "a.yaml"})

	_, err := ResolveStore(a)
	assert.ErrorIs(t, err, dserrors.ErrCyclicReference)
}

func TestResolveStore_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := ResolveStore(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, dserrors.ErrKeyMaterial)

	dangling := filepath.Join(dir, "dangling.yaml")
	saveStore(t, dangling, Store{Relocation: "nonExistentPath"})
	_, err = ResolveStore(dangling)
	assert.ErrorIs(t, err, dserrors.ErrKeyMaterial)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("masterKeys: [unclosed"), 0o600))
	_, err = ResolveStore(bad)
	assert.ErrorIs(t, err, dserrors.ErrConfiguration)
}
