package testutil

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// WriteFile writes content to name inside dir and returns the path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

// WriteTestConfig writes a securevault.yaml into a fresh temp directory.
//
// Example:
//
//	path := WriteTestConfig(t, `
//	secretRepository:
//	  type: file
//	  parameters:
//	    keystoreLocation: wso2carbon.jks
//	`)
func WriteTestConfig(t *testing.T, yamlContent string) string {
	t.Helper()
	return WriteFile(t, t.TempDir(), "securevault.yaml", yamlContent)
}

// WriteMasterKeys writes a master-keys.yaml with the given values.
func WriteMasterKeys(t *testing.T, dir string, permanent bool, keys map[string]string, relocation string) string {
	t.Helper()

	doc := map[string]interface{}{
		"permanent":  permanent,
		"masterKeys": keys,
	}
	if relocation != "" {
		doc["relocation"] = relocation
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		t.Fatalf("Failed to encode master keys: %v", err)
	}
	return WriteFile(t, dir, "master-keys.yaml", string(data))
}

// WriteSecrets writes a secrets.properties file. Values are written as
// given, so callers supply the "plainText " or "cipherText " prefix.
func WriteSecrets(t *testing.T, dir string, entries map[string]string) string {
	t.Helper()

	aliases := make([]string, 0, len(entries))
	for alias := range entries {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	var b strings.Builder
	b.WriteString("# Secret aliases\n")
	for _, alias := range aliases {
		b.WriteString(alias)
		b.WriteString("=")
		b.WriteString(entries[alias])
		b.WriteString("\n")
	}
	return WriteFile(t, dir, "secrets.properties", b.String())
}
