package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	dserrors "github.com/systmms/secvault/internal/errors"
	"github.com/systmms/secvault/internal/logging"
	"github.com/systmms/secvault/internal/sysprop"
	"gopkg.in/yaml.v3"
)

// NestedKey is the top-level key under which the vault configuration may be
// nested when it shares a file with other settings.
const NestedKey = "securevault"

// DefaultReaderType is used when the masterKeyReader section is omitted.
const DefaultReaderType = "default"

// DefaultRepositoryName names the primary legacy repository when it has no name.
const DefaultRepositoryName = "primary"

// Config holds the runtime configuration
type Config struct {
	Path       string
	Logger     *logging.Logger
	Properties *sysprop.Properties
	Definition *Definition
}

// Definition is the securevault configuration document.
type Definition struct {
	MasterKeyReader    TypedConfig               `yaml:"masterKeyReader"`
	SecretRepository   *RepositoryConfig         `yaml:"secretRepository,omitempty"`
	SecretRepositories []RepositoryConfig        `yaml:"secretRepositories,omitempty"`
	SecretProviders    map[string]ProviderConfig `yaml:"secretProviders,omitempty"`
	// ProtectedTokens restricts which aliases $secret{...} markers may
	// resolve. Empty means every alias known to the registry.
	ProtectedTokens []string `yaml:"protectedTokens,omitempty"`
}

// TypedConfig is a {type, parameters} section selecting a pluggable
// implementation by type id.
type TypedConfig struct {
	Type       string            `yaml:"type"`
	Parameters map[string]string `yaml:"parameters,omitempty"`
}

// Param returns the named parameter, or def when it is unset or blank.
func (t TypedConfig) Param(name, def string) string {
	if v, ok := t.Parameters[name]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

// RepositoryConfig configures one member of the legacy repository chain.
type RepositoryConfig struct {
	Name       string            `yaml:"name,omitempty"`
	Type       string            `yaml:"type"`
	Parent     string            `yaml:"parent,omitempty"`
	Parameters map[string]string `yaml:"parameters,omitempty"`
}

// Typed returns the {type, parameters} view of the repository.
func (r RepositoryConfig) Typed() TypedConfig {
	return TypedConfig{Type: r.Type, Parameters: r.Parameters}
}

// ProviderConfig configures a named provider and its repositories.
type ProviderConfig struct {
	Type         string                 `yaml:"type"`
	Parameters   map[string]string      `yaml:"parameters,omitempty"`
	Repositories map[string]TypedConfig `yaml:"repositories"`
}

// Load reads, substitutes, validates and parses the configuration file
func (c *Config) Load() error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return dserrors.ConfigError{
				Field:      "path",
				Value:      c.Path,
				Message:    "configuration file not found",
				Suggestion: "Pass --config with the path to your securevault.yaml",
			}
		}
		return dserrors.Configuration("load config", "cannot read "+c.Path, err)
	}

	def, err := Parse(data, c.Properties)
	if err != nil {
		return err
	}
	def.resolvePaths(filepath.Dir(c.Path))

	c.Definition = def
	logging.OrDiscard(c.Logger).Debug("Loaded configuration from %s", c.Path)
	return nil
}

// Parse substitutes placeholders in data, validates it against the
// configuration schema and decodes it.
func Parse(data []byte, props *sysprop.Properties) (*Definition, error) {
	text, err := Substitute(string(data), props)
	if err != nil {
		return nil, err
	}

	var root map[string]interface{}
	if err := yaml.Unmarshal([]byte(text), &root); err != nil {
		return nil, dserrors.Configuration("parse config", "invalid YAML syntax", err)
	}
	if nested, ok := root[NestedKey].(map[string]interface{}); ok {
		root = nested
	}
	if len(root) == 0 {
		return nil, dserrors.Configuration("parse config", "configuration is empty", nil)
	}

	if err := validateSchema(root); err != nil {
		return nil, err
	}

	raw, err := yaml.Marshal(root)
	if err != nil {
		return nil, dserrors.Configuration("parse config", "cannot re-encode document", err)
	}
	var def Definition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return nil, dserrors.Configuration("parse config", "cannot decode document", err)
	}
	if err := def.validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// MasterKeyReaderConfig returns the reader section, defaulting the type.
func (d *Definition) MasterKeyReaderConfig() TypedConfig {
	cfg := d.MasterKeyReader
	if cfg.Type == "" {
		cfg.Type = DefaultReaderType
	}
	return cfg
}

// LegacyRepositories returns the legacy chain in resolution order: the
// primary secretRepository first, then secretRepositories.
func (d *Definition) LegacyRepositories() []RepositoryConfig {
	var chain []RepositoryConfig
	if d.SecretRepository != nil {
		primary := *d.SecretRepository
		if primary.Name == "" {
			primary.Name = DefaultRepositoryName
		}
		chain = append(chain, primary)
	}
	return append(chain, d.SecretRepositories...)
}

// ProviderNames returns the configured provider names in sorted order.
func (d *Definition) ProviderNames() []string {
	names := make([]string, 0, len(d.SecretProviders))
	for name := range d.SecretProviders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Definition) validate() error {
	seen := make(map[string]bool)
	if d.SecretRepository != nil {
		seen[d.LegacyRepositories()[0].Name] = true
	}
	for i, repo := range d.SecretRepositories {
		if repo.Name == "" {
			return dserrors.ConfigError{
				Field:      fmt.Sprintf("secretRepositories[%d].name", i),
				Message:    "name is required for additional repositories",
				Suggestion: "Give every secretRepositories entry a unique name",
			}
		}
		if seen[repo.Name] {
			return dserrors.ConfigError{
				Field:   fmt.Sprintf("secretRepositories[%d].name", i),
				Value:   repo.Name,
				Message: "duplicate repository name",
			}
		}
		seen[repo.Name] = true
	}
	return nil
}

// resolvePaths makes file parameters relative to the configuration file.
func (d *Definition) resolvePaths(base string) {
	resolve := func(params map[string]string) {
		for _, key := range pathParameters {
			if p, ok := params[key]; ok && p != "" && !filepath.IsAbs(p) {
				params[key] = filepath.Join(base, p)
			}
		}
	}
	resolve(d.MasterKeyReader.Parameters)
	if d.SecretRepository != nil {
		resolve(d.SecretRepository.Parameters)
	}
	for _, repo := range d.SecretRepositories {
		resolve(repo.Parameters)
	}
	for _, provider := range d.SecretProviders {
		for _, repo := range provider.Repositories {
			resolve(repo.Parameters)
		}
	}
}

// pathParameters are the parameters holding file locations.
var pathParameters = []string{"masterKeyReaderFile", "keystoreLocation", "secretPropertiesFile"}

// toJSON converts a decoded YAML document for schema validation.
func toJSON(doc map[string]interface{}) ([]byte, error) {
	return json.Marshal(doc)
}
