// Package config provides the optional YAML configuration of the package
// index tools. Values set here are defaults; command-line flags win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given. It may be absent.
const DefaultPath = "pkgindex.yaml"

// Sentinel errors for configuration validation
var (
	ErrVersionRequired   = errors.New("version is required")
	ErrInvalidRepository = errors.New("github_repository must be in owner/repo format")
	ErrInvalidLogFormat  = errors.New("log format must be json or text")
	ErrInvalidSuffix     = errors.New("package_suffix must not contain whitespace or path separators")
)

// Config represents the top-level configuration structure.
type Config struct {
	Version  string        `yaml:"version"`
	Metadata Metadata      `yaml:"metadata"`
	Log      LogConfig     `yaml:"log"`
	Index    IndexConfig   `yaml:"index"`
	Storage  StorageConfig `yaml:"storage"`
	Signing  SigningConfig `yaml:"signing"`
	Release  ReleaseConfig `yaml:"release"`
}

// Metadata represents metadata about the configuration.
type Metadata struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json (default) or text
}

// IndexConfig holds defaults for the update command.
type IndexConfig struct {
	Input         string `yaml:"input"`
	Output        string `yaml:"output"`
	DownloadURL   string `yaml:"download_url"`
	PackageSuffix string `yaml:"package_suffix"`
	Maintainer    string `yaml:"maintainer"`
	PlatformName  string `yaml:"platform_name"`
}

// StorageConfig represents storage configuration for update history.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// SigningConfig points at the public keys archives are verified against.
type SigningConfig struct {
	KeyringDir string `yaml:"keyring_dir"`
}

// ReleaseConfig represents GitHub release configuration.
type ReleaseConfig struct {
	GitHubRepository    string `yaml:"github_repository"`     // Repository in "owner/repo" format
	DraftRelease        bool   `yaml:"draft_release"`         // Create as draft (default: false)
	ReleaseNameTemplate string `yaml:"release_name_template"` // e.g., "{package} {version}"
}

// ReleaseName renders the release name template. Without a template the
// name is "<package> <version>".
func (r ReleaseConfig) ReleaseName(pkg, version string) string {
	tmpl := r.ReleaseNameTemplate
	if tmpl == "" {
		tmpl = "{package} {version}"
	}
	return strings.NewReplacer("{package}", pkg, "{version}", version).Replace(tmpl)
}

// LoadConfig loads and parses the configuration from a YAML file.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// LoadOptional loads filePath, falling back to DefaultConfig when the file
// does not exist and was not explicitly requested.
func LoadOptional(filePath string, explicit bool) (*Config, error) {
	cfg, err := LoadConfig(filePath)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return nil, err
}

// Validate validates the configuration structure and required fields.
func (c *Config) Validate() error {
	if c.Version == "" {
		return ErrVersionRequired
	}
	switch c.Log.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Log.Format)
	}
	if s := c.Index.PackageSuffix; s != "" && strings.ContainsAny(s, " \t\n/\\") {
		return fmt.Errorf("index: %w: %q", ErrInvalidSuffix, s)
	}
	if err := c.Release.Validate(); err != nil {
		return fmt.Errorf("release: %w", err)
	}
	return nil
}

// Validate validates release configuration.
func (r *ReleaseConfig) Validate() error {
	if r.GitHubRepository == "" {
		return nil
	}
	parts := strings.Split(r.GitHubRepository, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("%w: %q", ErrInvalidRepository, r.GitHubRepository)
	}
	return nil
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Index: IndexConfig{
			Input:  "package_index.json",
			Output: "package_index.json",
		},
	}
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(config *Config, filePath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", filePath, err)
	}
	return nil
}
