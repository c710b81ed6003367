package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete launcher configuration
type Config struct {
	Server ServerConfig `yaml:"server"`
	Paths  PathsConfig  `yaml:"paths"`
	Client ClientConfig `yaml:"client"`
	HTTP   HTTPConfig   `yaml:"http"`
	Serve  ServeConfig  `yaml:"serve"`
}

// ServerConfig configures the remote update channel
type ServerConfig struct {
	ManifestURL string `yaml:"manifest_url"`
}

// PathsConfig configures local filesystem paths
type PathsConfig struct {
	InstallDir   string `yaml:"install_dir"`
	ManifestFile string `yaml:"manifest_file"`
}

// ClientConfig configures the downstream client executable
type ClientConfig struct {
	Executable string   `yaml:"executable"`
	Args       []string `yaml:"args"`
}

// HTTPConfig configures transport behavior for manifest and file requests
type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// UnmarshalYAML decodes the timeout from a duration string like "30s",
// which yaml.v3 does not handle for time.Duration on its own.
func (h *HTTPConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Timeout string `yaml:"timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Timeout == "" {
		return nil
	}

	timeout, err := time.ParseDuration(raw.Timeout)
	if err != nil {
		return fmt.Errorf("invalid http.timeout %q: %w", raw.Timeout, err)
	}
	h.Timeout = timeout
	return nil
}

// ServeConfig configures the update channel publisher
type ServeConfig struct {
	ListenAddr   string `yaml:"listen_addr"`
	RootDir      string `yaml:"root_dir"`
	AdvertiseURL string `yaml:"advertise_url"`
}

// Defaults applied when the config file leaves fields unset.
const (
	DefaultInstallDir   = "./app"
	DefaultManifestFile = "./manifest_local.json"
	DefaultListenAddr   = ":8632"
	DefaultHTTPTimeout  = 30 * time.Second
)

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Expand environment variables in string fields
	cfg.expandEnv()

	// Apply defaults
	cfg.ApplyDefaults()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Server.ManifestURL = os.ExpandEnv(c.Server.ManifestURL)
	c.Paths.InstallDir = os.ExpandEnv(c.Paths.InstallDir)
	c.Paths.ManifestFile = os.ExpandEnv(c.Paths.ManifestFile)
	c.Client.Executable = os.ExpandEnv(c.Client.Executable)
	c.Serve.ListenAddr = os.ExpandEnv(c.Serve.ListenAddr)
	c.Serve.RootDir = os.ExpandEnv(c.Serve.RootDir)
	c.Serve.AdvertiseURL = os.ExpandEnv(c.Serve.AdvertiseURL)
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Paths.InstallDir == "" {
		c.Paths.InstallDir = DefaultInstallDir
	}
	if c.Paths.ManifestFile == "" {
		c.Paths.ManifestFile = DefaultManifestFile
	}
	if c.HTTP.Timeout <= 0 {
		c.HTTP.Timeout = DefaultHTTPTimeout
	}
	if c.Serve.ListenAddr == "" {
		c.Serve.ListenAddr = DefaultListenAddr
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	// Validate update channel URL when set; sync-dependent commands enforce
	// presence separately via ValidateSync
	if c.Server.ManifestURL != "" && !isHTTPURL(c.Server.ManifestURL) {
		return fmt.Errorf("server.manifest_url must be an http(s) URL: %s", c.Server.ManifestURL)
	}

	// Validate paths
	if c.Paths.InstallDir == "" {
		return fmt.Errorf("paths.install_dir is required")
	}
	if c.Paths.ManifestFile == "" {
		return fmt.Errorf("paths.manifest_file is required")
	}

	// Validate advertised download base if set
	if c.Serve.AdvertiseURL != "" && !isHTTPURL(c.Serve.AdvertiseURL) {
		return fmt.Errorf("serve.advertise_url must be an http(s) URL: %s", c.Serve.AdvertiseURL)
	}

	return nil
}

// ValidateSync checks the fields a sync pass depends on
func (c *Config) ValidateSync() error {
	if c.Server.ManifestURL == "" {
		return fmt.Errorf("server.manifest_url is required")
	}
	return nil
}

// ValidateServe checks the fields serve mode depends on
func (c *Config) ValidateServe() error {
	if c.Serve.ListenAddr == "" {
		return fmt.Errorf("serve.listen_addr is required")
	}
	if c.Serve.RootDir == "" {
		return fmt.Errorf("serve.root_dir is required")
	}
	return nil
}

// isHTTPURL returns true if the value uses an http or https scheme
func isHTTPURL(v string) bool {
	return strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://")
}
