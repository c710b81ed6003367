package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crm-splash.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  manifest_url: "https://updates.example.com/latest"

paths:
  install_dir: "./client"
  manifest_file: "./state/manifest_local.json"

client:
  executable: "CRMClient.exe"
  args: ["--fullscreen"]

http:
  timeout: 10s

serve:
  listen_addr: "127.0.0.1:9000"
  root_dir: "/srv/channel"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://updates.example.com/latest", cfg.Server.ManifestURL)
	assert.Equal(t, "./client", cfg.Paths.InstallDir)
	assert.Equal(t, "./state/manifest_local.json", cfg.Paths.ManifestFile)
	assert.Equal(t, "CRMClient.exe", cfg.Client.Executable)
	assert.Equal(t, []string{"--fullscreen"}, cfg.Client.Args)
	assert.Equal(t, 10*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, "127.0.0.1:9000", cfg.Serve.ListenAddr)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  manifest_url: "https://updates.example.com/latest"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultInstallDir, cfg.Paths.InstallDir)
	assert.Equal(t, DefaultManifestFile, cfg.Paths.ManifestFile)
	assert.Equal(t, DefaultHTTPTimeout, cfg.HTTP.Timeout)
	assert.Equal(t, DefaultListenAddr, cfg.Serve.ListenAddr)
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("UPDATE_HOST", "updates.example.com")
	t.Setenv("INSTALL_ROOT", "/opt/crm")

	path := writeConfig(t, `
server:
  manifest_url: "https://${UPDATE_HOST}/latest"

paths:
  install_dir: "${INSTALL_ROOT}/app"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://updates.example.com/latest", cfg.Server.ManifestURL)
	assert.Equal(t, "/opt/crm/app", cfg.Paths.InstallDir)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not: a: mapping")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoadInvalidTimeout(t *testing.T) {
	path := writeConfig(t, `
server:
  manifest_url: "https://updates.example.com/latest"

http:
  timeout: "soon"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid http.timeout")
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:   "empty manifest url is allowed at load time",
			mutate: func(c *Config) { c.Server.ManifestURL = "" },
		},
		{
			name:    "manifest url without scheme",
			mutate:  func(c *Config) { c.Server.ManifestURL = "updates.example.com/latest" },
			wantErr: "must be an http(s) URL",
		},
		{
			name:    "missing install dir",
			mutate:  func(c *Config) { c.Paths.InstallDir = "" },
			wantErr: "paths.install_dir is required",
		},
		{
			name:    "missing manifest file",
			mutate:  func(c *Config) { c.Paths.ManifestFile = "" },
			wantErr: "paths.manifest_file is required",
		},
		{
			name:    "advertise url without scheme",
			mutate:  func(c *Config) { c.Serve.AdvertiseURL = "channel.example.com/files" },
			wantErr: "serve.advertise_url must be an http(s) URL",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{
				Server: ServerConfig{ManifestURL: "https://updates.example.com/latest"},
			}
			cfg.ApplyDefaults()
			tc.mutate(cfg)

			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
			}
		})
	}
}

func TestValidateSync(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	require.Error(t, cfg.ValidateSync())

	cfg.Server.ManifestURL = "https://updates.example.com/latest"
	assert.NoError(t, cfg.ValidateSync())
}

func TestValidateServe(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	require.Error(t, cfg.ValidateServe(), "root_dir is required")

	cfg.Serve.RootDir = t.TempDir()
	assert.NoError(t, cfg.ValidateServe())
}
