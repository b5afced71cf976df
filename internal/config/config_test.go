package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/email-verifier/console/internal/inspector"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{EnvBaseURL, EnvUploadPath, EnvTimeoutSeconds, EnvPort, EnvSpoolDir, EnvLogLevel, EnvHeaderMode} {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_CreatesDefault(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), DefaultFileName)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config should be written")

	assert.Equal(t, "", cfg.Service.BaseURL)
	assert.Equal(t, "/upload", cfg.Service.UploadPath)
	assert.Equal(t, time.Duration(0), cfg.GetServiceTimeout())
	assert.Equal(t, filepath.Join(filepath.Dir(path), "data", "spool"), cfg.Server.SpoolDirectory)
	assert.Error(t, cfg.Validate(), "no base URL is baked in")

	// The written file loads back to the same values.
	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Server, again.Server)
	assert.Equal(t, cfg.Service, again.Service)
}

func TestLoadConfig_XML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "verifier.xml")
	content := `<?xml version="1.0" encoding="UTF-8"?>
<EmailVerifier>
  <Service>
    <BaseURL>https://verify.example.com</BaseURL>
    <UploadPath>/upload</UploadPath>
    <TimeoutSeconds>45</TimeoutSeconds>
  </Service>
  <Server>
    <Port>9000</Port>
    <BindAddress>0.0.0.0</BindAddress>
    <SpoolDirectory>/var/spool/verifier</SpoolDirectory>
  </Server>
  <Inspector>
    <HeaderMode>quoted</HeaderMode>
  </Inspector>
</EmailVerifier>`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://verify.example.com", cfg.Service.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.GetServiceTimeout())
	assert.Equal(t, "0.0.0.0:9000", cfg.GetServerAddr())
	assert.Equal(t, "/var/spool/verifier", cfg.Server.SpoolDirectory)
	assert.Equal(t, inspector.ModeQuoted, cfg.GetHeaderMode())
	// Unset sections keep their defaults.
	assert.Equal(t, 10, cfg.Session.MaxSessions)
}

func TestLoadConfig_YAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "verifier.yaml")
	content := `
service:
  base_url: http://localhost:5000
  timeout_seconds: 10
server:
  port: 8123
  allow_origins: "http://a.test, http://b.test"
advanced:
  log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://localhost:5000", cfg.Service.BaseURL)
	assert.Equal(t, "/upload", cfg.Service.UploadPath)
	assert.Equal(t, 8123, cfg.Server.Port)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.GetOrigins())
	assert.Equal(t, "debug", cfg.Advanced.LogLevel)
}

func TestLoadConfig_YAMLDefaultIsWritten(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "conf", "verifier.yml")

	_, err := LoadConfig(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "base_url:")
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvBaseURL, "https://env.example.com")
	t.Setenv(EnvTimeoutSeconds, "7")
	t.Setenv(EnvPort, "8181")
	t.Setenv(EnvHeaderMode, "quoted")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), DefaultFileName))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://env.example.com", cfg.Service.BaseURL)
	assert.Equal(t, 7*time.Second, cfg.GetServiceTimeout())
	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, inspector.ModeQuoted, cfg.GetHeaderMode())
	assert.Equal(t, "warn", cfg.Advanced.LogLevel)

	t.Setenv(EnvTimeoutSeconds, "soon")
	_, err = LoadConfig(filepath.Join(t.TempDir(), DefaultFileName))
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv(EnvBaseURL)
	dir := t.TempDir()

	require.NoError(t, LoadEnvFile(filepath.Join(dir, "missing.env")))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte(EnvBaseURL+"=https://dotenv.example.com\n"), 0644))
	require.NoError(t, LoadEnvFile(path))
	t.Cleanup(func() { os.Unsetenv(EnvBaseURL) })

	assert.Equal(t, "https://dotenv.example.com", os.Getenv(EnvBaseURL))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *AppConfig) { c.Service.BaseURL = "https://x.io" }},
		{name: "missing base URL", mutate: func(c *AppConfig) {}, wantErr: true},
		{name: "relative base URL", mutate: func(c *AppConfig) { c.Service.BaseURL = "x.io/upload" }, wantErr: true},
		{name: "negative timeout", mutate: func(c *AppConfig) {
			c.Service.BaseURL = "https://x.io"
			c.Service.TimeoutSeconds = -1
		}, wantErr: true},
		{name: "bad header mode", mutate: func(c *AppConfig) {
			c.Service.BaseURL = "https://x.io"
			c.Inspector.HeaderMode = "tsv"
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestGetBodyLimitBytes(t *testing.T) {
	cfg := DefaultConfig()

	n, err := cfg.GetBodyLimitBytes()
	require.NoError(t, err)
	assert.Greater(t, n, int64(30_000_000))

	cfg.Server.BodyLimit = ""
	n, err = cfg.GetBodyLimitBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	cfg.Server.BodyLimit = "lots"
	_, err = cfg.GetBodyLimitBytes()
	assert.Error(t, err)
}
