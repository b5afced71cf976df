// Package config provides file-based configuration with environment overrides.
// XML is the default format; .yaml and .yml files are read as YAML.
package config

import (
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/gommon/bytes"
	"gopkg.in/yaml.v3"

	"github.com/email-verifier/console/internal/inspector"
)

// Environment variables that override file values.
const (
	EnvBaseURL        = "VERIFIER_BASE_URL"
	EnvUploadPath     = "VERIFIER_UPLOAD_PATH"
	EnvTimeoutSeconds = "VERIFIER_TIMEOUT_SECONDS"
	EnvPort           = "PORT"
	EnvSpoolDir       = "VERIFIER_SPOOL_DIR"
	EnvLogLevel       = "VERIFIER_LOG_LEVEL"
	EnvHeaderMode     = "VERIFIER_HEADER_MODE"
)

// DefaultFileName is the config file looked up next to the executable.
const DefaultFileName = "EmailVerifier.config.xml"

// AppConfig represents the root configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"EmailVerifier" yaml:"-"`

	// Remote verification service
	Service ServiceConfig `xml:"Service" yaml:"service"`

	// Console server
	Server ServerConfig `xml:"Server" yaml:"server"`

	Inspector InspectorConfig `xml:"Inspector" yaml:"inspector"`

	Session SessionConfig `xml:"Session" yaml:"session"`

	Advanced AdvancedConfig `xml:"Advanced" yaml:"advanced"`
}

// ServiceConfig locates the upload endpoint.
type ServiceConfig struct {
	BaseURL    string `xml:"BaseURL" yaml:"base_url"`
	UploadPath string `xml:"UploadPath" yaml:"upload_path"`
	// 0 disables the client-side timeout.
	TimeoutSeconds int `xml:"TimeoutSeconds" yaml:"timeout_seconds"`
}

// ServerConfig contains console HTTP server settings
type ServerConfig struct {
	Port           int    `xml:"Port" yaml:"port"`
	BindAddress    string `xml:"BindAddress" yaml:"bind_address"`
	EnableCORS     bool   `xml:"EnableCORS" yaml:"enable_cors"`
	AllowOrigins   string `xml:"AllowOrigins" yaml:"allow_origins"`
	ReadTimeout    int    `xml:"ReadTimeoutSeconds" yaml:"read_timeout_seconds"`
	WriteTimeout   int    `xml:"WriteTimeoutSeconds" yaml:"write_timeout_seconds"`
	IdleTimeout    int    `xml:"IdleTimeoutSeconds" yaml:"idle_timeout_seconds"`
	BodyLimit      string `xml:"BodyLimit" yaml:"body_limit"`
	SpoolDirectory string `xml:"SpoolDirectory" yaml:"spool_directory"`
}

// InspectorConfig selects how header rows are split.
type InspectorConfig struct {
	HeaderMode string `xml:"HeaderMode" yaml:"header_mode"`
}

// SessionConfig bounds console sessions.
type SessionConfig struct {
	MaxSessions            int `xml:"MaxSessions" yaml:"max_sessions"`
	MaxIdleMinutes         int `xml:"MaxIdleMinutes" yaml:"max_idle_minutes"`
	CleanupIntervalMinutes int `xml:"CleanupIntervalMinutes" yaml:"cleanup_interval_minutes"`
}

// AdvancedConfig contains logging options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel" yaml:"log_level"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging" yaml:"enable_request_logging"`
}

// DefaultConfig returns the default configuration. It has no service base
// URL; one must be supplied through the file or VERIFIER_BASE_URL.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Service: ServiceConfig{
			BaseURL:        "",
			UploadPath:     "/upload",
			TimeoutSeconds: 0,
		},
		Server: ServerConfig{
			Port:           8090,
			BindAddress:    "127.0.0.1",
			EnableCORS:     true,
			AllowOrigins:   "http://localhost:3000,http://127.0.0.1:3000",
			ReadTimeout:    30,
			WriteTimeout:   0,
			IdleTimeout:    120,
			BodyLimit:      "32M",
			SpoolDirectory: "./data/spool",
		},
		Inspector: InspectorConfig{
			HeaderMode: string(inspector.ModeNaive),
		},
		Session: SessionConfig{
			MaxSessions:            10,
			MaxIdleMinutes:         30,
			CleanupIntervalMinutes: 5,
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			EnableRequestLogging: true,
		},
	}
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// LoadConfig loads configuration from path, creating a default file when it
// does not exist, then applies environment overrides.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if isYAML(configPath) {
			err = yaml.Unmarshal(data, config)
		} else {
			err = xml.Unmarshal(data, config)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := config.applyEnvironmentOverrides(); err != nil {
		return nil, err
	}

	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save writes the configuration in the format implied by the file extension.
func (c *AppConfig) Save(configPath string) error {
	var content []byte
	if isYAML(configPath) {
		output, err := yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		content = append([]byte("# Email Verifier configuration\n# Set service.base_url or VERIFIER_BASE_URL before uploading\n\n"), output...)
	} else {
		output, err := xml.MarshalIndent(c, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		header := []byte(xml.Header + "\n<!-- Email Verifier Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
		content = append(header, output...)
	}

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the settings needed to reach the verification service.
func (c *AppConfig) Validate() error {
	raw := strings.TrimSpace(c.Service.BaseURL)
	if raw == "" {
		return fmt.Errorf("service base URL is not configured (set %s or Service.BaseURL)", EnvBaseURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid service base URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid service base URL %q: must be an absolute http(s) URL", raw)
	}
	if c.Service.TimeoutSeconds < 0 {
		return fmt.Errorf("service timeout must not be negative")
	}
	if _, err := inspector.ParseMode(c.Inspector.HeaderMode); err != nil {
		return err
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() error {
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.Service.BaseURL = v
	}
	if v := os.Getenv(EnvUploadPath); v != "" {
		c.Service.UploadPath = v
	}
	if v := os.Getenv(EnvTimeoutSeconds); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvTimeoutSeconds, err)
		}
		c.Service.TimeoutSeconds = n
	}
	if port := os.Getenv(EnvPort); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv(EnvSpoolDir); v != "" {
		c.Server.SpoolDirectory = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Advanced.LogLevel = v
	}
	if v := os.Getenv(EnvHeaderMode); v != "" {
		c.Inspector.HeaderMode = v
	}
	return nil
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if c.Server.SpoolDirectory != "" && !filepath.IsAbs(c.Server.SpoolDirectory) {
		c.Server.SpoolDirectory = filepath.Join(configDir, c.Server.SpoolDirectory)
	}
}

// GetServerAddr returns the console server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// GetServiceTimeout returns the upload timeout; zero means none.
func (c *AppConfig) GetServiceTimeout() time.Duration {
	return time.Duration(c.Service.TimeoutSeconds) * time.Second
}

// GetBodyLimitBytes returns Server.BodyLimit in bytes; zero means unlimited.
func (c *AppConfig) GetBodyLimitBytes() (int64, error) {
	if strings.TrimSpace(c.Server.BodyLimit) == "" {
		return 0, nil
	}
	n, err := bytes.Parse(c.Server.BodyLimit)
	if err != nil {
		return 0, fmt.Errorf("invalid body limit %q: %w", c.Server.BodyLimit, err)
	}
	return n, nil
}

// GetHeaderMode returns the configured header split mode.
func (c *AppConfig) GetHeaderMode() inspector.Mode {
	mode, err := inspector.ParseMode(c.Inspector.HeaderMode)
	if err != nil {
		return inspector.ModeNaive
	}
	return mode
}

// GetOrigins returns the CORS origins as a list.
func (c *AppConfig) GetOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.Server.AllowOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	if c.Server.SpoolDirectory == "" {
		return nil
	}
	if err := os.MkdirAll(c.Server.SpoolDirectory, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", c.Server.SpoolDirectory, err)
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
