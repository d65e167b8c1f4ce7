// Package config loads servicehub configuration from ~/.servicehub/config.yaml
// and SERVICEHUB_* environment variables.
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/servicehub/internal/errors"
	"github.com/felixgeelhaar/servicehub/internal/log"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "SERVICEHUB_"

// Storage backends accepted by StorageConfig.Backend.
const (
	BackendFile   = "file"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// Config is the complete client configuration.
type Config struct {
	API      APIConfig      `yaml:"api" envPrefix:"API_"`
	Storage  StorageConfig  `yaml:"storage" envPrefix:"STORAGE_"`
	Firebase FirebaseConfig `yaml:"firebase" envPrefix:"FIREBASE_"`
	Google   GoogleConfig   `yaml:"google" envPrefix:"GOOGLE_"`
	Apple    AppleConfig    `yaml:"apple" envPrefix:"APPLE_"`
	Logging  LoggingConfig  `yaml:"logging" envPrefix:"LOG_"`
}

// APIConfig configures the authenticated request pipeline.
type APIConfig struct {
	BaseURL             string        `yaml:"base_url" env:"BASE_URL"`
	RequestTimeout      time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	ConnectTimeout      time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
	MaxRetries          int           `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryDelay          time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
	RefreshTokenOnRetry bool          `yaml:"refresh_token_on_retry" env:"REFRESH_TOKEN_ON_RETRY"`
}

// StorageConfig selects where the bearer token is persisted.
type StorageConfig struct {
	Backend       string `yaml:"backend" env:"BACKEND"`
	Path          string `yaml:"path" env:"PATH"`
	EncryptionKey string `yaml:"encryption_key,omitempty" env:"ENCRYPTION_KEY"`
}

// FirebaseConfig configures the Firebase Identity Toolkit client.
type FirebaseConfig struct {
	APIKey             string `yaml:"api_key" env:"API_KEY"`
	IdentityToolkitURL string `yaml:"identity_toolkit_url" env:"IDENTITY_TOOLKIT_URL"`
	SecureTokenURL     string `yaml:"secure_token_url" env:"SECURE_TOKEN_URL"`
	RecaptchaToken     string `yaml:"recaptcha_token,omitempty" env:"RECAPTCHA_TOKEN"`
}

// GoogleConfig configures Google sign-in through the OIDC loopback flow.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id" env:"CLIENT_ID"`
	ClientSecret string `yaml:"client_secret,omitempty" env:"CLIENT_SECRET"`
	Issuer       string `yaml:"issuer" env:"ISSUER"`
	RedirectPort int    `yaml:"redirect_port" env:"REDIRECT_PORT"`
}

// AppleConfig configures Sign in with Apple.
type AppleConfig struct {
	ClientID       string `yaml:"client_id" env:"CLIENT_ID"`
	TeamID         string `yaml:"team_id" env:"TEAM_ID"`
	KeyID          string `yaml:"key_id" env:"KEY_ID"`
	PrivateKeyPath string `yaml:"private_key_path" env:"PRIVATE_KEY_PATH"`
	Issuer         string `yaml:"issuer" env:"ISSUER"`
	RedirectPort   int    `yaml:"redirect_port" env:"REDIRECT_PORT"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  log.Level  `yaml:"level" env:"LEVEL"`
	Format log.Format `yaml:"format" env:"FORMAT"`
	// File, when set, receives log records instead of stderr.
	File       string `yaml:"file,omitempty" env:"FILE"`
	MaxSize    int    `yaml:"max_size_mb,omitempty" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups,omitempty" env:"MAX_BACKUPS"`
	MaxAge     int    `yaml:"max_age_days,omitempty" env:"MAX_AGE_DAYS"`
	Compress   bool   `yaml:"compress,omitempty" env:"COMPRESS"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "http://localhost:8000/api",
			RequestTimeout: 30 * time.Second,
			ConnectTimeout: 10 * time.Second,
			MaxRetries:     3,
			RetryDelay:     time.Second,
		},
		Storage: StorageConfig{
			Backend: BackendFile,
		},
		Firebase: FirebaseConfig{
			IdentityToolkitURL: "https://identitytoolkit.googleapis.com",
			SecureTokenURL:     "https://securetoken.googleapis.com",
		},
		Google: GoogleConfig{
			Issuer: "https://accounts.google.com",
		},
		Apple: AppleConfig{
			Issuer: "https://appleid.apple.com",
		},
		Logging: LoggingConfig{
			Level:  log.LevelWarn,
			Format: log.FormatText,
		},
	}
}

// Dir returns the servicehub home directory: $SERVICEHUB_HOME or ~/.servicehub.
func Dir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeConfigLoadFailed, "cannot determine home directory", err)
	}
	return filepath.Join(home, ".servicehub"), nil
}

// Path returns the default configuration file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the YAML file at path (a missing file is not an error), applies
// environment overrides and validates the result. An empty path selects Path().
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := Path()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfigLoadFailed, fmt.Sprintf("failed to parse %s", path), err).
				WithSuggestion("Check the YAML syntax of the configuration file")
		}
	case os.IsNotExist(err):
	default:
		return nil, errors.Wrap(errors.ErrCodeConfigLoadFailed, fmt.Sprintf("failed to read %s", path), err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigLoadFailed, "failed to parse environment", err)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) resolvePaths() error {
	needStore := c.Storage.Path == "" && c.Storage.Backend != BackendMemory
	needLog := c.Logging.File != "" && !filepath.IsAbs(c.Logging.File)
	if !needStore && !needLog {
		return nil
	}
	dir, err := Dir()
	if err != nil {
		return err
	}
	if needLog {
		c.Logging.File = filepath.Join(dir, c.Logging.File)
	}
	if !needStore {
		return nil
	}
	switch c.Storage.Backend {
	case BackendBolt:
		c.Storage.Path = filepath.Join(dir, "auth.db")
	default:
		c.Storage.Path = filepath.Join(dir, "auth.json")
	}
	return nil
}

// Validate checks the configuration for values the client cannot work with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.NewConfigError("api.base_url", fmt.Sprintf("%q is not an absolute http(s) URL", c.API.BaseURL))
	}
	if c.API.RequestTimeout <= 0 {
		return errors.NewConfigError("api.request_timeout", "must be positive")
	}
	if c.API.ConnectTimeout <= 0 {
		return errors.NewConfigError("api.connect_timeout", "must be positive")
	}
	if c.API.MaxRetries < 0 {
		return errors.NewConfigError("api.max_retries", "must not be negative")
	}
	if c.API.RetryDelay < 0 {
		return errors.NewConfigError("api.retry_delay", "must not be negative")
	}

	if c.Logging.MaxSize < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAge < 0 {
		return errors.NewConfigError("logging", "rotation limits must not be negative")
	}

	switch c.Storage.Backend {
	case BackendFile, BackendBolt, BackendMemory:
	default:
		return errors.NewConfigError("storage.backend", fmt.Sprintf("unknown backend %q (want file, bolt or memory)", c.Storage.Backend))
	}

	return nil
}

// Marshal renders the configuration as YAML with secrets redacted.
func (c *Config) Marshal() ([]byte, error) {
	redacted := *c
	if redacted.Storage.EncryptionKey != "" {
		redacted.Storage.EncryptionKey = "***"
	}
	if redacted.Google.ClientSecret != "" {
		redacted.Google.ClientSecret = "***"
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&redacted); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes cfg to path atomically, creating the parent directory.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
