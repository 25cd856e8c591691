package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/relaywave/agentbridge/internal/tokenstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// TokenStorageType represents the different storage types supported for the
// broker API key.
type TokenStorageType string

const (
	TokenStorageTypeFile    TokenStorageType = "file"
	TokenStorageTypeEnv     TokenStorageType = "env"
	TokenStorageTypeKeyring TokenStorageType = "keyring"
)

// Default configuration values
const (
	DefaultConfigLogFormat       = LogFormatText
	DefaultConfigServerHost      = "127.0.0.1"
	DefaultConfigServerPort      = 4000
	DefaultConfigShutdownTimeout = 5 * time.Second
	DefaultConfigAuthStorage     = TokenStorageTypeFile
	DefaultConfigUpstreamBaseURL = "https://api.agentbridge.example.com/v1/agent/run"
	DefaultConfigBrokerBaseURL   = "https://broker.agentbridge.example.com"
	DefaultConfigRefreshURL      = "https://broker.agentbridge.example.com/oauth/token"
	DefaultConfigPoolSize        = 3
	DefaultConfigDefaultModel    = "claude-sonnet-4-5"
	DefaultConfigClientVersion   = "1.0.0"
)

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// UpstreamConfig holds the streamer's target and client-identity settings.
type UpstreamConfig struct {
	BaseURL       string `json:"base_url" validate:"required,url"`
	ClientVersion string `json:"client_version"`
	OSCategory    string `json:"os_category"`
	OSName        string `json:"os_name"`
	OSVersion     string `json:"os_version"`
}

// BrokerConfig holds the session broker's location and the credential pool
// it feeds.
type BrokerConfig struct {
	BaseURL    string `json:"base_url" validate:"required,url"`
	RefreshURL string `json:"refresh_url" validate:"required,url"`
	PoolSize   int    `json:"pool_size"`
}

// AuthConfig describes where the broker API key (this proxy's own
// credential, not a per-session access token) is stored.
type AuthConfig struct {
	Storage TokenStorageType `json:"storage" validate:"required,oneof=file env keyring"`

	File        string `json:"file,omitempty"`
	EnvKey      string `json:"env_key,omitempty"`
	KeyringUser string `json:"keyring_user,omitempty"`
}

// NewTokenStore creates a TokenStore from the authentication configuration.
func (a *AuthConfig) NewTokenStore() (tokenstore.TokenStore, error) {
	switch a.Storage {
	case TokenStorageTypeFile:
		return tokenstore.NewFileStore(a.File)
	case TokenStorageTypeEnv:
		return tokenstore.NewEnvStore(a.EnvKey)
	case TokenStorageTypeKeyring:
		return tokenstore.NewKeyringStore("agentbridge-broker-key", a.KeyringUser)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", a.Storage)
	}
}

// DefaultModelConfig names the model the assembler advertises upstream when
// a request omits one.
type DefaultModelConfig struct {
	Model string `json:"model"`
}

// Config holds the application's configuration.
type Config struct {
	LogLevel     slog.Level         `json:"log_level"`
	LogFormat    LogFormat          `json:"log_format" validate:"oneof=text json"`
	Server       ServerConfig       `json:"server"`
	Shutdown     ShutdownConfig     `json:"shutdown"`
	Upstream     UpstreamConfig     `json:"upstream"`
	Broker       BrokerConfig       `json:"broker"`
	Auth         AuthConfig         `json:"auth"`
	DefaultModel DefaultModelConfig `json:"default_model"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfigServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultConfigServerPort
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = DefaultConfigUpstreamBaseURL
	}
	if c.Upstream.ClientVersion == "" {
		c.Upstream.ClientVersion = DefaultConfigClientVersion
	}
	if c.Broker.BaseURL == "" {
		c.Broker.BaseURL = DefaultConfigBrokerBaseURL
	}
	if c.Broker.RefreshURL == "" {
		c.Broker.RefreshURL = DefaultConfigRefreshURL
	}
	if c.Broker.PoolSize == 0 {
		c.Broker.PoolSize = DefaultConfigPoolSize
	}
	if c.DefaultModel.Model == "" {
		c.DefaultModel.Model = DefaultConfigDefaultModel
	}
	if c.Auth.Storage == "" {
		c.Auth.Storage = DefaultConfigAuthStorage
	}

	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("auth.file required (auto-detect failed: %w)", err)
			}
			c.Auth.File = filepath.Join(configDir, "agentbridge", "broker-key")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("auth.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Auth.KeyringUser = currentUser.Username
		}
	case TokenStorageTypeEnv:
		// env_key must be explicitly configured (no sensible default)
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.File == "" {
			return errors.New("file path required for file storage")
		}
	case TokenStorageTypeEnv:
		if c.Auth.EnvKey == "" {
			return errors.New("env_key required for env storage")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	}

	if c.Broker.PoolSize <= 0 {
		return errors.New("broker.pool_size must be positive")
	}

	return nil
}
