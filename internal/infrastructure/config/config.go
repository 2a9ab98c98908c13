package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Campus Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	Security SecurityConfig `yaml:"security"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServiceConfig contains service identity settings.
type ServiceConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"` // development, staging, production
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains token signing, cookie, and password hashing
// settings.
type SecurityConfig struct {
	Tokens TokenConfig  `yaml:"tokens"`
	Cookie CookieConfig `yaml:"cookie"`
	Argon2 Argon2Config `yaml:"argon2"`

	// GeneratedSecrets reports that Load generated ephemeral signing
	// secrets because none were configured. Only possible in the
	// development environment; every token dies with the process.
	GeneratedSecrets bool `yaml:"-"`
}

// TokenConfig contains signing secrets and token lifetimes.
// Access and refresh tokens are signed with independent secrets.
type TokenConfig struct {
	AccessSecret    string `yaml:"access_secret"`
	RefreshSecret   string `yaml:"refresh_secret"`
	AccessTokenTTL  int    `yaml:"access_token_ttl"`  // minutes
	RefreshTokenTTL int    `yaml:"refresh_token_ttl"` // minutes
}

// CookieConfig contains refresh-cookie attributes.
type CookieConfig struct {
	Secure   bool   `yaml:"secure"`
	SameSite string `yaml:"same_site"` // lax, strict, none
}

// Argon2Config contains Argon2id cost parameters.
// Zero values fall back to the hasher defaults.
type Argon2Config struct {
	Time     int `yaml:"time"`
	MemoryKB int `yaml:"memory_kb"`
	Threads  int `yaml:"threads"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CAMPUS_SECTION_KEY
// For example: CAMPUS_DATABASE_PATH, CAMPUS_ACCESS_SECRET
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.generateDevSecrets(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "campus-core",
			Environment: "development",
		},
		Database: DatabaseConfig{
			Path:        "./data/campus.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Security: SecurityConfig{
			Tokens: TokenConfig{
				AccessTokenTTL:  15,
				RefreshTokenTTL: 7 * 24 * 60,
			},
			Cookie: CookieConfig{
				Secure:   true,
				SameSite: "lax",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CAMPUS_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CAMPUS_ENVIRONMENT"); v != "" {
		cfg.Service.Environment = v
	}

	// Database
	if v := os.Getenv("CAMPUS_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("CAMPUS_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("CAMPUS_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Security - signing secrets (IMPORTANT: always set in production)
	if v := os.Getenv("CAMPUS_ACCESS_SECRET"); v != "" {
		cfg.Security.Tokens.AccessSecret = v
	}
	if v := os.Getenv("CAMPUS_REFRESH_SECRET"); v != "" {
		cfg.Security.Tokens.RefreshSecret = v
	}
}

// generateDevSecrets fills in ephemeral signing secrets when none are
// configured. This is a development convenience only; any other
// environment fails validation instead, because generated secrets
// silently invalidate every outstanding token on restart.
func (c *Config) generateDevSecrets() error {
	if !c.IsDevelopment() {
		return nil
	}
	if c.Security.Tokens.AccessSecret != "" || c.Security.Tokens.RefreshSecret != "" {
		return nil
	}

	secrets := make([]byte, 64)
	if _, err := rand.Read(secrets); err != nil {
		return fmt.Errorf("generating development secrets: %w", err)
	}
	c.Security.Tokens.AccessSecret = hex.EncodeToString(secrets[:32])
	c.Security.Tokens.RefreshSecret = hex.EncodeToString(secrets[32:])
	c.Security.GeneratedSecrets = true
	return nil
}

// IsDevelopment reports whether the service runs in the development
// environment.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Service.Environment, "development")
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Service.Name == "" {
		errs = append(errs, "service.name is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Both signing secrets are REQUIRED and must be independent.
	// A shared or weak secret would let a stolen refresh token be
	// replayed as an access token, or tokens be forged outright.
	const minSecretLength = 32
	tokens := c.Security.Tokens
	switch {
	case tokens.AccessSecret == "":
		errs = append(errs, "security.tokens.access_secret is required (set CAMPUS_ACCESS_SECRET environment variable)")
	case len(tokens.AccessSecret) < minSecretLength:
		errs = append(errs, "security.tokens.access_secret must be at least 32 characters")
	}
	switch {
	case tokens.RefreshSecret == "":
		errs = append(errs, "security.tokens.refresh_secret is required (set CAMPUS_REFRESH_SECRET environment variable)")
	case len(tokens.RefreshSecret) < minSecretLength:
		errs = append(errs, "security.tokens.refresh_secret must be at least 32 characters")
	}
	if tokens.AccessSecret != "" && tokens.AccessSecret == tokens.RefreshSecret {
		errs = append(errs, "security.tokens.access_secret and refresh_secret must be distinct")
	}

	if tokens.AccessTokenTTL <= 0 {
		errs = append(errs, "security.tokens.access_token_ttl must be positive")
	}
	if tokens.RefreshTokenTTL <= 0 {
		errs = append(errs, "security.tokens.refresh_token_ttl must be positive")
	}

	switch strings.ToLower(c.Security.Cookie.SameSite) {
	case "", "lax", "strict", "none":
	default:
		errs = append(errs, "security.cookie.same_site must be lax, strict, or none")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetAccessTokenTTL returns the access token lifetime as a Duration.
func (c *Config) GetAccessTokenTTL() time.Duration {
	return time.Duration(c.Security.Tokens.AccessTokenTTL) * time.Minute
}

// GetRefreshTokenTTL returns the refresh token lifetime as a Duration.
func (c *Config) GetRefreshTokenTTL() time.Duration {
	return time.Duration(c.Security.Tokens.RefreshTokenTTL) * time.Minute
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
