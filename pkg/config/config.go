package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// DefaultPath is the config file Load reads from the working directory.
const DefaultPath = "config.yaml"

// Config holds all configuration for cutroom-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, signing keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	// MigrationsPath is the directory holding golang-migrate SQL files.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`

	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Workload WorkloadConfig `yaml:"workload"`
	HTTP     HTTPConfig     `yaml:"http"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT tokens are validated.
	// Set to false for local development without an identity provider.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWTSecret is an HMAC signing key shared with the identity provider.
	// Used when no JWKS endpoints are configured.
	JWTSecret string `yaml:"-" env:"JWT_SECRET"` // Secret - not in YAML

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"cutroom"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"cutroom_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MinConnections int32  `yaml:"min_connections" env:"PGMIN_CONNECTIONS" env-default:"2"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// WorkloadConfig holds the per-role capacity used for utilization and
// assignment checks.
type WorkloadConfig struct {
	EditorCapacity int `yaml:"editor_capacity" env:"WORKLOAD_EDITOR_CAPACITY" env-default:"8"`
	QCCapacity     int `yaml:"qc_capacity" env:"WORKLOAD_QC_CAPACITY" env-default:"10"`
}

// HTTPConfig holds settings for the public HTTP surface.
type HTTPConfig struct {
	// CORSOriginsStr is a comma-separated list of allowed browser origins.
	CORSOriginsStr string `yaml:"cors_origins" env:"CORS_ORIGINS" env-default:"http://localhost:5173"`
	CORSOrigins    []string `yaml:"-"`

	// RateLimitRPS is the sustained request rate allowed per caller. Zero disables limiting.
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS" env-default:"20"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST" env-default:"40"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// A .env file in the working directory, if present, is loaded into the
// environment first. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return LoadFrom(DefaultPath, version)
}

// LoadFrom reads configuration from the given YAML file with environment
// variable overrides.
func LoadFrom(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.parseComplexFields()

	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}
	if err := cfg.Workload.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workload configuration: %w", err)
	}
	if err := cfg.validateAuth(); err != nil {
		return nil, fmt.Errorf("invalid auth configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set
	if cfg.BaseURL == "" {
		scheme := "http"
		if cfg.TLSCertPath != "" {
			scheme = "https"
		}
		cfg.BaseURL = (&url.URL{
			Scheme: scheme,
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() {
	c.Auth.JWKSEndpoints = parseJWKSEndpoints(c.Auth.JWKSEndpointsStr)
	c.HTTP.CORSOrigins = splitList(c.HTTP.CORSOriginsStr)
	c.Database.Host = resolveHostForDocker(c.Database.Host)
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together and the files must exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

// validateAuth requires a key source whenever verification is on.
func (c *Config) validateAuth() error {
	if !c.Auth.EnableVerification {
		return nil
	}
	if c.Auth.JWTSecret == "" && len(c.Auth.JWKSEndpoints) == 0 {
		return fmt.Errorf("enable_verification requires JWT_SECRET or jwks_endpoints")
	}
	return nil
}

// Validate rejects capacities that would make every staff member unassignable.
func (w WorkloadConfig) Validate() error {
	if w.EditorCapacity <= 0 {
		return fmt.Errorf("editor_capacity must be positive, got %d", w.EditorCapacity)
	}
	if w.QCCapacity <= 0 {
		return fmt.Errorf("qc_capacity must be positive, got %d", w.QCCapacity)
	}
	return nil
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	for _, pair := range splitList(value) {
		issuer, jwksURL, ok := strings.Cut(pair, "=")
		if ok {
			endpoints[strings.TrimSpace(issuer)] = strings.TrimSpace(jwksURL)
		}
	}
	return endpoints
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// resolveHostForDocker maps a loopback database host to the Docker host
// gateway when running inside a container.
func resolveHostForDocker(host string) string {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	if isDockerResult && (host == "localhost" || host == "127.0.0.1") {
		return "host.docker.internal"
	}
	return host
}
