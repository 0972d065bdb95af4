package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the gateway.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                     // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	// Authentication configuration (admin API JWT verification)
	Auth AuthConfig `yaml:"auth"`

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Upstream LLM provider configuration
	Anthropic AnthropicConfig `yaml:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai"`

	// Proxy behavior configuration
	Proxy ProxyConfig `yaml:"proxy"`

	// Quota enforcement configuration
	Quota QuotaConfig `yaml:"quota"`

	// Outbound MCP tool-execution client configuration
	MCP MCPConfig `yaml:"mcp"`
}

// AuthConfig holds admin API authentication configuration.
type AuthConfig struct {
	// EnableVerification controls whether admin JWT tokens are validated.
	// Set to false for local development without an identity provider.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSURL is the JWKS endpoint used to verify admin bearer tokens.
	JWKSURL string `yaml:"jwks_url" env:"JWKS_URL" env-default:""`

	// Issuer is the expected `iss` claim on admin bearer tokens. Tokens from
	// any other issuer are rejected even if they carry a valid signature.
	Issuer string `yaml:"issuer" env:"AUTH_ISSUER" env-default:""`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"gateway"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"gateway"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MaxIdleConns   int32  `yaml:"max_idle_conns" env:"PGMAX_IDLE_CONNS" env-default:"5"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// AnthropicConfig holds connection settings for the upstream Anthropic Messages API.
type AnthropicConfig struct {
	BaseURL string `yaml:"base_url" env:"ANTHROPIC_BASE_URL" env-default:"https://api.anthropic.com"`
	APIKey  string `yaml:"-" env:"ANTHROPIC_API_KEY"` // Secret - not in YAML
}

// OpenAIConfig holds connection settings for the upstream OpenAI-compatible Chat Completions API.
type OpenAIConfig struct {
	BaseURL string `yaml:"base_url" env:"OPENAI_BASE_URL" env-default:"https://api.openai.com/v1"`
	APIKey  string `yaml:"-" env:"OPENAI_API_KEY"` // Secret - not in YAML
}

// ProxyConfig holds behavior settings for the streaming proxy orchestrator.
type ProxyConfig struct {
	// UpstreamTimeoutSeconds bounds how long the proxy waits for the
	// primary model's stream to complete.
	UpstreamTimeoutSeconds int `yaml:"upstream_timeout_seconds" env:"PROXY_UPSTREAM_TIMEOUT_SECONDS" env-default:"120"`

	// SecondaryModel is the model identifier used for dual-LLM context
	// evaluation of untrusted tool-result content.
	SecondaryModel string `yaml:"secondary_model" env:"PROXY_SECONDARY_MODEL" env-default:"gpt-4o-mini"`

	// MaxToolIterations bounds how many tool-call rounds the proxy will
	// accumulate and evaluate before giving up a single request.
	MaxToolIterations int `yaml:"max_tool_iterations" env:"PROXY_MAX_TOOL_ITERATIONS" env-default:"8"`

	// RequestsPerSecond and Burst configure the token-bucket rate limiter
	// applied per caller (agent ID, falling back to remote IP) to inbound
	// proxy requests.
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"PROXY_REQUESTS_PER_SECOND" env-default:"5"`
	Burst             int     `yaml:"burst" env:"PROXY_BURST" env-default:"10"`

	// GlobalRequestsPerSecond and GlobalBurst configure a second token
	// bucket shared across every caller, protecting the process as a whole
	// even when request volume is spread across many distinct callers.
	GlobalRequestsPerSecond float64 `yaml:"global_requests_per_second" env:"PROXY_GLOBAL_REQUESTS_PER_SECOND" env-default:"50"`
	GlobalBurst             int     `yaml:"global_burst" env:"PROXY_GLOBAL_BURST" env-default:"100"`
}

// QuotaConfig holds settings for the quota enforcement layer's background
// reset sweep.
type QuotaConfig struct {
	// DefaultLimitCleanupInterval is loaded from configuration but not read
	// by any other package: organizations that don't specify their own
	// interval fall back to models.DefaultLimitCleanupInterval instead.
	DefaultLimitCleanupInterval string `yaml:"default_limit_cleanup_interval" env:"QUOTA_DEFAULT_LIMIT_CLEANUP_INTERVAL" env-default:"1h"`

	// SweepCron is the cron schedule the reset sweep runs on.
	SweepCron string `yaml:"sweep_cron" env:"QUOTA_SWEEP_CRON" env-default:"*/5 * * * *"`
}

// MCPConfig holds behavior settings for the outbound MCP tool-execution client.
type MCPConfig struct {
	// CallTimeoutSeconds bounds how long a single tool invocation is allowed
	// to run against an MCP endpoint before it is treated as a failure.
	CallTimeoutSeconds int `yaml:"call_timeout_seconds" env:"MCP_CALL_TIMEOUT_SECONDS" env-default:"30"`

	// CircuitBreakerThreshold and CircuitBreakerResetSeconds configure the
	// per-endpoint circuit breaker that trips after repeated failures.
	CircuitBreakerThreshold     int `yaml:"circuit_breaker_threshold" env:"MCP_CIRCUIT_BREAKER_THRESHOLD" env-default:"5"`
	CircuitBreakerResetSeconds  int `yaml:"circuit_breaker_reset_seconds" env:"MCP_CIRCUIT_BREAKER_RESET_SECONDS" env-default:"30"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// Environment variables override YAML values. Secrets (PGPASSWORD, ANTHROPIC_API_KEY,
// OPENAI_API_KEY) must come from environment variables (yaml:"-" fields).
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set.
	// Use HTTPS scheme if TLS is configured.
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

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist and be readable.
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

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

