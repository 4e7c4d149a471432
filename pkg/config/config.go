// Package config provides unified configuration for the tool-call
// streaming pipeline and its demo server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (TOOLSTREAM_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the streaming pipeline server.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	MCP           MCPConfig           `yaml:"mcp"`
	Observability ObservabilityConfig `yaml:"observability"`
	Debug         DebugConfig         `yaml:"debug"`
	Stream        StreamConfig        `yaml:"stream"`
	Tools         ToolsConfig         `yaml:"tools"`
}

// StreamConfig holds the tool-call streaming pipeline's tunables: the
// chunker's idle-flush threshold, the typed-lag smoother's delay curve, and
// per-tool invocation timeouts.
type StreamConfig struct {
	ChunkerIdleFlushSeconds float64 `yaml:"chunker_idle_flush_seconds"`   // default: 1.5
	SmootherInitialDelayMS  int     `yaml:"smoother_initial_delay_ms"`    // default: 32
	SmootherZeroDelayQueue  int     `yaml:"smoother_zero_delay_queue"`    // default: 64
	DefaultToolTimeoutSecs  int     `yaml:"default_tool_timeout_seconds"` // default: 60
	CodeRunnerTimeoutSecs   int     `yaml:"code_runner_timeout_seconds"`  // default: 3600
	HTTPRequestTimeoutSecs  int     `yaml:"http_request_timeout_seconds"` // default: 60
}

// ToolsConfig holds the backing-service settings for the builtin tool
// implementations.
type ToolsConfig struct {
	SandboxRoot                string `yaml:"sandbox_root"`                  // optional; "" disables sandboxing
	MemoryRedisAddr            string `yaml:"memory_redis_addr"`             // backs the memory tool
	HistoryArchiveDSN          string `yaml:"history_archive_dsn"`           // optional; "" disables archiving
	HistoryArchiveDSNFile      string `yaml:"history_archive_dsn_file"`      // _file variant for history_archive_dsn
	WebSearchBackendURL        string `yaml:"web_search_backend_url"`        // SearXNG base URL
	DocumentationQdrantURL     string `yaml:"documentation_qdrant_url"`      // Qdrant base URL for documentation_check
	DocumentationEmbeddingURL  string `yaml:"documentation_embedding_url"`   // embedding service URL for documentation_check
	CodeRunnerSandboxURL       string `yaml:"code_runner_sandbox_url"`       // dev-mode static sandbox pod URL
	CodeRunnerSandboxTemplate  string `yaml:"code_runner_sandbox_template"`  // cluster-mode SandboxClaim template name
	CodeRunnerSandboxNamespace string `yaml:"code_runner_sandbox_namespace"` // namespace for SandboxClaim mode
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// DebugConfig holds category-based debug logging settings. The
// TOOLSTREAM_DEBUG and TOOLSTREAM_LOG_LEVEL environment variables override
// these at startup.
type DebugConfig struct {
	Categories string `yaml:"categories"` // e.g. "executor,tools" or "all"
	Level      string `yaml:"level"`      // ERROR, WARN, INFO, DEBUG, TRACE
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 8080
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 120s
}

// StorageConfig holds pool-tuning settings for the call-history archive.
// Whether the archive is enabled at all is controlled by
// tools.history_archive_dsn; Postgres here only tunes the pool once that
// DSN is set.
type StorageConfig struct {
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds connection-pool settings for the call-history archive
// store (pkg/storage/postgres), dialed with tools.history_archive_dsn.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type    string         `yaml:"type"`     // "none", "apikey", "jwt", default: "none"
	APIKeys []APIKeyConfig `yaml:"api_keys"` // API key entries for type=apikey
	JWT     JWTConfig      `yaml:"jwt"`      // JWT settings for type=jwt
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key"`
	KeyFile     string `yaml:"key_file"` // _file variant for key
	Subject     string `yaml:"subject"`
	TenantID    string `yaml:"tenant_id"`
	ServiceTier string `yaml:"service_tier"`
}

// JWTConfig describes JWT/OIDC bearer-token validation settings,
// mirroring pkg/auth/jwt.Config's shape so cmd/streamdemo can convert
// field-for-field.
type JWTConfig struct {
	Issuer      string `yaml:"issuer"`
	Audience    string `yaml:"audience"`
	JWKSURL     string `yaml:"jwks_url"`
	UserClaim   string `yaml:"user_claim"`   // default: "sub"
	TenantClaim string `yaml:"tenant_claim"` // default: "tenant_id"
	ScopesClaim string `yaml:"scopes_claim"` // default: "scope"
}

// MCPConfig holds MCP (Model Context Protocol) server settings.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes a single MCP server connection.
type MCPServerConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "sse" or "streamable-http"
	URL       string            `yaml:"url"`
	Headers   map[string]string `yaml:"headers"`
	Auth      MCPAuthConfig     `yaml:"auth"`
}

// MCPAuthConfig describes the authentication configuration for an MCP
// server connection, mirroring pkg/tools/mcp.MCPAuthConfig's shape so
// cmd/streamdemo can convert field-for-field without reinterpretation.
type MCPAuthConfig struct {
	Type             string   `yaml:"type"`
	TokenURL         string   `yaml:"token_url"`
	ClientID         string   `yaml:"client_id"`
	ClientIDFile     string   `yaml:"client_id_file"`
	ClientSecret     string   `yaml:"client_secret"`
	ClientSecretFile string   `yaml:"client_secret_file"`
	Scopes           []string `yaml:"scopes"`
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		Storage: StorageConfig{
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Stream: StreamConfig{
			ChunkerIdleFlushSeconds: 1.5,
			SmootherInitialDelayMS:  32,
			SmootherZeroDelayQueue:  64,
			DefaultToolTimeoutSecs:  60,
			CodeRunnerTimeoutSecs:   3600,
			HTTPRequestTimeoutSecs:  60,
		},
	}
}
