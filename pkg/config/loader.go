package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, TOOLSTREAM_CONFIG env, ./config.yaml, /etc/toolstream/config.yaml)
//  3. Environment variable overrides (TOOLSTREAM_ prefix)
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	// Start with defaults.
	cfg := Defaults()

	// Discover and load YAML config file.
	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	// Apply environment variable overrides.
	applyEnvOverrides(&cfg)

	// Resolve _file references.
	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	// Validate.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. TOOLSTREAM_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/toolstream/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	// Explicit path takes priority.
	if configPath != "" {
		return configPath
	}

	// Check TOOLSTREAM_CONFIG env var.
	if envPath := os.Getenv("TOOLSTREAM_CONFIG"); envPath != "" {
		return envPath
	}

	// Check common locations.
	candidates := []string{
		"config.yaml",
		"/etc/toolstream/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps TOOLSTREAM_-prefixed environment variables to
// config fields. Env values take precedence over the YAML file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TOOLSTREAM_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TOOLSTREAM_AUTH_TYPE"); v != "" {
		cfg.Auth.Type = v
	}
	if v := os.Getenv("TOOLSTREAM_JWT_JWKS_URL"); v != "" {
		cfg.Auth.JWT.JWKSURL = v
	}
	if v := os.Getenv("TOOLSTREAM_JWT_ISSUER"); v != "" {
		cfg.Auth.JWT.Issuer = v
	}
	if v := os.Getenv("TOOLSTREAM_JWT_AUDIENCE"); v != "" {
		cfg.Auth.JWT.Audience = v
	}

	// TOOLSTREAM_API_KEYS: JSON array of API key configs.
	if v := os.Getenv("TOOLSTREAM_API_KEYS"); v != "" {
		keys, err := parseAPIKeysJSON(v)
		if err == nil && len(keys) > 0 {
			cfg.Auth.APIKeys = keys
		}
	}

	// TOOLSTREAM_MCP_SERVERS: JSON array of MCP server configs.
	if v := os.Getenv("TOOLSTREAM_MCP_SERVERS"); v != "" {
		servers, err := parseMCPServersJSON(v)
		if err == nil && len(servers) > 0 {
			cfg.MCP.Servers = servers
		}
	}

	applyStreamEnvOverrides(cfg)
}

// applyStreamEnvOverrides maps the streaming-pipeline and tool-backend
// portion of the environment surface onto cfg.Stream/cfg.Tools.
func applyStreamEnvOverrides(cfg *Config) {
	if v := os.Getenv("TOOLSTREAM_SANDBOX_ROOT"); v != "" {
		cfg.Tools.SandboxRoot = v
	}
	if v := os.Getenv("TOOLSTREAM_CHUNKER_IDLE_FLUSH_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Stream.ChunkerIdleFlushSeconds = f
		}
	}
	if v := os.Getenv("TOOLSTREAM_SMOOTHER_INITIAL_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Stream.SmootherInitialDelayMS = n
		}
	}
	if v := os.Getenv("TOOLSTREAM_SMOOTHER_ZERO_DELAY_QUEUE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Stream.SmootherZeroDelayQueue = n
		}
	}
	if v := os.Getenv("TOOLSTREAM_DEFAULT_TOOL_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Stream.DefaultToolTimeoutSecs = n
		}
	}
	if v := os.Getenv("TOOLSTREAM_CODE_RUNNER_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Stream.CodeRunnerTimeoutSecs = n
		}
	}
	if v := os.Getenv("TOOLSTREAM_HTTP_REQUEST_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Stream.HTTPRequestTimeoutSecs = n
		}
	}
	if v := os.Getenv("TOOLSTREAM_MEMORY_REDIS_ADDR"); v != "" {
		cfg.Tools.MemoryRedisAddr = v
	}
	if v := os.Getenv("TOOLSTREAM_HISTORY_ARCHIVE_DSN"); v != "" {
		cfg.Tools.HistoryArchiveDSN = v
	}
	if v := os.Getenv("TOOLSTREAM_WEB_SEARCH_BACKEND_URL"); v != "" {
		cfg.Tools.WebSearchBackendURL = v
	}
	if v := os.Getenv("TOOLSTREAM_DOCUMENTATION_QDRANT_URL"); v != "" {
		cfg.Tools.DocumentationQdrantURL = v
	}
	if v := os.Getenv("TOOLSTREAM_DOCUMENTATION_EMBEDDING_URL"); v != "" {
		cfg.Tools.DocumentationEmbeddingURL = v
	}
	if v := os.Getenv("TOOLSTREAM_CODE_RUNNER_SANDBOX_URL"); v != "" {
		cfg.Tools.CodeRunnerSandboxURL = v
	}
	if v := os.Getenv("TOOLSTREAM_CODE_RUNNER_SANDBOX_TEMPLATE"); v != "" {
		cfg.Tools.CodeRunnerSandboxTemplate = v
	}
	if v := os.Getenv("TOOLSTREAM_CODE_RUNNER_SANDBOX_NAMESPACE"); v != "" {
		cfg.Tools.CodeRunnerSandboxNamespace = v
	}
}

// parseAPIKeysJSON parses a JSON array of API key configurations.
func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing API keys JSON: %w", err)
	}
	return keys, nil
}

// parseMCPServersJSON parses a JSON array of MCP server configurations.
func parseMCPServersJSON(jsonStr string) ([]MCPServerConfig, error) {
	var servers []MCPServerConfig
	if err := json.Unmarshal([]byte(jsonStr), &servers); err != nil {
		return nil, fmt.Errorf("parsing MCP servers JSON: %w", err)
	}
	return servers, nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// storage.postgres.dsn_file -> storage.postgres.dsn
	if cfg.Storage.Postgres.DSNFile != "" && cfg.Storage.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Storage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = val
	}

	// tools.history_archive_dsn_file -> tools.history_archive_dsn
	if cfg.Tools.HistoryArchiveDSNFile != "" && cfg.Tools.HistoryArchiveDSN == "" {
		val, err := readSecretFile(cfg.Tools.HistoryArchiveDSNFile)
		if err != nil {
			return fmt.Errorf("tools.history_archive_dsn_file: %w", err)
		}
		cfg.Tools.HistoryArchiveDSN = val
	}

	// auth.api_keys[*].key_file -> auth.api_keys[*].key
	for i := range cfg.Auth.APIKeys {
		if cfg.Auth.APIKeys[i].KeyFile != "" && cfg.Auth.APIKeys[i].Key == "" {
			val, err := readSecretFile(cfg.Auth.APIKeys[i].KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			cfg.Auth.APIKeys[i].Key = val
		}
	}

	// mcp.servers[*].auth.client_id_file -> mcp.servers[*].auth.client_id
	// mcp.servers[*].auth.client_secret_file -> mcp.servers[*].auth.client_secret
	for i := range cfg.MCP.Servers {
		if cfg.MCP.Servers[i].Auth.ClientIDFile != "" && cfg.MCP.Servers[i].Auth.ClientID == "" {
			val, err := readSecretFile(cfg.MCP.Servers[i].Auth.ClientIDFile)
			if err != nil {
				return fmt.Errorf("mcp.servers[%d].auth.client_id_file: %w", i, err)
			}
			cfg.MCP.Servers[i].Auth.ClientID = val
		}
		if cfg.MCP.Servers[i].Auth.ClientSecretFile != "" && cfg.MCP.Servers[i].Auth.ClientSecret == "" {
			val, err := readSecretFile(cfg.MCP.Servers[i].Auth.ClientSecretFile)
			if err != nil {
				return fmt.Errorf("mcp.servers[%d].auth.client_secret_file: %w", i, err)
			}
			cfg.MCP.Servers[i].Auth.ClientSecret = val
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
