package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LogLevel controls slog verbosity.
type LogLevel string

// Valid log levels.
const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// AppConfig is the process-level configuration for the frontdesk server,
// loaded once at startup. Per-company dialog bundles ([CompanyConfig]) are
// loaded separately through the config store.
type AppConfig struct {
	Server     ServerSettings   `yaml:"server"`
	Database   DatabaseSettings `yaml:"database"`
	LLM        ProviderEntry    `yaml:"llm"`
	Embeddings ProviderEntry    `yaml:"embeddings"`

	// DefaultsPath points at the platform-default company bundle that
	// per-company overrides are resolved against.
	DefaultsPath string `yaml:"defaults_path"`

	// CompanyDir holds standalone company bundle files for single-node
	// development without Postgres. Ignored when Database.DSN is set.
	CompanyDir string `yaml:"company_dir"`
}

// ServerSettings configures the HTTP listener.
type ServerSettings struct {
	ListenAddr string   `yaml:"listen_addr"`
	LogLevel   LogLevel `yaml:"log_level"`
}

// DatabaseSettings configures the Postgres connection. An empty DSN
// selects the in-memory store.
type DatabaseSettings struct {
	DSN string `yaml:"dsn"`

	// EmbeddingDimensions sizes the scenario vector column. Must match
	// the embeddings provider's output. Default 1536.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`
}

// ProviderEntry names one external provider and its credentials. APIKey
// supports ${ENV_VAR} expansion at load time.
type ProviderEntry struct {
	Name    string `yaml:"name"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// LoadApp reads the process configuration at path. Environment references
// of the form ${VAR} anywhere in the file are expanded before decoding, so
// secrets can stay out of the file itself.
func LoadApp(path string) (*AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	expanded := os.Expand(string(raw), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &AppConfig{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("config: decode %q: %w", path, err)
	}

	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Database.EmbeddingDimensions <= 0 {
		cfg.Database.EmbeddingDimensions = 1536
	}
	return cfg, nil
}
