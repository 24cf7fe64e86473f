// Package config defines the configuration schema for inkforge.
//
// YAML keys use camelCase. Every field is optional; DefaultConfig supplies
// the values used when a key or the whole file is missing.
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ProviderConfig holds connection settings for one LLM provider.
type ProviderConfig struct {
	APIKey  string `yaml:"apiKey,omitempty"`
	APIBase string `yaml:"apiBase,omitempty"`
	Model   string `yaml:"model,omitempty"`
}

// ProvidersConfig holds settings for every supported provider type.
type ProvidersConfig struct {
	Ollama   ProviderConfig `yaml:"ollama"`
	Gemini   ProviderConfig `yaml:"gemini"`
	OpenAI   ProviderConfig `yaml:"openai"`
	DeepSeek ProviderConfig `yaml:"deepseek"`
}

// ToolsConfig locates tool definitions and prompt templates. Values are
// storage URLs; a plain path means the local filesystem.
type ToolsConfig struct {
	Dir        string `yaml:"dir"`
	PromptsDir string `yaml:"promptsDir"`
}

// ServerConfig configures `inkforge serve`.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	MaxBodyBytes    int64         `yaml:"maxBodyBytes"`
}

// WordPressConfig holds publishing credentials.
type WordPressConfig struct {
	APIBase     string        `yaml:"apiBase,omitempty"`
	Username    string        `yaml:"username,omitempty"`
	AppPassword string        `yaml:"appPassword,omitempty"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Configured reports whether all credentials are present.
func (w WordPressConfig) Configured() bool {
	return w.APIBase != "" && w.Username != "" && w.AppPassword != ""
}

// LogConfig configures slog.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"` // used by `inkforge mcp`, where stdout is the protocol
}

// TelemetryConfig configures the OTLP exporter. An empty endpoint disables
// tracing export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlpEndpoint,omitempty"`
	Insecure     bool   `yaml:"insecure"`
	ServiceName  string `yaml:"serviceName"`
}

// Config is the root configuration object.
type Config struct {
	DefaultProvider string          `yaml:"defaultProvider"`
	Providers       ProvidersConfig `yaml:"providers"`
	Tools           ToolsConfig     `yaml:"tools"`
	Server          ServerConfig    `yaml:"server"`
	WordPress       WordPressConfig `yaml:"wordpress"`
	Log             LogConfig       `yaml:"log"`
	Telemetry       TelemetryConfig `yaml:"telemetry"`
	RequestTimeout  time.Duration   `yaml:"requestTimeout"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() Config {
	return Config{
		DefaultProvider: "ollama",
		Providers: ProvidersConfig{
			Ollama: ProviderConfig{APIBase: "http://127.0.0.1:11434"},
		},
		Tools: ToolsConfig{
			Dir:        "~/.inkforge/workspace/tools",
			PromptsDir: "~/.inkforge/workspace/prompts",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			ShutdownTimeout: 5 * time.Second,
			MaxBodyBytes:    5 << 20,
		},
		WordPress: WordPressConfig{Timeout: 30 * time.Second},
		Log:       LogConfig{Level: "info"},
		Telemetry: TelemetryConfig{Insecure: true, ServiceName: "inkforge"},
		// Long-form generation on a local model is slow.
		RequestTimeout: 5 * time.Minute,
	}
}

// ProviderByName returns the config for a provider type, or nil.
func (c *Config) ProviderByName(name string) *ProviderConfig {
	switch strings.ToLower(name) {
	case "ollama":
		return &c.Providers.Ollama
	case "gemini":
		return &c.Providers.Gemini
	case "openai":
		return &c.Providers.OpenAI
	case "deepseek":
		return &c.Providers.DeepSeek
	}
	return nil
}

// ToolsURL returns the tool definition root with ~ expanded.
func (c *Config) ToolsURL() string { return expandHome(c.Tools.Dir) }

// PromptsURL returns the prompt template root with ~ expanded.
func (c *Config) PromptsURL() string { return expandHome(c.Tools.PromptsDir) }

// ParsedLogLevel returns the slog.Level for Log.Level.
func (c *Config) ParsedLogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ListenAddr returns host:port for the HTTP server.
func (c *Config) ListenAddr() string {
	return c.Server.Host + ":" + itoa(c.Server.Port)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}
