package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type providerEnv struct {
	BaseURL string `envconfig:"BASE_URL"`
	APIKey  string `envconfig:"API_KEY"`
	Model   string `envconfig:"MODEL"`
}

// envOverlay lists every recognised environment variable. Empty values
// leave the file setting untouched.
type envOverlay struct {
	AIProvider string      `envconfig:"AI_PROVIDER"`
	Ollama     providerEnv `envconfig:"OLLAMA"`
	Gemini     providerEnv `envconfig:"GEMINI"`
	OpenAI     providerEnv `envconfig:"OPENAI"`
	DeepSeek   providerEnv `envconfig:"DEEPSEEK"`

	WPAPIBase     string `envconfig:"WP_API_BASE"`
	WPUsername    string `envconfig:"WP_USERNAME"`
	WPAppPassword string `envconfig:"WP_APP_PASSWORD"`

	LogLevel   string `envconfig:"INKFORGE_LOG_LEVEL"`
	ToolsDir   string `envconfig:"INKFORGE_TOOLS_DIR"`
	PromptsDir string `envconfig:"INKFORGE_PROMPTS_DIR"`
	ListenAddr string `envconfig:"INKFORGE_LISTEN_ADDR"`

	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure string `envconfig:"OTEL_EXPORTER_OTLP_INSECURE"`
}

// ApplyEnv overlays environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var env envOverlay
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("process environment: %w", err)
	}

	set(&cfg.DefaultProvider, strings.ToLower(env.AIProvider))
	for name, pe := range map[string]providerEnv{
		"ollama":   env.Ollama,
		"gemini":   env.Gemini,
		"openai":   env.OpenAI,
		"deepseek": env.DeepSeek,
	} {
		p := cfg.ProviderByName(name)
		set(&p.APIBase, pe.BaseURL)
		set(&p.APIKey, pe.APIKey)
		set(&p.Model, pe.Model)
	}

	set(&cfg.WordPress.APIBase, env.WPAPIBase)
	set(&cfg.WordPress.Username, env.WPUsername)
	set(&cfg.WordPress.AppPassword, env.WPAppPassword)

	set(&cfg.Log.Level, env.LogLevel)
	set(&cfg.Tools.Dir, env.ToolsDir)
	set(&cfg.Tools.PromptsDir, env.PromptsDir)
	if env.ListenAddr != "" {
		host, port, err := splitHostPort(env.ListenAddr)
		if err != nil {
			return fmt.Errorf("INKFORGE_LISTEN_ADDR: %w", err)
		}
		cfg.Server.Host, cfg.Server.Port = host, port
	}

	set(&cfg.Telemetry.OTLPEndpoint, env.OTLPEndpoint)
	if env.OTLPInsecure != "" {
		v, err := strconv.ParseBool(env.OTLPInsecure)
		if err != nil {
			return fmt.Errorf("OTEL_EXPORTER_OTLP_INSECURE: %w", err)
		}
		cfg.Telemetry.Insecure = v
	}
	return nil
}

func set(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func splitHostPort(addr string) (string, int, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("missing port in %q", addr)
	}
	port, err := strconv.Atoi(addr[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in %q", addr)
	}
	return addr[:idx], port, nil
}
