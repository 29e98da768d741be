// Package config loads the process configuration from the environment. The
// Config value is constructed once at startup and passed explicitly to every
// component that needs it; there is no ambient global state.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Backend kinds selectable via the PROVIDER variable.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

type Config struct {
	Host     string
	Port     int
	LogLevel string

	// Provider selects the backend protocol: ProviderOpenAI translates,
	// ProviderAnthropic passes requests through untranslated.
	Provider string

	// OpenAIAPIKey is the backend credential. When empty the proxy runs in
	// passthrough mode and forwards each client's own key instead.
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	AnthropicBaseURL string

	// AuthKey gates inbound access in fixed-key mode. Ignored (with a
	// warning) in passthrough mode.
	AuthKey string

	BigModel    string
	MiddleModel string
	SmallModel  string

	MaxTokensLimit int
	MinTokensLimit int
	RequestTimeout time.Duration
}

// Load reads the configuration from the environment. Callers are expected to
// have loaded .env beforehand (godotenv in main).
func Load() (*Config, error) {
	cfg := &Config{
		Host:             envOr("HOST", "0.0.0.0"),
		Port:             envIntOr("PORT", 8082),
		LogLevel:         envOr("LOG_LEVEL", "INFO"),
		Provider:         envOr("PROVIDER", ProviderOpenAI),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:    envOr("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		AnthropicBaseURL: envOr("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
		AuthKey:          os.Getenv("AUTH_KEY"),
		BigModel:         envOr("BIG_MODEL", "gpt-4o"),
		SmallModel:       envOr("SMALL_MODEL", "gpt-4o-mini"),
		MaxTokensLimit:   envIntOr("MAX_TOKENS_LIMIT", 4096),
		MinTokensLimit:   envIntOr("MIN_TOKENS_LIMIT", 100),
		RequestTimeout:   time.Duration(envIntOr("REQUEST_TIMEOUT", 90)) * time.Second,
	}
	cfg.MiddleModel = envOr("MIDDLE_MODEL", cfg.BigModel)

	if cfg.Provider != ProviderOpenAI && cfg.Provider != ProviderAnthropic {
		return nil, fmt.Errorf("unsupported PROVIDER %q", cfg.Provider)
	}
	if cfg.Passthrough() && cfg.AuthKey != "" {
		// Proxy access gating needs a fixed backend key to be meaningful.
		slog.Warn("AUTH_KEY is set but OPENAI_API_KEY is not (passthrough mode); ignoring AUTH_KEY")
		cfg.AuthKey = ""
	}
	return cfg, nil
}

// Passthrough reports whether the proxy forwards client credentials to the
// backend instead of a fixed server-held key.
func (c *Config) Passthrough() bool { return c.OpenAIAPIKey == "" }

// Addr is the listen address.
func (c *Config) Addr() string { return c.Host + ":" + strconv.Itoa(c.Port) }

// LogStartup writes the startup banner.
func (c *Config) LogStartup(log *slog.Logger) {
	mode := "fixed-key"
	if c.Passthrough() {
		mode = "passthrough"
	}
	baseURL := c.OpenAIBaseURL
	if c.Provider == ProviderAnthropic {
		baseURL = c.AnthropicBaseURL
	}
	log.Info("starting claude-bridge",
		"addr", c.Addr(),
		"provider", c.Provider,
		"backend_url", baseURL,
		"big_model", c.BigModel,
		"middle_model", c.MiddleModel,
		"small_model", c.SmallModel,
		"credential_mode", mode,
		"auth_key_enabled", c.AuthKey != "",
	)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
