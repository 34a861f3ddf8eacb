// Package config loads runtime configuration: built-in defaults, then an
// optional YAML file named by PROMPTPOLISH_CONFIG, then environment variables.
// Every field has a safe default so the binary runs locally without setup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for all subcommands.
type Config struct {
	// Client side (optimize, mcp).
	Endpoint       string         `yaml:"endpoint"`        // PROMPTPOLISH_ENDPOINT
	TimeoutMS      int            `yaml:"timeout_ms"`      // PROMPTPOLISH_TIMEOUT_MS, default 30000
	MaxInput       int            `yaml:"max_input"`       // PROMPTPOLISH_MAX_INPUT, default 10000
	MaxInstruction int            `yaml:"max_instruction"` // PROMPTPOLISH_MAX_INSTRUCTION, default 1000
	Settings       ClientSettings `yaml:"settings"`

	LLM    LLM    `yaml:"llm"`
	Proxy  Proxy  `yaml:"proxy"`
	Bridge Bridge `yaml:"bridge"`

	LogLevel string `yaml:"log_level"` // LOG_LEVEL, default "info"
}

// ClientSettings is the user-facing settings snapshot; file only.
type ClientSettings struct {
	DefaultMode        string   `yaml:"default_mode"`
	CustomInstruction  string   `yaml:"custom_instruction"`
	AutoClarify        bool     `yaml:"auto_clarify"`
	Enabled            bool     `yaml:"enabled"`
	AllowedHosts       []string `yaml:"allowed_hosts"`
	DeepPolish         bool     `yaml:"deep_polish"`
	VagueWordThreshold int      `yaml:"vague_word_threshold"`
}

// LLM selects and configures the proxy's upstream providers.
type LLM struct {
	Provider string `yaml:"provider"` // LLM_PROVIDER, default "gemini"
	Gemini   struct {
		APIKey string `yaml:"api_key"` // GEMINI_API_KEY
		Model  string `yaml:"model"`   // GEMINI_MODEL, default "gemini-1.5-flash"
	} `yaml:"gemini"`
	OpenAI struct {
		APIKey  string `yaml:"api_key"`  // OPENAI_API_KEY
		BaseURL string `yaml:"base_url"` // OPENAI_BASE_URL
		Model   string `yaml:"model"`    // OPENAI_MODEL, default "gpt-4o-mini"
	} `yaml:"openai"`
	Ollama struct {
		BaseURL   string `yaml:"base_url"`   // OLLAMA_BASE_URL, default "http://localhost:11434"
		ChatModel string `yaml:"chat_model"` // OLLAMA_CHAT_MODEL, default "llama3.2:3b"
	} `yaml:"ollama"`
}

// Proxy configures `promptpolish proxy`.
type Proxy struct {
	Addr           string   `yaml:"addr"`            // PROXY_ADDR, default ":8787"
	RateLimit      int      `yaml:"rate_limit"`      // PROXY_RATE_LIMIT: requests/min per client, default 30
	AllowedOrigins []string `yaml:"allowed_origins"` // PROXY_ALLOWED_ORIGINS: comma separated
	UsageDBPath    string   `yaml:"usage_db_path"`   // USAGE_DB_PATH: empty disables the usage log
	PromptsFile    string   `yaml:"prompts_file"`    // PROMPTPOLISH_PROMPTS: YAML template library
}

// Bridge configures `promptpolish bridge` and clients that dial it.
type Bridge struct {
	Addr           string   `yaml:"addr"`            // BRIDGE_ADDR, default "127.0.0.1:8788"
	URL            string   `yaml:"url"`             // BRIDGE_URL: ws:// endpoint for clients
	Secret         string   `yaml:"secret"`          // BRIDGE_SECRET: empty leaves the bridge open
	TokenTTLHours  int      `yaml:"token_ttl_hours"` // BRIDGE_TOKEN_TTL, default 24
	AllowedOrigins []string `yaml:"allowed_origins"` // BRIDGE_ALLOWED_ORIGINS: comma separated
}

const (
	envKeyConfigFile     = "PROMPTPOLISH_CONFIG"
	envKeyEndpoint       = "PROMPTPOLISH_ENDPOINT"
	envKeyTimeoutMS      = "PROMPTPOLISH_TIMEOUT_MS"
	envKeyMaxInput       = "PROMPTPOLISH_MAX_INPUT"
	envKeyMaxInstruction = "PROMPTPOLISH_MAX_INSTRUCTION"
	envKeyPromptsFile    = "PROMPTPOLISH_PROMPTS"

	envKeyLLMProvider     = "LLM_PROVIDER"
	envKeyGeminiAPIKey    = "GEMINI_API_KEY"
	envKeyGeminiModel     = "GEMINI_MODEL"
	envKeyOpenAIAPIKey    = "OPENAI_API_KEY"
	envKeyOpenAIBaseURL   = "OPENAI_BASE_URL"
	envKeyOpenAIModel     = "OPENAI_MODEL"
	envKeyOllamaBaseURL   = "OLLAMA_BASE_URL"
	envKeyOllamaChatModel = "OLLAMA_CHAT_MODEL"

	envKeyProxyAddr      = "PROXY_ADDR"
	envKeyProxyRateLimit = "PROXY_RATE_LIMIT"
	envKeyProxyOrigins   = "PROXY_ALLOWED_ORIGINS"
	envKeyUsageDBPath    = "USAGE_DB_PATH"

	envKeyBridgeAddr     = "BRIDGE_ADDR"
	envKeyBridgeURL      = "BRIDGE_URL"
	envKeyBridgeSecret   = "BRIDGE_SECRET"
	envKeyBridgeTokenTTL = "BRIDGE_TOKEN_TTL"
	envKeyBridgeOrigins  = "BRIDGE_ALLOWED_ORIGINS"

	envKeyLogLevel = "LOG_LEVEL"
)

// Providers accepted by LLM.Provider.
var Providers = []string{"gemini", "openai", "ollama"}

// Default returns the built-in configuration.
func Default() Config {
	c := Config{
		TimeoutMS:      30000,
		MaxInput:       10000,
		MaxInstruction: 1000,
		Settings: ClientSettings{
			DefaultMode:        "concise",
			AutoClarify:        true,
			Enabled:            true,
			VagueWordThreshold: 5,
		},
		Proxy:    Proxy{Addr: ":8787", RateLimit: 30},
		Bridge:   Bridge{Addr: "127.0.0.1:8788", TokenTTLHours: 24},
		LogLevel: "info",
	}
	c.LLM.Provider = "gemini"
	c.LLM.Gemini.Model = "gemini-1.5-flash"
	c.LLM.OpenAI.Model = "gpt-4o-mini"
	c.LLM.Ollama.BaseURL = "http://localhost:11434"
	c.LLM.Ollama.ChatModel = "llama3.2:3b"
	return c
}

// Load builds the configuration from defaults, the PROMPTPOLISH_CONFIG file
// when set, and the environment, in that order of increasing precedence.
func Load() (Config, error) {
	return LoadWith("")
}

// LoadWith is Load with an explicit config file; an empty path falls back
// to PROMPTPOLISH_CONFIG.
func LoadWith(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(envKeyConfigFile)
	}
	if path != "" {
		if err := LoadFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the
// file keep their current values.
func LoadFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// Validate rejects values no subcommand can run with.
func (c Config) Validate() error {
	switch {
	case c.TimeoutMS <= 0:
		return fmt.Errorf("config: timeout_ms must be positive, got %d", c.TimeoutMS)
	case c.MaxInput <= 0 || c.MaxInstruction <= 0:
		return fmt.Errorf("config: max_input and max_instruction must be positive")
	case c.Settings.VagueWordThreshold < 0:
		return fmt.Errorf("config: vague_word_threshold must not be negative")
	case !knownProvider(c.LLM.Provider):
		return fmt.Errorf("config: unknown llm provider %q (want one of %s)", c.LLM.Provider, strings.Join(Providers, ", "))
	}
	return nil
}

// Timeout is TimeoutMS as a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// TokenTTL is the bridge token lifetime.
func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.Bridge.TokenTTLHours) * time.Hour
}

func applyEnv(c *Config) error {
	c.Endpoint = envOr(envKeyEndpoint, c.Endpoint)
	c.Proxy.PromptsFile = envOr(envKeyPromptsFile, c.Proxy.PromptsFile)

	c.LLM.Provider = envOr(envKeyLLMProvider, c.LLM.Provider)
	c.LLM.Gemini.APIKey = envOr(envKeyGeminiAPIKey, c.LLM.Gemini.APIKey)
	c.LLM.Gemini.Model = envOr(envKeyGeminiModel, c.LLM.Gemini.Model)
	c.LLM.OpenAI.APIKey = envOr(envKeyOpenAIAPIKey, c.LLM.OpenAI.APIKey)
	c.LLM.OpenAI.BaseURL = envOr(envKeyOpenAIBaseURL, c.LLM.OpenAI.BaseURL)
	c.LLM.OpenAI.Model = envOr(envKeyOpenAIModel, c.LLM.OpenAI.Model)
	c.LLM.Ollama.BaseURL = envOr(envKeyOllamaBaseURL, c.LLM.Ollama.BaseURL)
	c.LLM.Ollama.ChatModel = envOr(envKeyOllamaChatModel, c.LLM.Ollama.ChatModel)

	c.Proxy.Addr = envOr(envKeyProxyAddr, c.Proxy.Addr)
	c.Proxy.UsageDBPath = envOr(envKeyUsageDBPath, c.Proxy.UsageDBPath)
	c.Proxy.AllowedOrigins = envList(envKeyProxyOrigins, c.Proxy.AllowedOrigins)

	c.Bridge.Addr = envOr(envKeyBridgeAddr, c.Bridge.Addr)
	c.Bridge.URL = envOr(envKeyBridgeURL, c.Bridge.URL)
	c.Bridge.Secret = envOr(envKeyBridgeSecret, c.Bridge.Secret)
	c.Bridge.AllowedOrigins = envList(envKeyBridgeOrigins, c.Bridge.AllowedOrigins)

	c.LogLevel = envOr(envKeyLogLevel, c.LogLevel)

	ints := []struct {
		key string
		dst *int
	}{
		{envKeyTimeoutMS, &c.TimeoutMS},
		{envKeyMaxInput, &c.MaxInput},
		{envKeyMaxInstruction, &c.MaxInstruction},
		{envKeyProxyRateLimit, &c.Proxy.RateLimit},
		{envKeyBridgeTokenTTL, &c.Bridge.TokenTTLHours},
	}
	for _, i := range ints {
		v, err := envInt(i.key, *i.dst)
		if err != nil {
			return err
		}
		*i.dst = v
	}
	return nil
}

// envOr returns the value of the environment variable key, or fallback if not set.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("config: %s: %q is not an integer", key, v)
	}
	return n, nil
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func knownProvider(p string) bool {
	for _, k := range Providers {
		if k == p {
			return true
		}
	}
	return false
}
