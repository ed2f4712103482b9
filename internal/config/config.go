// Package config handles agent-one configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./agentone.yaml, ./config.yaml, ~/.config/agentone/config.yaml,
// /etc/agentone/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"agentone.yaml", "config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "agentone", "config.yaml"))
	}

	paths = append(paths, "/etc/agentone/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all agent configuration.
type Config struct {
	// Model is the chat model identifier sent to the provider.
	Model string `yaml:"model"`
	// Provider selects the chat backend: "openai" (default) or "ollama".
	Provider   string `yaml:"provider"`
	AppVersion string `yaml:"app_version"`
	UserID     string `yaml:"user_id"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"` // text or json

	OpenAI    OpenAIConfig    `yaml:"openai"`
	Ollama    OllamaConfig    `yaml:"ollama"`
	Database  DatabaseConfig  `yaml:"database"`
	Agent     AgentConfig     `yaml:"agent"`
	Retry     RetryConfig     `yaml:"retry"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Search    SearchConfig    `yaml:"search"`
	Sentiment SentimentConfig `yaml:"sentiment"`
	Safety    SafetyConfig    `yaml:"safety"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Eval      EvalConfig      `yaml:"eval"`

	// Routes sends individual models to a provider other than Provider,
	// e.g. a local judge model on ollama while answers come from openai.
	Routes map[string]string `yaml:"routes"`

	// Pricing maps model names to per-million-token costs in USD.
	Pricing map[string]PricingEntry `yaml:"pricing"`
}

// EvalConfig configures the evaluation harness.
type EvalConfig struct {
	// JudgeModel grades groundedness. Empty means Model.
	JudgeModel string `yaml:"judge_model"`
}

// OpenAIConfig defines OpenAI API settings.
type OpenAIConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"` // per request
}

// OllamaConfig defines the local Ollama endpoint.
type OllamaConfig struct {
	URL string `yaml:"url"`
}

// DatabaseConfig defines the SQLite files backing the persistent stores.
type DatabaseConfig struct {
	// Driver is "sqlite3" (mattn, cgo) or "sqlite" (modernc, pure Go).
	Driver     string `yaml:"driver"`
	CachePath  string `yaml:"cache_path"`
	MemoryPath string `yaml:"memory_path"`
	IndexPath  string `yaml:"index_path"`
	UsagePath  string `yaml:"usage_path"`
}

// AgentConfig bounds the orchestration loop.
type AgentConfig struct {
	MaxRounds   int  `yaml:"max_rounds"`
	RecentFacts int  `yaml:"recent_facts"` // facts embedded in the system prompt
	Cache       bool `yaml:"cache"`
}

// RetryConfig shapes the backoff around each model call.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Jitter      time.Duration `yaml:"jitter"`
}

// RetrievalConfig controls the document index and the retrieve_docs tool.
type RetrievalConfig struct {
	// MaxDistance is the cosine distance at or below which the top
	// result is considered a confident match.
	MaxDistance float64 `yaml:"max_distance"`
	DefaultK    int     `yaml:"default_k"`
	// EmbeddingProvider is "openai" (default) or "ollama".
	EmbeddingProvider string `yaml:"embedding_provider"`
	EmbeddingModel    string `yaml:"embedding_model"`
}

// IngestConfig controls document chunking.
type IngestConfig struct {
	MaxChars int `yaml:"max_chars"`
	Overlap  int `yaml:"overlap"`
}

// SearchConfig selects and configures the web_search backend.
type SearchConfig struct {
	// Provider is one of tavily, brave, searxng, duckduckgo. Empty
	// selects the first configured provider.
	Provider string        `yaml:"provider"`
	Tavily   APIKeyConfig  `yaml:"tavily"`
	Brave    APIKeyConfig  `yaml:"brave"`
	SearXNG  SearXNGConfig `yaml:"searxng"`
	// DuckDuckGo enables the keyless HTML scraper.
	DuckDuckGo bool `yaml:"duckduckgo"`
}

// APIKeyConfig holds a single provider credential.
type APIKeyConfig struct {
	APIKey string `yaml:"api_key"`
}

// SearXNGConfig points at a self-hosted SearXNG instance.
type SearXNGConfig struct {
	URL string `yaml:"url"`
}

// SentimentConfig selects the sentiment classifier.
type SentimentConfig struct {
	// Provider is "http" (inference endpoint), "llm", or "" (disabled).
	Provider string `yaml:"provider"`
	URL      string `yaml:"url"`
	Token    string `yaml:"token"`
	Model    string `yaml:"model"` // llm provider only
}

// SafetyConfig controls the pre-loop safety gate.
type SafetyConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Moderation      bool   `yaml:"moderation"`
	ModerationModel string `yaml:"moderation_model"`
}

// TelemetryConfig enables OpenTelemetry span export.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
	Insecure     bool   `yaml:"insecure"`
}

// MQTTConfig enables publishing span events to an MQTT broker.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	ClientID string `yaml:"client_id"`
}

// Configured reports whether a broker URL is set.
func (c MQTTConfig) Configured() bool {
	return c.Broker != ""
}

// FetchConfig enables the fetch_url tool.
type FetchConfig struct {
	Enabled bool `yaml:"enabled"`
}

// PricingEntry is the cost of one million tokens for a model.
type PricingEntry struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// Load reads configuration from a YAML file. Environment variables in
// the file are expanded, then defaults fill any zero values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := base()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	cfg := base()
	cfg.applyDefaults()
	return cfg
}

// base holds the defaults that a zero value cannot express: switches
// that are on unless the file turns them off, and a chunk overlap the
// file may set to 0.
func base() *Config {
	return &Config{
		Agent:  AgentConfig{Cache: true},
		Safety: SafetyConfig{Enabled: true, Moderation: true},
		Fetch:  FetchConfig{Enabled: true},
		Ingest: IngestConfig{Overlap: 200},
	}
}

func (c *Config) applyDefaults() {
	if c.Model == "" {
		c.Model = "gpt-4.1"
	}
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.AppVersion == "" {
		c.AppVersion = "w6.0"
	}
	if c.UserID == "" {
		c.UserID = "default"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.OpenAI.Timeout == 0 {
		c.OpenAI.Timeout = 60 * time.Second
	}
	if c.Ollama.URL == "" {
		c.Ollama.URL = "http://localhost:11434"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.Database.CachePath == "" {
		c.Database.CachePath = "cache.db"
	}
	if c.Database.MemoryPath == "" {
		c.Database.MemoryPath = "memory.db"
	}
	if c.Database.IndexPath == "" {
		c.Database.IndexPath = "index.db"
	}
	if c.Database.UsagePath == "" {
		c.Database.UsagePath = "usage.db"
	}
	if c.Agent.MaxRounds == 0 {
		c.Agent.MaxRounds = 6
	}
	if c.Agent.RecentFacts == 0 {
		c.Agent.RecentFacts = 5
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = 500 * time.Millisecond
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = 4 * time.Second
	}
	if c.Retry.Jitter == 0 {
		c.Retry.Jitter = 100 * time.Millisecond
	}
	if c.Retrieval.MaxDistance == 0 {
		c.Retrieval.MaxDistance = 0.25
	}
	if c.Retrieval.DefaultK == 0 {
		c.Retrieval.DefaultK = 3
	}
	if c.Retrieval.EmbeddingProvider == "" {
		c.Retrieval.EmbeddingProvider = "openai"
	}
	if c.Retrieval.EmbeddingModel == "" {
		if c.Retrieval.EmbeddingProvider == "ollama" {
			c.Retrieval.EmbeddingModel = "nomic-embed-text"
		} else {
			c.Retrieval.EmbeddingModel = "text-embedding-3-small"
		}
	}
	if c.Ingest.MaxChars == 0 {
		c.Ingest.MaxChars = 1200
	}
	if c.Safety.ModerationModel == "" {
		c.Safety.ModerationModel = "omni-moderation-latest"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "agentone"
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "agentone"
	}
}

// ApplyEnv overlays environment variables onto the configuration. It is
// called once at startup, after the file (if any) has been loaded.
// getenv is usually [os.Getenv].
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Model, "MODEL")
	set(&c.AppVersion, "APP_VERSION")
	set(&c.UserID, "USER_ID")
	set(&c.LogLevel, "LOG_LEVEL")
	set(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	set(&c.OpenAI.BaseURL, "OPENAI_BASE_URL")
	set(&c.Database.CachePath, "CACHE_DB")
	set(&c.Database.MemoryPath, "MEMORY_DB")
	set(&c.Database.IndexPath, "INDEX_DB")
	set(&c.Database.UsagePath, "USAGE_DB")
	set(&c.Search.Tavily.APIKey, "TAVILY_API_KEY")
	set(&c.Search.Brave.APIKey, "BRAVE_API_KEY")
	set(&c.Search.SearXNG.URL, "SEARXNG_URL")
	set(&c.Sentiment.URL, "SENTIMENT_URL")
	set(&c.Sentiment.Token, "SENTIMENT_TOKEN")
	set(&c.MQTT.Broker, "MQTT_BROKER")

	if c.Sentiment.Provider == "" && c.Sentiment.URL != "" {
		c.Sentiment.Provider = "http"
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format %q invalid (valid: text, json)", c.LogFormat)
	}
	switch c.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("provider %q invalid (valid: openai, ollama)", c.Provider)
	}
	for model, provider := range c.Routes {
		if provider != "openai" && provider != "ollama" {
			return fmt.Errorf("routes[%s]: provider %q invalid (valid: openai, ollama)", model, provider)
		}
	}
	switch c.Database.Driver {
	case "sqlite3", "sqlite":
	default:
		return fmt.Errorf("database.driver %q invalid (valid: sqlite3, sqlite)", c.Database.Driver)
	}
	switch c.Sentiment.Provider {
	case "", "http", "llm":
	default:
		return fmt.Errorf("sentiment.provider %q invalid (valid: http, llm)", c.Sentiment.Provider)
	}
	if c.Sentiment.Provider == "http" && c.Sentiment.URL == "" {
		return fmt.Errorf("sentiment.url is required for the http provider")
	}
	if c.Agent.MaxRounds < 1 {
		return fmt.Errorf("agent.max_rounds must be at least 1, got %d", c.Agent.MaxRounds)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry.max_delay (%s) is below retry.base_delay (%s)", c.Retry.MaxDelay, c.Retry.BaseDelay)
	}
	if c.Ingest.Overlap < 0 {
		return fmt.Errorf("ingest.overlap must not be negative, got %d", c.Ingest.Overlap)
	}
	if c.Ingest.Overlap >= c.Ingest.MaxChars {
		return fmt.Errorf("ingest.overlap (%d) must be smaller than ingest.max_chars (%d)", c.Ingest.Overlap, c.Ingest.MaxChars)
	}
	return nil
}
