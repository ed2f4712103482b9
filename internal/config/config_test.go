package config

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	os.WriteFile(path, []byte("model: gpt-4.1-mini\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentone.yaml")
	os.WriteFile(path, []byte("model: gpt-4.1\n"), 0600)

	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "agentone.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "agentone.yaml")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Model != "gpt-4.1" {
		t.Errorf("Model = %q, want gpt-4.1", cfg.Model)
	}
	if cfg.UserID != "default" {
		t.Errorf("UserID = %q, want default", cfg.UserID)
	}
	if cfg.Database.CachePath != "cache.db" || cfg.Database.MemoryPath != "memory.db" {
		t.Errorf("database paths = %q, %q", cfg.Database.CachePath, cfg.Database.MemoryPath)
	}
	if cfg.Agent.MaxRounds != 6 {
		t.Errorf("MaxRounds = %d, want 6", cfg.Agent.MaxRounds)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.BaseDelay != 500*time.Millisecond || cfg.Retry.MaxDelay != 4*time.Second {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	if cfg.Retrieval.MaxDistance != 0.25 {
		t.Errorf("MaxDistance = %v, want 0.25", cfg.Retrieval.MaxDistance)
	}
	if !cfg.Safety.Enabled || !cfg.Safety.Moderation {
		t.Errorf("safety = %+v, want enabled with moderation", cfg.Safety)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("openai:\n  api_key: ${AGENTONE_TEST_KEY}\n"), 0600)
	t.Setenv("AGENTONE_TEST_KEY", "secret123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.OpenAI.APIKey != "secret123" {
		t.Errorf("api_key = %q, want %q", cfg.OpenAI.APIKey, "secret123")
	}
}

func TestLoad_KeepsSwitchesOff(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("agent:\n  cache: false\nsafety:\n  enabled: false\n"), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Agent.Cache {
		t.Error("agent.cache should be false")
	}
	if cfg.Safety.Enabled {
		t.Error("safety.enabled should be false")
	}
	// Untouched switches keep their defaults.
	if !cfg.Safety.Moderation {
		t.Error("safety.moderation should default to true")
	}
}

func TestLoad_Durations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("retry:\n  base_delay: 250ms\n  max_delay: 2s\n"), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Retry.BaseDelay != 250*time.Millisecond {
		t.Errorf("base_delay = %v, want 250ms", cfg.Retry.BaseDelay)
	}
	if cfg.Retry.MaxDelay != 2*time.Second {
		t.Errorf("max_delay = %v, want 2s", cfg.Retry.MaxDelay)
	}
}

func TestLoad_IngestOverlap(t *testing.T) {
	tests := []struct {
		yaml string
		want int
	}{
		{"model: gpt-4.1\n", 200},
		{"ingest:\n  max_chars: 800\n", 200},
		{"ingest:\n  overlap: 0\n", 0},
		{"ingest:\n  overlap: 50\n", 50},
	}
	for _, tt := range tests {
		path := filepath.Join(t.TempDir(), "config.yaml")
		os.WriteFile(path, []byte(tt.yaml), 0600)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%q): %v", tt.yaml, err)
		}
		if cfg.Ingest.Overlap != tt.want {
			t.Errorf("Load(%q) overlap = %d, want %d", tt.yaml, cfg.Ingest.Overlap, tt.want)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate(%q): %v", tt.yaml, err)
		}
	}
}

func TestLoad_OllamaEmbeddingDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("retrieval:\n  embedding_provider: ollama\n"), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Retrieval.EmbeddingModel != "nomic-embed-text" {
		t.Errorf("embedding_model = %q, want nomic-embed-text", cfg.Retrieval.EmbeddingModel)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"MODEL":          "gpt-4.1-mini",
		"USER_ID":        "alice",
		"CACHE_DB":       "/tmp/c.db",
		"MEMORY_DB":      "/tmp/m.db",
		"OPENAI_API_KEY": "sk-test",
		"TAVILY_API_KEY": "tv-test",
		"SENTIMENT_URL":  "http://localhost:9000/classify",
		"APP_VERSION":    "  ",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.Model != "gpt-4.1-mini" {
		t.Errorf("Model = %q", cfg.Model)
	}
	if cfg.UserID != "alice" {
		t.Errorf("UserID = %q", cfg.UserID)
	}
	if cfg.Database.CachePath != "/tmp/c.db" || cfg.Database.MemoryPath != "/tmp/m.db" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.OpenAI.APIKey != "sk-test" {
		t.Errorf("APIKey = %q", cfg.OpenAI.APIKey)
	}
	if cfg.Search.Tavily.APIKey != "tv-test" {
		t.Errorf("Tavily key = %q", cfg.Search.Tavily.APIKey)
	}
	if cfg.Sentiment.Provider != "http" {
		t.Errorf("Sentiment.Provider = %q, want http when a URL is set", cfg.Sentiment.Provider)
	}
	// Blank values do not clobber defaults.
	if cfg.AppVersion != "w6.0" {
		t.Errorf("AppVersion = %q, want w6.0", cfg.AppVersion)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, true},
		{"bad provider", func(c *Config) { c.Provider = "bard" }, true},
		{"bad driver", func(c *Config) { c.Database.Driver = "postgres" }, true},
		{"pure go driver", func(c *Config) { c.Database.Driver = "sqlite" }, false},
		{"zero rounds", func(c *Config) { c.Agent.MaxRounds = 0 }, true},
		{"max below base", func(c *Config) { c.Retry.MaxDelay = time.Millisecond }, true},
		{"overlap too large", func(c *Config) { c.Ingest.Overlap = c.Ingest.MaxChars }, true},
		{"negative overlap", func(c *Config) { c.Ingest.Overlap = -1 }, true},
		{"no overlap", func(c *Config) { c.Ingest.Overlap = 0 }, false},
		{"http sentiment without url", func(c *Config) { c.Sentiment.Provider = "http" }, true},
		{"llm sentiment", func(c *Config) { c.Sentiment.Provider = "llm" }, false},
		{"ollama route", func(c *Config) { c.Routes = map[string]string{"llama3.1": "ollama"} }, false},
		{"bad route", func(c *Config) { c.Routes = map[string]string{"claude": "anthropic"} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		err  bool
	}{
		{"", slog.LevelInfo, false},
		{"TRACE", LevelTrace, false},
		{" debug ", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.err)
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestReplaceLogLevelNames(t *testing.T) {
	a := ReplaceLogLevelNames(nil, slog.Any(slog.LevelKey, LevelTrace))
	if a.Value.String() != "TRACE" {
		t.Errorf("trace level rendered as %q, want TRACE", a.Value.String())
	}
	b := ReplaceLogLevelNames(nil, slog.Any(slog.LevelKey, slog.LevelInfo))
	if b.Value.Any().(slog.Level) != slog.LevelInfo {
		t.Errorf("info level changed to %v", b.Value)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.LogLevel = "trace"
	cfg.LogFormat = "json"
	cfg.NewLogger(&buf).Log(context.Background(), LevelTrace, "wire", "k", "v")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output %q: %v", buf.String(), err)
	}
	if rec["level"] != "TRACE" || rec["msg"] != "wire" || rec["k"] != "v" {
		t.Errorf("record = %v", rec)
	}

	buf.Reset()
	cfg.LogLevel = "warn"
	cfg.LogFormat = "text"
	logger := cfg.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown")
	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, "level=WARN msg=shown") {
		t.Errorf("text output = %q", out)
	}
}
