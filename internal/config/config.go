// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Archive backends.
const (
	ArchiveMemory   = "memory"
	ArchiveSQLite   = "sqlite"
	ArchivePostgres = "postgres"
)

// LLM providers.
const (
	ProviderAuto   = "auto"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderNoop   = "noop"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRequestBodyBytes int64
	CORSAllowedOrigins  []string

	// Language model settings.
	LLMProvider        string // "auto", "openai", "ollama", or "noop"
	LLMAPIKeys         []string
	LLMBaseURL         string
	LLMModel           string
	LLMTemperature     float64
	LLMCallTimeout     time.Duration
	LLMCredentialReset time.Duration
	LLMMaxConcurrency  int
	OllamaURL          string
	OllamaModel        string

	// Session settings.
	SessionIdleTTL time.Duration
	TopicsFile     string

	// Archive settings.
	Archive     string // "memory", "sqlite", or "postgres"
	SQLitePath  string
	DatabaseURL string

	// SQLiteMirror additionally copies every Postgres snapshot to SQLitePath.
	SQLiteMirror bool

	// Rate limiting.
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	// OTEL settings.
	OTELEndpoint    string
	OTELInsecure    bool
	ServiceName     string
	TraceSampleRate float64

	// Operational settings.
	LogLevel   string
	MCPEnabled bool
}

// Load reads configuration from environment variables with sensible defaults.
// Every malformed variable is reported, not just the first.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := Config{
		LLMBaseURL:         envStr("LLM_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai"),
		LLMModel:           envStr("LLM_MODEL", "gemini-2.0-flash"),
		LLMProvider:        strings.ToLower(envStr("LLM_PROVIDER", ProviderAuto)),
		OllamaURL:          envStr("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:        envStr("OLLAMA_MODEL", "llama3.1"),
		TopicsFile:         envStr("DEBATE_TOPICS_FILE", ""),
		Archive:            strings.ToLower(envStr("DEBATE_ARCHIVE", ArchiveMemory)),
		SQLitePath:         envStr("SQLITE_PATH", "debate.db"),
		DatabaseURL:        envStr("DATABASE_URL", ""),
		OTELEndpoint:       envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:        envStr("OTEL_SERVICE_NAME", "debated"),
		LogLevel:           envStr("DEBATE_LOG_LEVEL", "info"),
		CORSAllowedOrigins: envList("DEBATE_CORS_ALLOWED_ORIGINS"),
		LLMAPIKeys:         collectAPIKeys(),
	}

	var err error
	cfg.Port, err = envInt("DEBATE_PORT", 8080)
	collect(err)
	cfg.ReadTimeout, err = envDuration("DEBATE_READ_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.WriteTimeout, err = envDuration("DEBATE_WRITE_TIMEOUT", 120*time.Second)
	collect(err)
	var maxBody int
	maxBody, err = envInt("DEBATE_MAX_REQUEST_BODY_BYTES", 1*1024*1024)
	collect(err)
	cfg.MaxRequestBodyBytes = int64(maxBody)

	cfg.LLMTemperature, err = envFloat("LLM_TEMPERATURE", 0.7)
	collect(err)
	cfg.LLMCallTimeout, err = envDuration("LLM_CALL_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.LLMCredentialReset, err = envDuration("LLM_CREDENTIAL_RESET_INTERVAL", time.Hour)
	collect(err)
	cfg.LLMMaxConcurrency, err = envInt("LLM_MAX_CONCURRENCY", 8)
	collect(err)

	cfg.SessionIdleTTL, err = envDuration("DEBATE_SESSION_IDLE_TTL", 0)
	collect(err)
	cfg.SQLiteMirror, err = envBool("DEBATE_ARCHIVE_SQLITE_MIRROR", false)
	collect(err)

	cfg.RateLimitEnabled, err = envBool("DEBATE_RATE_LIMIT_ENABLED", true)
	collect(err)
	cfg.RateLimitRPS, err = envFloat("DEBATE_RATE_LIMIT_RPS", 5)
	collect(err)
	cfg.RateLimitBurst, err = envInt("DEBATE_RATE_LIMIT_BURST", 20)
	collect(err)

	cfg.OTELInsecure, err = envBool("OTEL_EXPORTER_OTLP_INSECURE", false)
	collect(err)
	cfg.TraceSampleRate, err = envFloat("OTEL_TRACES_SAMPLER_ARG", 1.0)
	collect(err)

	cfg.MCPEnabled, err = envBool("DEBATE_MCP_ENABLED", true)
	collect(err)

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field rules.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("DEBATE_PORT must be between 1 and 65535"))
	}
	if c.MaxRequestBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("DEBATE_MAX_REQUEST_BODY_BYTES must be positive"))
	}
	switch c.LLMProvider {
	case ProviderAuto, ProviderOpenAI, ProviderOllama, ProviderNoop:
	default:
		errs = append(errs, fmt.Errorf("LLM_PROVIDER=%q must be one of auto, openai, ollama, noop", c.LLMProvider))
	}
	if c.LLMProvider == ProviderOpenAI && len(c.LLMAPIKeys) == 0 {
		errs = append(errs, fmt.Errorf("LLM_PROVIDER=openai requires LLM_API_KEYS or GEMINI_API_KEY"))
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		errs = append(errs, fmt.Errorf("LLM_TEMPERATURE must be between 0 and 2"))
	}
	if c.LLMMaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("LLM_MAX_CONCURRENCY must not be negative"))
	}
	if c.SessionIdleTTL < 0 {
		errs = append(errs, fmt.Errorf("DEBATE_SESSION_IDLE_TTL must not be negative"))
	}
	switch c.Archive {
	case ArchiveMemory:
	case ArchiveSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, fmt.Errorf("SQLITE_PATH is required when DEBATE_ARCHIVE=sqlite"))
		}
	case ArchivePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required when DEBATE_ARCHIVE=postgres"))
		}
		if c.SQLiteMirror && c.SQLitePath == "" {
			errs = append(errs, fmt.Errorf("SQLITE_PATH is required when DEBATE_ARCHIVE_SQLITE_MIRROR is set"))
		}
	default:
		errs = append(errs, fmt.Errorf("DEBATE_ARCHIVE=%q must be one of memory, sqlite, postgres", c.Archive))
	}
	if c.RateLimitEnabled && (c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0) {
		errs = append(errs, fmt.Errorf("DEBATE_RATE_LIMIT_RPS and DEBATE_RATE_LIMIT_BURST must be positive"))
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		errs = append(errs, fmt.Errorf("OTEL_TRACES_SAMPLER_ARG must be between 0 and 1"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// collectAPIKeys gathers credentials from LLM_API_KEYS (comma separated),
// GEMINI_API_KEY and GEMINI_API_KEY_<n>, in that order. The pool drops
// duplicates.
func collectAPIKeys() []string {
	keys := envList("LLM_API_KEYS")
	if k := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); k != "" {
		keys = append(keys, k)
	}

	type numbered struct {
		n   int
		key string
	}
	var extra []numbered
	for _, kv := range os.Environ() {
		name, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, "GEMINI_API_KEY_") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(name, "GEMINI_API_KEY_"))
		if err != nil || strings.TrimSpace(val) == "" {
			continue
		}
		extra = append(extra, numbered{n: n, key: strings.TrimSpace(val)})
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i].n < extra[j].n })
	for _, e := range extra {
		keys = append(keys, e.key)
	}
	return keys
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// envList splits a comma separated variable, dropping blanks.
func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
