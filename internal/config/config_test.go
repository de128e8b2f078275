package config

import (
	"strings"
	"testing"
	"time"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	v, err := envInt("TEST_INT_MISSING", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-integer value, got nil")
	}
	if got := err.Error(); got != `TEST_INT_BAD="abc" is not a valid integer` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvBoolInvalid(t *testing.T) {
	t.Setenv("TEST_BOOL_BAD", "maybe")
	_, err := envBool("TEST_BOOL_BAD", false)
	if err == nil {
		t.Fatal("expected error for non-boolean value, got nil")
	}
	if got := err.Error(); got != `TEST_BOOL_BAD="maybe" is not a valid boolean` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvFloatAndDuration(t *testing.T) {
	t.Setenv("TEST_FLOAT", "0.25")
	f, err := envFloat("TEST_FLOAT", 1)
	if err != nil || f != 0.25 {
		t.Fatalf("envFloat = %v, %v", f, err)
	}
	t.Setenv("TEST_DUR", "soon")
	if _, err := envDuration("TEST_DUR", time.Second); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestEnvList(t *testing.T) {
	t.Setenv("TEST_LIST", " a, ,b ,")
	got := envList("TEST_LIST")
	if strings.Join(got, "|") != "a|b" {
		t.Fatalf("unexpected list: %q", got)
	}
}

func TestCollectAPIKeysOrder(t *testing.T) {
	t.Setenv("LLM_API_KEYS", "k1,k2")
	t.Setenv("GEMINI_API_KEY", "g0")
	t.Setenv("GEMINI_API_KEY_10", "g10")
	t.Setenv("GEMINI_API_KEY_2", "g2")
	t.Setenv("GEMINI_API_KEY_X", "ignored")

	got := strings.Join(collectAPIKeys(), ",")
	if got != "k1,k2,g0,g2,g10" {
		t.Fatalf("unexpected keys: %s", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8080 || cfg.Archive != ArchiveMemory || cfg.LLMProvider != ProviderAuto {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.SessionIdleTTL != 0 {
		t.Fatalf("idle expiry should be disabled by default, got %s", cfg.SessionIdleTTL)
	}
}

func TestLoadReportsEveryInvalidVariable(t *testing.T) {
	t.Setenv("DEBATE_PORT", "eighty")
	t.Setenv("LLM_TEMPERATURE", "hot")
	t.Setenv("DEBATE_SESSION_IDLE_TTL", "forever")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, key := range []string{"DEBATE_PORT", "LLM_TEMPERATURE", "DEBATE_SESSION_IDLE_TTL"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error does not mention %s: %v", key, err)
		}
	}
}

func TestValidateCrossField(t *testing.T) {
	base := func() Config {
		return Config{
			Port:                8080,
			MaxRequestBodyBytes: 1024,
			LLMProvider:         ProviderAuto,
			LLMTemperature:      0.7,
			Archive:             ArchiveMemory,
			RateLimitEnabled:    true,
			RateLimitRPS:        5,
			RateLimitBurst:      20,
			TraceSampleRate:     1,
		}
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"postgres without url", func(c *Config) { c.Archive = ArchivePostgres }, "DATABASE_URL"},
		{"unknown archive", func(c *Config) { c.Archive = "s3" }, "DEBATE_ARCHIVE"},
		{"mirror without path", func(c *Config) {
			c.Archive = ArchivePostgres
			c.DatabaseURL = "postgres://localhost/debate"
			c.SQLiteMirror = true
		}, "DEBATE_ARCHIVE_SQLITE_MIRROR"},
		{"openai without keys", func(c *Config) { c.LLMProvider = ProviderOpenAI }, "LLM_API_KEYS"},
		{"unknown provider", func(c *Config) { c.LLMProvider = "claude" }, "LLM_PROVIDER"},
		{"bad sample rate", func(c *Config) { c.TraceSampleRate = 2 }, "OTEL_TRACES_SAMPLER_ARG"},
		{"zero burst", func(c *Config) { c.RateLimitBurst = 0 }, "DEBATE_RATE_LIMIT_BURST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}
