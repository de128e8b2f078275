package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/joho/godotenv"

	"github.com/khoango6804/MLN-chatbot-debate/internal/config"
	"github.com/khoango6804/MLN-chatbot-debate/internal/debate"
	"github.com/khoango6804/MLN-chatbot-debate/internal/evaluation"
	"github.com/khoango6804/MLN-chatbot-debate/internal/llm"
	"github.com/khoango6804/MLN-chatbot-debate/internal/mcp"
	"github.com/khoango6804/MLN-chatbot-debate/internal/ratelimit"
	"github.com/khoango6804/MLN-chatbot-debate/internal/server"
	"github.com/khoango6804/MLN-chatbot-debate/internal/storage"
	"github.com/khoango6804/MLN-chatbot-debate/internal/telemetry"
	"github.com/khoango6804/MLN-chatbot-debate/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if strings.EqualFold(os.Getenv("DEBATE_LOG_LEVEL"), "debug") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("debated starting", "version", version, "port", cfg.Port, "archive", cfg.Archive)

	otelShutdown, err := telemetry.Init(ctx, telemetry.Options{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     version,
		Insecure:    cfg.OTELInsecure,
		SampleRatio: cfg.TraceSampleRate,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	clk := clock.New()

	model, pool := newModelClient(ctx, cfg, clk, logger)

	archive, closeArchive, err := openArchive(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeArchive()

	topics, err := debate.LoadTopicBank(cfg.TopicsFile, model, logger)
	if err != nil {
		return fmt.Errorf("topics: %w", err)
	}

	rubric := evaluation.DefaultRubric()

	// The store's expiry callback needs the engine, which needs the store.
	var engine *debate.Engine
	var storeOpts []storage.MemoryStoreOption
	if cfg.SessionIdleTTL > 0 {
		storeOpts = append(storeOpts, storage.WithIdleTTL(cfg.SessionIdleTTL, storage.DefaultCleanupInterval, func(s *debate.Session) {
			if err := engine.Expire(context.Background(), s); err != nil {
				logger.Warn("session expiry failed", "team_key", s.Key(), "error", err)
			}
		}))
		logger.Info("session idle expiry enabled", "ttl", cfg.SessionIdleTTL)
	}

	engine, err = debate.New(debate.Config{
		Store:     storage.NewMemoryStore(storeOpts...),
		Archive:   archive,
		Model:     model,
		Topics:    topics,
		Evaluator: evaluation.NewAggregator(model, rubric, logger, clk),
		Logger:    logger,
		Clock:     clk,
	})
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}
	defer func() { _ = limiter.Close() }()

	srvCfg := server.ServerConfig{
		Engine:              engine,
		Topics:              topics,
		Rubric:              rubric,
		Archive:             archive,
		Logger:              logger,
		Pool:                pool,
		Limiter:             limiter,
		Clock:               clk,
		ArchiveName:         cfg.Archive,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
	}
	if cfg.MCPEnabled {
		mcpSrv := mcp.New(mcp.Deps{
			Engine:  engine,
			Topics:  topics,
			Rubric:  rubric,
			Logger:  logger,
			Clock:   clk,
			Version: version,
		})
		srvCfg.MCPServer = mcpSrv.MCPServer()
		logger.Info("mcp: enabled at /mcp")
	}
	srv := server.New(srvCfg)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	slog.Info("debated shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	slog.Info("debated stopped")
	return nil
}

// newModelClient creates the language model client based on configuration.
// Provider selection: "openai", "ollama", "noop", or "auto" (default).
// Auto mode uses the credential pool when keys are configured, then Ollama
// if reachable, else noop. The returned pool is nil unless keys are in use.
func newModelClient(ctx context.Context, cfg config.Config, clk clock.Clock, logger *slog.Logger) (llm.Client, *llm.CredentialPool) {
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		return newPooledClient(cfg, clk, logger)

	case config.ProviderOllama:
		logger.Info("model provider: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
		return llm.NewOllamaClient(cfg.OllamaURL, cfg.OllamaModel), nil

	case config.ProviderNoop:
		logger.Info("model provider: noop (fallback content only)")
		return llm.NoopClient{}, nil

	case config.ProviderAuto:
		fallthrough
	default:
		if len(cfg.LLMAPIKeys) > 0 {
			return newPooledClient(cfg, clk, logger)
		}
		if llm.Reachable(ctx, cfg.OllamaURL) {
			logger.Info("model provider: ollama (auto-detected)", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
			return llm.NewOllamaClient(cfg.OllamaURL, cfg.OllamaModel), nil
		}
		logger.Warn("no model provider available, using noop (fallback content only)")
		return llm.NoopClient{}, nil
	}
}

func newPooledClient(cfg config.Config, clk clock.Clock, logger *slog.Logger) (llm.Client, *llm.CredentialPool) {
	pool, err := llm.NewCredentialPool(cfg.LLMAPIKeys, cfg.LLMCredentialReset, clk)
	if err != nil {
		logger.Error("credential pool init failed, using noop", "error", err)
		return llm.NoopClient{}, nil
	}
	client, err := llm.NewResilientClient(llm.ResilientConfig{
		Pool: pool,
		Factory: llm.NewOpenAIFactory(llm.OpenAIConfig{
			BaseURL:     cfg.LLMBaseURL,
			Model:       cfg.LLMModel,
			Temperature: float32(cfg.LLMTemperature),
		}),
		Logger:         logger,
		CallTimeout:    cfg.LLMCallTimeout,
		MaxConcurrency: int64(cfg.LLMMaxConcurrency),
	})
	if err != nil {
		logger.Error("model client init failed, using noop", "error", err)
		return llm.NoopClient{}, nil
	}
	logger.Info("model provider: openai-compatible",
		"base_url", cfg.LLMBaseURL, "model", cfg.LLMModel, "credentials", pool.Size())
	return client, pool
}

// openArchive opens the configured terminal-session archive. The returned
// close function releases whatever the archive holds open.
func openArchive(ctx context.Context, cfg config.Config, logger *slog.Logger) (debate.Archive, func(), error) {
	switch cfg.Archive {
	case config.ArchiveSQLite:
		a, err := storage.OpenSQLiteArchive(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite archive: %w", err)
		}
		logger.Info("archive: sqlite", "path", cfg.SQLitePath)
		return a, func() { _ = a.Close() }, nil

	case config.ArchivePostgres:
		db, err := storage.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("storage: %w", err)
		}
		// RunMigrations skips files already recorded in schema_migrations.
		if err := db.RunMigrations(ctx, migrations.FS); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		pg := storage.NewPostgresArchive(db)
		if !cfg.SQLiteMirror {
			logger.Info("archive: postgres")
			return pg, db.Close, nil
		}
		mirror, err := storage.OpenSQLiteArchive(ctx, cfg.SQLitePath)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("sqlite mirror: %w", err)
		}
		logger.Info("archive: postgres with sqlite mirror", "path", cfg.SQLitePath)
		return storage.NewMultiArchive(pg, mirror), func() {
			_ = mirror.Close()
			db.Close()
		}, nil

	default:
		logger.Info("archive: memory (lost on restart)")
		return storage.NewMemoryArchive(), func() {}, nil
	}
}
