package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/khoango6804/MLN-chatbot-debate/internal/debate"
	"github.com/khoango6804/MLN-chatbot-debate/internal/evaluation"
	"github.com/khoango6804/MLN-chatbot-debate/internal/llm"
	"github.com/khoango6804/MLN-chatbot-debate/internal/ratelimit"
)

// Server is the debate HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Pool, Limiter, MCPServer, Clock.
type ServerConfig struct {
	// Required dependencies.
	Engine  *debate.Engine
	Topics  *debate.TopicBank
	Rubric  evaluation.Rubric
	Archive debate.Archive
	Logger  *slog.Logger

	// Optional dependencies (nil = disabled).
	Pool      *llm.CredentialPool
	Limiter   ratelimit.Limiter
	MCPServer *mcpserver.MCPServer
	Clock     clock.Clock

	// HTTP server settings.
	ArchiveName         string
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
	CORSAllowedOrigins  []string
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Engine:              cfg.Engine,
		Topics:              cfg.Topics,
		Rubric:              cfg.Rubric,
		Archive:             cfg.Archive,
		ArchiveName:         cfg.ArchiveName,
		Pool:                cfg.Pool,
		Logger:              cfg.Logger,
		Clock:               cfg.Clock,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	mux := http.NewServeMux()

	// Debate lifecycle.
	mux.HandleFunc("POST /v1/debates", h.HandleStartDebate)
	mux.HandleFunc("GET /v1/debates/{team_id}", h.HandleGetDebate)
	mux.HandleFunc("POST /v1/debates/{team_id}/arguments", h.HandleSubmitArguments)
	mux.HandleFunc("POST /v1/debates/{team_id}/ai-arguments", h.HandleGenerateAIArguments)
	mux.HandleFunc("POST /v1/debates/{team_id}/phase2/answers", h.HandleAnswerAIQuestion)
	mux.HandleFunc("POST /v1/debates/{team_id}/phase2/questions", h.HandleNextAIQuestion)
	mux.HandleFunc("POST /v1/debates/{team_id}/phase3/questions", h.HandleAskAIQuestion)
	mux.HandleFunc("POST /v1/debates/{team_id}/conclusion", h.HandleSubmitConclusion)
	mux.HandleFunc("POST /v1/debates/{team_id}/ai-conclusion", h.HandleAICounterConclusion)
	mux.HandleFunc("POST /v1/debates/{team_id}/evaluation", h.HandleEvaluate)
	mux.HandleFunc("POST /v1/debates/{team_id}/complete", h.HandleComplete)
	mux.HandleFunc("POST /v1/debates/{team_id}/end", h.HandleEnd)
	mux.HandleFunc("GET /v1/debates/{team_id}/export", h.HandleExportDebate)

	// Instructor views.
	mux.HandleFunc("GET /v1/admin/sessions", h.HandleAdminSessions)
	mux.HandleFunc("GET /v1/admin/leaderboard", h.HandleLeaderboard)
	mux.HandleFunc("GET /v1/admin/live-scoring", h.HandleLiveScoring)

	// Curated topics.
	mux.HandleFunc("GET /v1/topics", h.HandleListCourses)
	mux.HandleFunc("GET /v1/topics/{course_code}", h.HandleCourseTopics)

	// MCP StreamableHTTP transport.
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// Health (no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}
	rateLimit := ratelimit.Middleware(cfg.Limiter, clientKeyFunc, reqIDFunc, cfg.Logger)

	// Middleware chain (outermost executes first):
	// request ID → security headers → CORS → tracing → logging → rate limit → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = rateLimit(handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = corsMiddleware(cfg.CORSAllowedOrigins, handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// clientKeyFunc rate limits by client IP. Health probes are exempt.
func clientKeyFunc(r *http.Request) string {
	if r.URL.Path == "/health" {
		return ""
	}
	return ratelimit.IPKeyFunc(r)
}

// Handlers returns the underlying Handlers.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
