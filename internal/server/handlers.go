package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/khoango6804/MLN-chatbot-debate/internal/debate"
	"github.com/khoango6804/MLN-chatbot-debate/internal/evaluation"
	"github.com/khoango6804/MLN-chatbot-debate/internal/llm"
	"github.com/khoango6804/MLN-chatbot-debate/internal/model"
	"github.com/khoango6804/MLN-chatbot-debate/internal/storage"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	engine              *debate.Engine
	topics              *debate.TopicBank
	rubric              evaluation.Rubric
	archive             debate.Archive
	archiveName         string
	pool                *llm.CredentialPool
	logger              *slog.Logger
	clock               clock.Clock
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Pool, Clock.
type HandlersDeps struct {
	Engine              *debate.Engine
	Topics              *debate.TopicBank
	Rubric              evaluation.Rubric
	Archive             debate.Archive
	ArchiveName         string
	Pool                *llm.CredentialPool
	Logger              *slog.Logger
	Clock               clock.Clock
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	if d.MaxRequestBodyBytes <= 0 {
		d.MaxRequestBodyBytes = 1 << 20
	}
	return &Handlers{
		engine:              d.Engine,
		topics:              d.Topics,
		rubric:              d.Rubric,
		archive:             d.Archive,
		archiveName:         d.ArchiveName,
		pool:                d.Pool,
		logger:              d.Logger,
		clock:               d.Clock,
		startedAt:           d.Clock.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
	}
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	httpStatus := http.StatusOK

	archive := h.archiveName
	if p, ok := h.archive.(storage.Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.logger.Warn("health: archive unreachable", "error", err)
			archive += " (disconnected)"
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	active, err := h.engine.ListActive(r.Context())
	if err != nil {
		h.writeInternalError(w, r, "health: list sessions", err)
		return
	}

	resp := model.HealthResponse{
		Status:         status,
		Version:        h.version,
		Uptime:         int64(h.clock.Since(h.startedAt).Seconds()),
		Archive:        archive,
		ActiveSessions: len(active),
	}
	if h.pool != nil {
		ps := h.pool.Status()
		ps.Fingerprints = nil
		if len(ps.Failed) == ps.Size && status == "healthy" {
			resp.Status = "degraded"
		}
		resp.LLM = ps
	}

	writeJSON(w, r, httpStatus, resp)
}

// HandleListCourses handles GET /v1/topics.
func (h *Handlers) HandleListCourses(w http.ResponseWriter, r *http.Request) {
	courses := make([]debate.Course, 0)
	for _, code := range h.topics.Courses() {
		if c, ok := h.topics.Course(code); ok {
			courses = append(courses, c)
		}
	}
	writeJSON(w, r, http.StatusOK, courses)
}

// HandleCourseTopics handles GET /v1/topics/{course_code}.
func (h *Handlers) HandleCourseTopics(w http.ResponseWriter, r *http.Request) {
	c, ok := h.topics.Course(r.PathValue("course_code"))
	if !ok {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "no curated topics for this course")
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

// --- Shared helpers ---

// maxQueryLimit is the maximum allowed value for limit query parameters.
const maxQueryLimit = 100

func queryInt(r *http.Request, key string, defaultVal int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// queryLimit returns a bounded limit value from query params.
// Values are clamped to [1, maxQueryLimit].
func queryLimit(r *http.Request, defaultVal int) int {
	limit := queryInt(r, "limit", defaultVal)
	if limit < 1 {
		return 1
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}
