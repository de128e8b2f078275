package server

import (
	"math"
	"net/http"

	"github.com/samber/lo"

	"github.com/khoango6804/MLN-chatbot-debate/internal/debate"
	"github.com/khoango6804/MLN-chatbot-debate/internal/model"
)

const (
	recentTerminalLimit    = 10
	defaultLeaderboardSize = 20
	progressPerTurn        = 20
	manualEndFeedback      = "Session was ended manually before completion"
)

// HandleAdminSessions handles GET /v1/admin/sessions.
func (h *Handlers) HandleAdminSessions(w http.ResponseWriter, r *http.Request) {
	active, err := h.engine.ListActive(r.Context())
	if err != nil {
		h.writeInternalError(w, r, "admin: list active sessions", err)
		return
	}
	terminal, err := h.engine.RecentTerminal(r.Context(), queryLimit(r, recentTerminalLimit))
	if err != nil {
		h.writeInternalError(w, r, "admin: list terminal sessions", err)
		return
	}

	writeJSON(w, r, http.StatusOK, model.SessionsOverview{
		Active:   lo.Map(active, func(s debate.Snapshot, _ int) model.SessionSummary { return h.summarize(s) }),
		Terminal: lo.Map(terminal, func(s debate.Snapshot, _ int) model.SessionSummary { return h.summarize(s) }),
		Criteria: h.rubric,
	})
}

// summarize maps a snapshot to its admin row. Terminal sessions that never
// reached evaluation are shown with a zero-filled score sheet.
func (h *Handlers) summarize(s debate.Snapshot) model.SessionSummary {
	ev := s.Evaluation
	if ev == nil && s.Terminal() {
		at := s.UpdatedAt
		if s.EndedAt != nil {
			at = *s.EndedAt
		}
		zero := h.rubric.ZeroEvaluation(manualEndFeedback, at)
		ev = &zero
	}
	return model.SessionSummary{
		TeamID:     s.TeamID,
		SessionID:  s.SessionID,
		CourseCode: s.CourseCode,
		Topic:      s.Topic,
		Members:    s.Members,
		Stance:     s.Stance,
		Phase:      s.Phase,
		Status:     s.Status,
		EndReason:  s.EndReason,
		TurnCount:  s.TurnCount(),
		CreatedAt:  s.CreatedAt,
		EndedAt:    s.EndedAt,
		Evaluation: ev,
	}
}

// HandleLeaderboard handles GET /v1/admin/leaderboard.
func (h *Handlers) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	standings, stats, err := h.engine.Leaderboard(r.Context(), queryLimit(r, defaultLeaderboardSize))
	if err != nil {
		h.writeInternalError(w, r, "admin: leaderboard", err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.Leaderboard{Standings: standings, Statistics: stats})
}

// HandleLiveScoring handles GET /v1/admin/live-scoring.
func (h *Handlers) HandleLiveScoring(w http.ResponseWriter, r *http.Request) {
	active, err := h.engine.ListActive(r.Context())
	if err != nil {
		h.writeInternalError(w, r, "admin: live scoring", err)
		return
	}

	now := h.clock.Now()
	rows := make([]model.LiveScore, 0, len(active))
	participants := 0
	progressSum := 0
	for _, s := range active {
		progress := min(100, s.TurnCount()*progressPerTurn)
		rows = append(rows, model.LiveScore{
			TeamID:          s.TeamID,
			Topic:           s.Topic,
			Members:         s.Members,
			Phase:           s.Phase,
			Stance:          s.Stance,
			Phase2Turns:     len(s.Phase2Ledger),
			Phase3Turns:     len(s.Phase3Ledger),
			ProgressPercent: progress,
			ElapsedSeconds:  int64(now.Sub(s.CreatedAt).Seconds()),
			UpdatedAt:       s.UpdatedAt,
		})
		participants += len(s.Members)
		progressSum += progress
	}

	stats := model.LiveStatistics{
		ActiveDebates:     len(rows),
		TotalParticipants: participants,
	}
	if len(rows) > 0 {
		stats.AverageProgress = math.Round(float64(progressSum)/float64(len(rows))*10) / 10
	}

	writeJSON(w, r, http.StatusOK, model.LiveScoring{Sessions: rows, Statistics: stats})
}
