// Package model holds the HTTP API envelope, request and response types.
package model

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/khoango6804/MLN-chatbot-debate/internal/debate"
	"github.com/khoango6804/MLN-chatbot-debate/internal/evaluation"
)

// Field length limits for free-text request fields.
const (
	MaxTeamIDLen   = 64
	MaxMembers     = 10
	MaxMemberLen   = 100
	MaxArguments   = 10
	MaxArgumentLen = 4 * 1024
	MaxAnswerLen   = 8 * 1024
	MaxSummaryLen  = 8 * 1024
)

// StartDebateRequest is the request body for POST /v1/debates.
type StartDebateRequest struct {
	TeamID     string   `json:"team_id" validate:"omitempty,max=64"`
	CourseCode string   `json:"course_code" validate:"required,max=32"`
	Members    []string `json:"members" validate:"required,min=1,max=10,dive,required,max=100"`
}

// ArgumentsRequest carries phase 1 arguments or phase 4 conclusions.
type ArgumentsRequest struct {
	Arguments []string `json:"arguments" validate:"max=10,dive,max=4096"`
}

// GenerateAIArgumentsRequest is the request body for POST .../ai-arguments.
type GenerateAIArgumentsRequest struct {
	Force bool `json:"force"`
}

// AnswerRequest is the request body for POST .../phase2/answers.
type AnswerRequest struct {
	Answer string `json:"answer" validate:"required,max=8192"`
}

// QuestionRequest is the request body for POST .../phase3/questions.
type QuestionRequest struct {
	Question string `json:"question" validate:"required,max=8192"`
}

// EvaluateRequest is the request body for POST .../evaluation.
type EvaluateRequest struct {
	StudentSummary string `json:"student_summary" validate:"max=8192"`
}

// EndRequest is the request body for POST .../end.
type EndRequest struct {
	Reason string `json:"reason" validate:"max=64"`
}

// TurnResponse reports the result of one phase 2 or phase 3 step.
type TurnResponse struct {
	Question string          `json:"question,omitempty"`
	Answer   string          `json:"answer,omitempty"`
	Session  debate.Snapshot `json:"session"`
}

// ListResponse wraps collections returned by the admin endpoints.
type ListResponse struct {
	Data  any          `json:"data"`
	Total int          `json:"total"`
	Meta  ResponseMeta `json:"meta"`
}

// SessionSummary is one row of GET /v1/admin/sessions.
type SessionSummary struct {
	TeamID     string                 `json:"team_id"`
	SessionID  string                 `json:"session_id"`
	CourseCode string                 `json:"course_code"`
	Topic      string                 `json:"topic"`
	Members    []string               `json:"members"`
	Stance     debate.Stance          `json:"stance"`
	Phase      debate.Phase           `json:"phase"`
	Status     debate.Status          `json:"status"`
	EndReason  string                 `json:"end_reason,omitempty"`
	TurnCount  int                    `json:"turn_count"`
	CreatedAt  time.Time              `json:"created_at"`
	EndedAt    *time.Time             `json:"ended_at,omitempty"`
	Evaluation *evaluation.Evaluation `json:"evaluation,omitempty"`
}

// SessionsOverview is the response of GET /v1/admin/sessions.
type SessionsOverview struct {
	Active   []SessionSummary  `json:"active"`
	Terminal []SessionSummary  `json:"terminal"`
	Criteria evaluation.Rubric `json:"criteria"`
}

// Leaderboard is the response of GET /v1/admin/leaderboard.
type Leaderboard struct {
	Standings  []evaluation.Standing       `json:"standings"`
	Statistics evaluation.LeaderboardStats `json:"statistics"`
}

// LiveScore is one row of GET /v1/admin/live-scoring.
type LiveScore struct {
	TeamID          string        `json:"team_id"`
	Topic           string        `json:"topic"`
	Members         []string      `json:"members"`
	Phase           debate.Phase  `json:"phase"`
	Stance          debate.Stance `json:"stance"`
	Phase2Turns     int           `json:"phase2_turns"`
	Phase3Turns     int           `json:"phase3_turns"`
	ProgressPercent int           `json:"progress_percent"`
	ElapsedSeconds  int64         `json:"elapsed_seconds"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// LiveScoring is the response of GET /v1/admin/live-scoring.
type LiveScoring struct {
	Sessions   []LiveScore    `json:"live_scoring"`
	Statistics LiveStatistics `json:"statistics"`
}

// LiveStatistics summarises every active session.
type LiveStatistics struct {
	ActiveDebates     int     `json:"active_debates"`
	TotalParticipants int     `json:"total_participants"`
	AverageProgress   float64 `json:"average_progress"`
}

// HealthResponse is the response of GET /health.
type HealthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	Uptime         int64  `json:"uptime_seconds"`
	Archive        string `json:"archive"`
	ActiveSessions int    `json:"active_sessions"`
	LLM            any    `json:"llm,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks a request struct against its validate tags. Failures are
// returned as a *debate.ValidationError naming the first offending field.
func Validate(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return &debate.ValidationError{Field: fieldPath(fe), Message: describe(fe)}
}

// fieldPath strips the struct name from the namespace: "StartDebateRequest.members[1]" -> "members[1]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s items", fe.Param())
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must have at most %s items", fe.Param())
		}
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
