package mcp

import (
	"github.com/samber/lo"

	"github.com/khoango6804/MLN-chatbot-debate/internal/debate"
)

const maxCompactText = 200

// compactSession returns a minimal representation of a snapshot for MCP
// responses. Ledgers are reduced to counts and the latest turn; long
// arguments are truncated.
func compactSession(s debate.Snapshot) map[string]any {
	m := map[string]any{
		"team_id":      s.TeamID,
		"session_id":   s.SessionID,
		"course_code":  s.CourseCode,
		"topic":        s.Topic,
		"members":      s.Members,
		"stance":       s.Stance,
		"phase":        s.Phase,
		"status":       s.Status,
		"phase2_turns": len(s.Phase2Ledger),
		"phase3_turns": len(s.Phase3Ledger),
		"created_at":   s.CreatedAt,
		"updated_at":   s.UpdatedAt,
	}
	if len(s.TeamArguments) > 0 {
		m["team_arguments"] = truncateAll(s.TeamArguments)
	}
	if len(s.AIArguments) > 0 {
		m["ai_arguments"] = truncateAll(s.AIArguments)
	}
	if last, ok := lastTurn(s.Phase2Ledger); ok {
		m["latest_phase2_turn"] = last
	}
	if last, ok := lastTurn(s.Phase3Ledger); ok {
		m["latest_phase3_turn"] = last
	}
	if len(s.Conclusion) > 0 {
		m["conclusion"] = truncateAll(s.Conclusion)
	}
	if s.Evaluation != nil {
		m["total_score"] = s.Evaluation.Total
		m["max_score"] = s.Evaluation.MaxTotal
		m["feedback"] = truncate(s.Evaluation.Feedback, maxCompactText)
	}
	if s.EndReason != "" {
		m["end_reason"] = s.EndReason
	}
	if s.EndedAt != nil {
		m["ended_at"] = s.EndedAt
	}
	return m
}

func lastTurn(recs []debate.TurnRecord) (map[string]any, bool) {
	if len(recs) == 0 {
		return nil, false
	}
	r := recs[len(recs)-1]
	turn := map[string]any{"seq": r.Seq, "asker": r.Asker}
	if r.Question != "" {
		turn["question"] = truncate(r.Question, maxCompactText)
	}
	if r.Answered() {
		turn["answer"] = truncate(r.AnswerText(), maxCompactText)
	}
	return turn, true
}

func truncateAll(items []string) []string {
	return lo.Map(items, func(s string, _ int) string { return truncate(s, maxCompactText) })
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
