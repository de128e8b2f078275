package debate

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/khoango6804/MLN-chatbot-debate/internal/evaluation"
)

// LeaderboardEntries converts archived snapshots into leaderboard entries.
// Snapshots without an evaluation are skipped.
func LeaderboardEntries(snaps []Snapshot) []evaluation.LeaderboardEntry {
	return lo.FilterMap(snaps, func(s Snapshot, _ int) (evaluation.LeaderboardEntry, bool) {
		if s.Evaluation == nil {
			return evaluation.LeaderboardEntry{}, false
		}
		completed := s.UpdatedAt
		if s.EndedAt != nil {
			completed = *s.EndedAt
		}
		return evaluation.LeaderboardEntry{
			TeamID:      s.TeamID,
			CourseCode:  s.CourseCode,
			Topic:       s.Topic,
			Members:     s.Members,
			Evaluation:  *s.Evaluation,
			CompletedAt: completed,
		}, true
	})
}

// Leaderboard ranks every evaluated session in the archive and returns at
// most limit standings. Statistics cover all ranked sessions.
func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]evaluation.Standing, evaluation.LeaderboardStats, error) {
	snaps, err := e.archive.Recent(ctx, 0)
	if err != nil {
		return nil, evaluation.LeaderboardStats{}, fmt.Errorf("debate: leaderboard: %w", err)
	}
	standings, stats := evaluation.BuildLeaderboard(LeaderboardEntries(snaps), limit)
	return standings, stats, nil
}
