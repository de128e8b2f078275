package evaluation

import (
	"cmp"
	"slices"
	"time"

	"github.com/samber/lo"
)

// Rank levels by score percentage.
const (
	RankPlatinum = "Platinum"
	RankGold     = "Gold"
	RankSilver   = "Silver"
	RankBronze   = "Bronze"
)

// RankLevel maps a percentage (0-100) to a rank level.
func RankLevel(pct float64) string {
	switch {
	case pct > 95:
		return RankPlatinum
	case pct >= 80:
		return RankGold
	case pct >= 60:
		return RankSilver
	default:
		return RankBronze
	}
}

// Percentage returns total/max as a percentage capped at 100.
func Percentage(total, maxTotal int) float64 {
	if total <= 0 || maxTotal <= 0 {
		return 0
	}
	return min(100, float64(total)/float64(maxTotal)*100)
}

// LeaderboardEntry is one finished, evaluated debate.
type LeaderboardEntry struct {
	TeamID      string
	CourseCode  string
	Topic       string
	Members     []string
	Evaluation  Evaluation
	CompletedAt time.Time
}

// Standing is a ranked leaderboard row.
type Standing struct {
	Position    int            `json:"position"`
	TeamID      string         `json:"team_id"`
	CourseCode  string         `json:"course_code"`
	Topic       string         `json:"topic"`
	Members     []string       `json:"members"`
	TotalScore  int            `json:"total_score"`
	MaxScore    int            `json:"max_score"`
	Percentage  float64        `json:"percentage"`
	RankLevel   string         `json:"rank_level"`
	PhaseScores map[string]int `json:"phase_scores"`
	CompletedAt time.Time      `json:"completed_at"`
}

// LeaderboardStats summarises every ranked entry, not just the returned page.
type LeaderboardStats struct {
	TotalTeams       int            `json:"total_teams"`
	AverageScore     float64        `json:"average_score"`
	HighestScore     int            `json:"highest_score"`
	RankDistribution map[string]int `json:"rank_distribution"`
}

// BuildLeaderboard ranks entries by total score (ties broken by earlier
// completion) and returns at most limit standings.
func BuildLeaderboard(entries []LeaderboardEntry, limit int) ([]Standing, LeaderboardStats) {
	standings := lo.Map(entries, func(e LeaderboardEntry, _ int) Standing {
		phases := make(map[string]int, len(e.Evaluation.Scores))
		for key := range e.Evaluation.Scores {
			phases[key] = e.Evaluation.Scores.PhaseTotal(key)
		}
		total := e.Evaluation.Scores.Total()
		pct := Percentage(total, e.Evaluation.MaxTotal)
		return Standing{
			TeamID:      e.TeamID,
			CourseCode:  e.CourseCode,
			Topic:       e.Topic,
			Members:     e.Members,
			TotalScore:  total,
			MaxScore:    e.Evaluation.MaxTotal,
			Percentage:  pct,
			RankLevel:   RankLevel(pct),
			PhaseScores: phases,
			CompletedAt: e.CompletedAt,
		}
	})

	slices.SortStableFunc(standings, func(a, b Standing) int {
		if c := cmp.Compare(b.TotalScore, a.TotalScore); c != 0 {
			return c
		}
		return a.CompletedAt.Compare(b.CompletedAt)
	})
	for i := range standings {
		standings[i].Position = i + 1
	}

	stats := LeaderboardStats{
		TotalTeams: len(standings),
		RankDistribution: map[string]int{
			RankPlatinum: 0, RankGold: 0, RankSilver: 0, RankBronze: 0,
		},
	}
	if len(standings) > 0 {
		sum := lo.SumBy(standings, func(s Standing) int { return s.TotalScore })
		stats.AverageScore = float64(sum) / float64(len(standings))
		stats.HighestScore = standings[0].TotalScore
		for level, group := range lo.GroupBy(standings, func(s Standing) string { return s.RankLevel }) {
			stats.RankDistribution[level] = len(group)
		}
	}

	if limit > 0 && len(standings) > limit {
		standings = standings[:limit]
	}
	return standings, stats
}
