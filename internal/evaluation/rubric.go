// Package evaluation scores a finished debate against a fixed rubric.
//
// The Aggregator renders the rubric and the debate transcript into a single
// scoring prompt, invokes the language model, and parses the reply into a
// ParseResult: either Parsed scores or an Unparseable raw reply. Unparseable
// replies and model failures resolve to a zero-filled Evaluation with the
// full rubric shape; evaluation never returns an error to the caller.
package evaluation

import (
	"time"
)

// Phase keys used by DefaultRubric and in the JSON score map.
const (
	PhaseArguments        = "phase1"
	PhaseAIQuestions      = "phase2A"
	PhaseStudentQuestions = "phase2B"
)

// SystemErrorFeedback is the feedback attached to a zero-filled evaluation.
const SystemErrorFeedback = "Lỗi hệ thống: Không thể phân tích phản hồi từ AI."

// Criterion is one scored rubric item.
type Criterion struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MaxScore int    `json:"max_score"`
}

// RubricPhase is a named group of criteria.
type RubricPhase struct {
	Key      string      `json:"key"`
	Title    string      `json:"title"`
	Criteria []Criterion `json:"criteria"`
}

// Rubric is the ordered set of scoring phases.
type Rubric struct {
	Phases []RubricPhase `json:"phases"`
}

// DefaultRubric returns the debate scoring rubric.
func DefaultRubric() Rubric {
	return Rubric{Phases: []RubricPhase{
		{
			Key:   PhaseArguments,
			Title: "Giai đoạn 1: Luận điểm",
			Criteria: []Criterion{
				{ID: "1.1", Name: "Hiểu biết & nhận thức", MaxScore: 6},
				{ID: "1.2", Name: "Tư duy phản biện", MaxScore: 4},
				{ID: "1.3", Name: "Nhận diện văn hóa – xã hội", MaxScore: 3},
				{ID: "1.4", Name: "Bản sắc & chiến lược", MaxScore: 4},
				{ID: "1.5", Name: "Sáng tạo học thuật", MaxScore: 4},
				{ID: "1.6", Name: "Đạo đức học thuật", MaxScore: 4},
			},
		},
		{
			Key:   PhaseAIQuestions,
			Title: "Giai đoạn 2A: AI hỏi – Sinh viên trả lời",
			Criteria: []Criterion{
				{ID: "2A.1", Name: "Hiểu biết & nhận thức", MaxScore: 5},
				{ID: "2A.2", Name: "Tư duy phản biện", MaxScore: 5},
				{ID: "2A.3", Name: "Ngôn ngữ & thuật ngữ", MaxScore: 4},
				{ID: "2A.4", Name: "Chiến lược & điều hướng", MaxScore: 3},
				{ID: "2A.5", Name: "Văn hóa – xã hội", MaxScore: 3},
				{ID: "2A.6", Name: "Đạo đức & trung thực", MaxScore: 4},
			},
		},
		{
			Key:   PhaseStudentQuestions,
			Title: "Giai đoạn 2B: Sinh viên hỏi – AI trả lời",
			Criteria: []Criterion{
				{ID: "2B.1", Name: "Hiểu biết & nhận thức", MaxScore: 5},
				{ID: "2B.2", Name: "Tư duy phản biện", MaxScore: 5},
				{ID: "2B.3", Name: "Ngôn ngữ & thuật ngữ", MaxScore: 4},
				{ID: "2B.4", Name: "Chiến lược & điều hướng", MaxScore: 3},
				{ID: "2B.5", Name: "Văn hóa – xã hội", MaxScore: 3},
				{ID: "2B.6", Name: "Đạo đức & đối thoại", MaxScore: 4},
			},
		},
	}}
}

// MaxTotal is the sum of every criterion's maximum.
func (r Rubric) MaxTotal() int {
	total := 0
	for _, p := range r.Phases {
		for _, c := range p.Criteria {
			total += c.MaxScore
		}
	}
	return total
}

// ZeroScores returns a score map with every phase and criterion set to 0.
func (r Rubric) ZeroScores() Scores {
	s := make(Scores, len(r.Phases))
	for _, p := range r.Phases {
		m := make(map[string]int, len(p.Criteria))
		for _, c := range p.Criteria {
			m[c.ID] = 0
		}
		s[p.Key] = m
	}
	return s
}

// ZeroEvaluation returns a zero-filled evaluation with the given feedback.
func (r Rubric) ZeroEvaluation(feedback string, at time.Time) Evaluation {
	return Evaluation{
		Scores:      r.ZeroScores(),
		Feedback:    feedback,
		Total:       0,
		MaxTotal:    r.MaxTotal(),
		Parsed:      false,
		EvaluatedAt: at,
	}
}

// Scores maps phase key -> criterion id -> score.
type Scores map[string]map[string]int

// PhaseTotal sums the scores of one phase.
func (s Scores) PhaseTotal(phase string) int {
	total := 0
	for _, v := range s[phase] {
		total += v
	}
	return total
}

// Total sums every score.
func (s Scores) Total() int {
	total := 0
	for phase := range s {
		total += s.PhaseTotal(phase)
	}
	return total
}

// Evaluation is the resolved scoring result stored on a session.
type Evaluation struct {
	Scores      Scores    `json:"scores"`
	Feedback    string    `json:"feedback"`
	Total       int       `json:"total"`
	MaxTotal    int       `json:"max_total"`
	Parsed      bool      `json:"parsed"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}
