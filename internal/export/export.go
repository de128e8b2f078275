// Package export renders debate snapshots as downloadable transcripts.
//
// Phase 2 turns are read only from the Phase 2 ledger and Phase 3 turns only
// from the Phase 3 ledger. Within a ledger, questions and answers are split
// into two streams and paired by position; the shorter stream is padded with
// Unanswered.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/khoango6804/MLN-chatbot-debate/internal/debate"
	"github.com/khoango6804/MLN-chatbot-debate/internal/evaluation"
)

// Unanswered pads a pair whose question or answer is missing.
const Unanswered = "(Chưa trả lời)"

// Format is an export file format.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatText     Format = "txt"
	FormatJSON     Format = "json"
)

// ParseFormat maps a query value to a Format. Empty means Markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("export: unsupported format %q", s)
	}
}

// ContentType returns the HTTP content type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json; charset=utf-8"
	case FormatText:
		return "text/plain; charset=utf-8"
	default:
		return "text/markdown; charset=utf-8"
	}
}

// Pair is a question matched with its answer.
type Pair struct {
	Turn     int    `json:"turn"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Stats summarizes the transcript.
type Stats struct {
	Phase2Questions int `json:"phase2_questions"`
	Phase2Answers   int `json:"phase2_answers"`
	Phase3Questions int `json:"phase3_questions"`
	Phase3Answers   int `json:"phase3_answers"`
	TotalTurns      int `json:"total_turns"`
}

// Report is everything a renderer needs.
type Report struct {
	Snapshot    debate.Snapshot   `json:"session"`
	Phase2      []Pair            `json:"phase2_pairs"`
	Phase3      []Pair            `json:"phase3_pairs"`
	Stats       Stats             `json:"stats"`
	Rubric      evaluation.Rubric `json:"-"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// Build assembles a Report from a snapshot.
func Build(snap debate.Snapshot, rubric evaluation.Rubric, at time.Time) Report {
	p2q, p2a := split(snap.Phase2Ledger, debate.AskerAI, debate.AskerStudent)
	p3q, p3a := split(snap.Phase3Ledger, debate.AskerStudent, debate.AskerAI)
	return Report{
		Snapshot: snap,
		Phase2:   pair(p2q, p2a),
		Phase3:   pair(p3q, p3a),
		Stats: Stats{
			Phase2Questions: len(p2q),
			Phase2Answers:   len(p2a),
			Phase3Questions: len(p3q),
			Phase3Answers:   len(p3a),
			TotalTurns:      snap.TurnCount(),
		},
		Rubric:      rubric,
		GeneratedAt: at,
	}
}

// split separates a ledger into the asker's questions and the answerer's
// answers, in ledger order.
func split(recs []debate.TurnRecord, asker, answerer debate.Asker) (questions, answers []string) {
	for _, r := range recs {
		switch {
		case r.Asker == asker && r.Question != "":
			questions = append(questions, r.Question)
		case r.Asker == answerer && r.Answered():
			answers = append(answers, r.AnswerText())
		}
	}
	return questions, answers
}

func pair(questions, answers []string) []Pair {
	n := max(len(questions), len(answers))
	out := make([]Pair, n)
	for i := range n {
		out[i] = Pair{
			Turn:     i + 1,
			Question: nthOr(questions, i),
			Answer:   nthOr(answers, i),
		}
	}
	return out
}

func nthOr(items []string, i int) string {
	if i < len(items) {
		return items[i]
	}
	return Unanswered
}

// Render writes r to w in format f.
func Render(w io.Writer, r Report, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatText:
		return renderText(w, r)
	case FormatMarkdown:
		return renderMarkdown(w, r)
	default:
		return fmt.Errorf("export: unsupported format %q", f)
	}
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Filename returns debate_<team>_<timestamp>.<ext>.
func Filename(r Report, f Format) string {
	team := strings.Trim(unsafeFilename.ReplaceAllString(r.Snapshot.TeamID, "_"), "_")
	if team == "" {
		team = "team"
	}
	return fmt.Sprintf("debate_%s_%s.%s", team, r.GeneratedAt.UTC().Format("20060102_150405"), f)
}
