package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/khoango6804/MLN-chatbot-debate/internal/llm"
)

// Turn is one transcript entry as seen by the scorer.
type Turn struct {
	Asker    string `json:"asker"`
	Question string `json:"question,omitempty"`
	Answer   string `json:"answer,omitempty"`
}

// Input is the session snapshot the scorer reads.
type Input struct {
	Topic              string
	Stance             string
	TeamArguments      []string
	AIArguments        []string
	Phase2             []Turn
	Phase3             []Turn
	Conclusion         []string
	AICounterArguments []string
	StudentSummary     string
}

// ParseResult is the outcome of parsing a scoring reply: Parsed or Unparseable.
type ParseResult interface {
	isParseResult()
}

// Parsed holds scores and feedback decoded from the model reply. Scores may
// be partial; Resolve fills and clamps them against the rubric.
type Parsed struct {
	Scores   Scores
	Feedback string
}

// Unparseable carries the raw reply that could not be decoded.
type Unparseable struct {
	Raw    string
	Reason string
}

func (Parsed) isParseResult()      {}
func (Unparseable) isParseResult() {}

// Aggregator turns a debate snapshot into an Evaluation.
type Aggregator struct {
	model  llm.Client
	rubric Rubric
	logger *slog.Logger
	clock  clock.Clock
}

// NewAggregator creates an Aggregator. A nil clock uses wall time.
func NewAggregator(model llm.Client, rubric Rubric, logger *slog.Logger, clk clock.Clock) *Aggregator {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{model: model, rubric: rubric, logger: logger, clock: clk}
}

// Rubric returns the rubric the aggregator scores against.
func (a *Aggregator) Rubric() Rubric {
	return a.rubric
}

// Evaluate scores the debate. Model failures and unparseable replies yield a
// zero-filled evaluation.
func (a *Aggregator) Evaluate(ctx context.Context, in Input) Evaluation {
	raw, err := a.model.Invoke(ctx, a.BuildPrompt(in))
	if err != nil {
		a.logger.Warn("evaluation: model invocation failed, using zero scores", "error", err)
		return a.rubric.ZeroEvaluation(SystemErrorFeedback, a.clock.Now())
	}
	res := a.rubric.Parse(raw)
	if u, ok := res.(Unparseable); ok {
		a.logger.Warn("evaluation: unparseable model reply, using zero scores",
			"reason", u.Reason, "raw_len", len(u.Raw))
	}
	return a.rubric.Resolve(res, a.clock.Now())
}

// BuildPrompt renders the rubric and transcript into the scoring prompt.
func (a *Aggregator) BuildPrompt(in Input) string {
	var b strings.Builder
	b.WriteString("Bạn là giám khảo của một cuộc tranh luận học thuật giữa nhóm sinh viên và AI.\n")
	fmt.Fprintf(&b, "Chủ đề: %s\n", in.Topic)
	if in.Stance != "" {
		fmt.Fprintf(&b, "Lập trường của nhóm: %s\n", in.Stance)
	}

	b.WriteString("\nTIÊU CHÍ CHẤM ĐIỂM (chỉ chấm cho nhóm sinh viên):\n")
	for _, p := range a.rubric.Phases {
		fmt.Fprintf(&b, "%s [%s]\n", p.Title, p.Key)
		for _, c := range p.Criteria {
			fmt.Fprintf(&b, "- %s %s: 0-%d điểm\n", c.ID, c.Name, c.MaxScore)
		}
	}

	b.WriteString("\nGIAI ĐOẠN 1 - Luận điểm của nhóm:\n")
	writeList(&b, in.TeamArguments)
	b.WriteString("Luận điểm của AI:\n")
	writeList(&b, in.AIArguments)

	b.WriteString("\nGIAI ĐOẠN 2 - AI hỏi, sinh viên trả lời:\n")
	writeTurns(&b, in.Phase2)
	b.WriteString("\nGIAI ĐOẠN 3 - Sinh viên hỏi, AI trả lời:\n")
	writeTurns(&b, in.Phase3)

	b.WriteString("\nGIAI ĐOẠN 4 - Kết luận của nhóm:\n")
	writeList(&b, in.Conclusion)
	b.WriteString("Phản bác của AI:\n")
	writeList(&b, in.AICounterArguments)

	if in.StudentSummary != "" {
		fmt.Fprintf(&b, "\nTóm tắt của sinh viên: %s\n", in.StudentSummary)
	}

	b.WriteString("\nChỉ trả về JSON hợp lệ, không kèm giải thích, theo đúng định dạng:\n")
	b.WriteString(`{"scores": {`)
	for i, p := range a.rubric.Phases {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q: {", p.Key)
		for j, c := range p.Criteria {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%q: <0-%d>", c.ID, c.MaxScore)
		}
		b.WriteString("}")
	}
	b.WriteString(`}, "feedback": "<nhận xét tổng quan>"}`)
	b.WriteString("\n")
	return b.String()
}

func writeList(b *strings.Builder, items []string) {
	if len(items) == 0 {
		b.WriteString("(không có)\n")
		return
	}
	for i, it := range items {
		fmt.Fprintf(b, "%d. %s\n", i+1, it)
	}
}

func writeTurns(b *strings.Builder, turns []Turn) {
	if len(turns) == 0 {
		b.WriteString("(không có)\n")
		return
	}
	for _, t := range turns {
		switch {
		case t.Question != "":
			fmt.Fprintf(b, "[%s hỏi] %s\n", t.Asker, t.Question)
		case t.Answer != "":
			fmt.Fprintf(b, "[%s trả lời] %s\n", t.Asker, t.Answer)
		}
	}
}

// Parse decodes a model reply. The JSON object may be wrapped in prose or a
// fenced code block; the outermost braces are extracted before decoding.
func (r Rubric) Parse(raw string) ParseResult {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Unparseable{Raw: raw, Reason: "no JSON object in reply"}
	}

	var reply struct {
		Scores   map[string]map[string]any `json:"scores"`
		Feedback string                    `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &reply); err != nil {
		return Unparseable{Raw: raw, Reason: err.Error()}
	}
	if len(reply.Scores) == 0 {
		return Unparseable{Raw: raw, Reason: "missing scores"}
	}

	scores := make(Scores)
	for _, p := range r.Phases {
		got, ok := reply.Scores[p.Key]
		if !ok {
			continue
		}
		m := make(map[string]int, len(got))
		for id, v := range got {
			n, err := toInt(v)
			if err != nil {
				return Unparseable{Raw: raw, Reason: fmt.Sprintf("%s.%s: %v", p.Key, id, err)}
			}
			m[id] = n
		}
		scores[p.Key] = m
	}
	if len(scores) == 0 {
		return Unparseable{Raw: raw, Reason: "no known rubric phase in scores"}
	}
	return Parsed{Scores: scores, Feedback: strings.TrimSpace(reply.Feedback)}
}

// Resolve converts a ParseResult into an Evaluation with the full rubric
// shape. Parsed scores are clamped to [0, max]; criteria missing from the
// reply score 0 and unknown criteria are dropped.
func (r Rubric) Resolve(res ParseResult, at time.Time) Evaluation {
	parsed, ok := res.(Parsed)
	if !ok {
		return r.ZeroEvaluation(SystemErrorFeedback, at)
	}
	scores := r.ZeroScores()
	for _, p := range r.Phases {
		for _, c := range p.Criteria {
			v := parsed.Scores[p.Key][c.ID]
			scores[p.Key][c.ID] = min(max(v, 0), c.MaxScore)
		}
	}
	return Evaluation{
		Scores:      scores,
		Feedback:    parsed.Feedback,
		Total:       scores.Total(),
		MaxTotal:    r.MaxTotal(),
		Parsed:      true,
		EvaluatedAt: at,
	}
}

// scoreBound keeps out-of-range replies inside int before Resolve clamps
// them to the criterion maximum.
const scoreBound = 1 << 20

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		return roundScore(n)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return 0, fmt.Errorf("score %q is not a number", n)
		}
		return roundScore(f)
	case nil:
		return 0, nil
	default:
		return 0, errors.New("score is not a number")
	}
}

func roundScore(f float64) (int, error) {
	if math.IsNaN(f) {
		return 0, errors.New("score is NaN")
	}
	return int(math.Round(min(max(f, -scoreBound), scoreBound))), nil
}
