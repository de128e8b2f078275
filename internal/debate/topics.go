package debate

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/khoango6804/MLN-chatbot-debate/internal/llm"
)

//go:embed topics.yaml
var defaultTopicsYAML []byte

// TopicSource returns a debate topic for a course code.
type TopicSource interface {
	Topic(ctx context.Context, courseCode string) (string, error)
}

// Course is a curated topic set.
type Course struct {
	Code   string   `yaml:"-" json:"course_code"`
	Title  string   `yaml:"title" json:"title"`
	Topics []string `yaml:"topics" json:"topics"`
}

type topicFile struct {
	Courses map[string]Course `yaml:"courses"`
}

// TopicBank serves curated topics and falls back to the model for unknown
// courses. It is safe for concurrent use.
type TopicBank struct {
	courses map[string]Course
	model   llm.Client
	logger  *slog.Logger
	pick    func(n int) int
}

// TopicBankOption configures a TopicBank.
type TopicBankOption func(*TopicBank)

// WithTopicPicker replaces the random index picker.
func WithTopicPicker(pick func(n int) int) TopicBankOption {
	return func(b *TopicBank) { b.pick = pick }
}

// NewTopicBank parses a YAML topic bank. An empty document loads the
// built-in bank. model may be nil, in which case unknown courses get
// DefaultTopic.
func NewTopicBank(data []byte, model llm.Client, logger *slog.Logger, opts ...TopicBankOption) (*TopicBank, error) {
	if len(data) == 0 {
		data = defaultTopicsYAML
	}
	var f topicFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("debate: parse topic bank: %w", err)
	}
	courses := make(map[string]Course, len(f.Courses))
	for code, c := range f.Courses {
		key := normalizeCourse(code)
		c.Code = key
		c.Topics = slices.DeleteFunc(slices.Clone(c.Topics), func(t string) bool { return strings.TrimSpace(t) == "" })
		if len(c.Topics) == 0 {
			return nil, fmt.Errorf("debate: topic bank course %q has no topics", code)
		}
		courses[key] = c
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &TopicBank{courses: courses, model: model, logger: logger, pick: rand.IntN}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

// LoadTopicBank reads a topic bank from path, or the built-in bank when path
// is empty.
func LoadTopicBank(path string, model llm.Client, logger *slog.Logger, opts ...TopicBankOption) (*TopicBank, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path) //nolint:gosec // operator-supplied config path
		if err != nil {
			return nil, fmt.Errorf("debate: read topic bank: %w", err)
		}
	}
	return NewTopicBank(data, model, logger, opts...)
}

// Topic picks a curated topic at random. Unknown courses are generated by
// the model; if that fails DefaultTopic is returned and the failure logged.
func (b *TopicBank) Topic(ctx context.Context, courseCode string) (string, error) {
	if c, ok := b.courses[normalizeCourse(courseCode)]; ok {
		return c.Topics[b.pick(len(c.Topics))], nil
	}
	if b.model == nil {
		return DefaultTopic, nil
	}
	reply, err := b.model.Invoke(ctx, topicPrompt(courseCode))
	if err == nil {
		if lines := splitLines(reply); len(lines) > 0 {
			return strings.Trim(lines[0], `"`), nil
		}
	}
	b.logger.Warn("debate: topic generation failed, using default topic",
		"course_code", courseCode, "error", err)
	return DefaultTopic, nil
}

// Course returns the curated set for a course code.
func (b *TopicBank) Course(courseCode string) (Course, bool) {
	c, ok := b.courses[normalizeCourse(courseCode)]
	if !ok {
		return Course{}, false
	}
	c.Topics = slices.Clone(c.Topics)
	return c, true
}

// Courses lists the curated course codes in sorted order.
func (b *TopicBank) Courses() []string {
	codes := make([]string, 0, len(b.courses))
	for code := range b.courses {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func normalizeCourse(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
