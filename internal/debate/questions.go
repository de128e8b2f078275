package debate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Input length limits, counted in runes after trimming.
const (
	MinAnswerLength          = 10
	MinStudentQuestionLength = 12
	minMeaningfulAnswer      = 5
	minCandidateQuestion     = 20
)

// Canned content used when the model is unavailable or its output is rejected.
const (
	DefaultFirstQuestion = "Bạn có thể giải thích rõ hơn về quan điểm này không?"
	ApologyAnswer        = "Tôi cần thêm thời gian để suy nghĩ về câu hỏi này. Hãy thử câu hỏi khác."
	UnavailableAnswer    = "Hệ thống AI tạm thời không khả dụng."
	DefaultTopic         = "Vai trò của triết học Mác-Lênin trong đời sống xã hội hiện đại"
)

// DefaultConclusion replaces an empty conclusion submission.
var DefaultConclusion = []string{
	"Nhóm chúng tôi có luận điểm vững chắc được trình bày trong các giai đoạn trước.",
	"Các câu trả lời của chúng tôi thể hiện sự hiểu biết sâu sắc về chủ đề.",
	"Chúng tôi đã phản biện hiệu quả các luận điểm của AI.",
}

var fallbackAIArguments = []string{
	"**Lập luận:** Quan điểm đối lập bỏ qua tính biện chứng của sự vật, hiện tượng. **Dẫn chứng lý thuyết:** Phép biện chứng duy vật xem xét sự vật trong mối liên hệ phổ biến và sự phát triển. **Ví dụ thực tiễn:** Các chính sách kinh tế thay đổi theo từng giai đoạn lịch sử.",
	"**Lập luận:** Thực tiễn là tiêu chuẩn của chân lý và chưa ủng hộ quan điểm đối lập. **Dẫn chứng lý thuyết:** Lý luận nhận thức duy vật biện chứng. **Ví dụ thực tiễn:** Nhiều dự báo từng được coi là tất yếu đã không xảy ra.",
	"**Lập luận:** Quan điểm đối lập đánh giá thấp vai trò của các yếu tố xã hội. **Dẫn chứng lý thuyết:** Mối quan hệ giữa tồn tại xã hội và ý thức xã hội. **Ví dụ thực tiễn:** Sự khác biệt văn hóa giữa các quốc gia có cùng trình độ phát triển.",
}

var fallbackCounterArguments = []string{
	"AI đã đưa ra các lập luận có dẫn chứng lý thuyết rõ ràng xuyên suốt cuộc tranh luận.",
	"Kết luận của nhóm chưa trả lời trực tiếp các câu hỏi phản biện của AI.",
	"Các luận điểm tổng kết của nhóm cần thêm ví dụ thực tiễn để có sức thuyết phục.",
}

var (
	numericOnly       = regexp.MustCompile(`^[0-9\s]+$`)
	longDigitRun      = regexp.MustCompile(`[0-9]{5,}`)
	topicDigitRun     = regexp.MustCompile(`[0-9]{3,}`)
	numberedLine      = regexp.MustCompile(`(?m)^[ \t]*\d+\.[ \t]*(.*)$`)
	argumentSeparator = regexp.MustCompile(`\n\s*-\s*`)
)

// Substrings that mark keyboard-mash answers anywhere in the text.
var severeNonsense = []string{"ádfasd", "asdf"}

// Tokens that mark keyboard-mash answers only as whole words; as substrings
// they would match ordinary Vietnamese.
var severeNonsenseTokens = []string{"ád", "ấd"}

var interrogatives = []string{"bạn", "có", "thể", "như", "nào", "tại", "sao", "gì"}

var blockedPhrases = []string{
	"as an ai",
	"language model",
	"tôi là một mô hình ngôn ngữ",
	"xin lỗi",
	"i'm sorry",
	"i cannot",
	"```",
	"json",
	"lorem ipsum",
	"fallback",
}

// IsDegenerateAnswer reports whether an answer is too poor to build a
// follow-up question on: very short, digits only, or keyboard mash.
func IsDegenerateAnswer(answer string) bool {
	a := strings.TrimSpace(answer)
	if utf8.RuneCountInString(a) < minMeaningfulAnswer {
		return true
	}
	if numericOnly.MatchString(a) {
		return true
	}
	lower := strings.ToLower(a)
	for _, p := range severeNonsense {
		if strings.Contains(lower, p) {
			return true
		}
	}
	for _, tok := range strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) }) {
		for _, p := range severeNonsenseTokens {
			if tok == p {
				return true
			}
		}
	}
	return false
}

// ValidateCandidate reports whether a model-generated question may be shown
// to students. previous holds questions already asked in the ledger.
func ValidateCandidate(q string, previous []string) bool {
	q = strings.TrimSpace(q)
	if utf8.RuneCountInString(q) <= minCandidateQuestion {
		return false
	}
	if !strings.Contains(q, "?") {
		return false
	}
	if longDigitRun.MatchString(q) {
		return false
	}
	lower := strings.ToLower(q)
	for _, p := range blockedPhrases {
		if strings.Contains(lower, p) {
			return false
		}
	}
	hasInterrogative := false
	for _, w := range interrogatives {
		if strings.Contains(lower, w) {
			hasInterrogative = true
			break
		}
	}
	if !hasInterrogative {
		return false
	}
	return !askedBefore(q, previous)
}

func askedBefore(q string, previous []string) bool {
	key := strings.ToLower(strings.TrimSpace(q))
	for _, p := range previous {
		if strings.ToLower(strings.TrimSpace(p)) == key {
			return true
		}
	}
	return false
}

// FallbackPool returns the fixed follow-up questions for a topic. The first
// entry embeds the topic with long digit runs removed.
func FallbackPool(topic string) []string {
	topicSafe := strings.Join(strings.Fields(topicDigitRun.ReplaceAllString(topic, "")), " ")
	return []string{
		fmt.Sprintf("Bạn có thể phân tích sâu hơn về quan điểm của mình trong bối cảnh %s không?", topicSafe),
		"Những bằng chứng nào có thể ủng hộ lập luận này?",
		"Bạn có thể so sánh với các quan điểm khác về vấn đề này không?",
		"Tác động thực tế của quan điểm này như thế nào?",
		"Những khía cạnh nào khác cần được xem xét?",
		"Bạn có thể giải thích rõ hơn về cơ sở lý thuyết không?",
		"Quan điểm này có những hạn chế gì cần thảo luận?",
		"Có những góc nhìn nào khác về vấn đề này?",
		"Bạn có thể đưa ra ví dụ cụ thể để minh họa không?",
		"Những thách thức chính của quan điểm này là gì?",
		"Làm sao để áp dụng quan điểm này vào thực tế?",
		"Có những nghiên cứu nào ủng hộ quan điểm này?",
		"Bạn có thể phân tích ưu và nhược điểm không?",
	}
}

// SelectFallback picks the first pool question not yet asked. Once the pool
// is exhausted it returns a numbered generic question.
func SelectFallback(topic string, previous []string) string {
	for _, q := range FallbackPool(topic) {
		if !askedBefore(q, previous) {
			return q
		}
	}
	return fmt.Sprintf("Ở góc độ thứ %d, bạn có thể làm rõ thêm về vấn đề này không?", len(previous)+1)
}

// ParseNumberedQuestions extracts "1. ..." style lines from a model reply.
func ParseNumberedQuestions(content string) []string {
	var out []string
	for _, m := range numberedLine.FindAllStringSubmatch(content, -1) {
		if q := strings.TrimSpace(m[1]); q != "" {
			out = append(out, q)
		}
	}
	return out
}

// SplitArguments splits a model reply into arguments. Parts must carry both
// the reasoning and the theoretical-evidence headings; when none does, the
// whole reply is a single argument.
func SplitArguments(content string) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	var out []string
	for _, part := range argumentSeparator.Split(content, -1) {
		part = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), "-"))
		if strings.Contains(part, "Lập luận") && strings.Contains(part, "Dẫn chứng lý thuyết") {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return []string{content}
	}
	return out
}

// validStudentQuestion checks the Phase 3 input rules.
func validStudentQuestion(q string) error {
	if utf8.RuneCountInString(q) < MinStudentQuestionLength {
		return invalid("question", "must be at least %d characters", MinStudentQuestionLength)
	}
	if !strings.Contains(q, "?") {
		return invalid("question", "must contain a question mark")
	}
	if !strings.ContainsFunc(q, unicode.IsLetter) {
		return invalid("question", "must contain at least one letter")
	}
	return nil
}
