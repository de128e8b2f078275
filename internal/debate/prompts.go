package debate

import (
	"fmt"
	"strings"
)

func argumentsPrompt(topic string, side Stance) string {
	return fmt.Sprintf(`Bạn là một AI chuyên gia về tranh luận. Hãy tạo ra 3 luận điểm sắc bén cho chủ đề: "%s".
Lập trường của bạn: %s.

YÊU CẦU ĐỊNH DẠNG (BẮT BUỘC):
- KHÔNG GIỚI THIỆU: Bắt đầu ngay với luận điểm đầu tiên.
- CẤU TRÚC: Mỗi luận điểm phải có đủ 3 phần: "**Lập luận:**", "**Dẫn chứng lý thuyết:**", "**Ví dụ thực tiễn:**".
- PHÂN TÁCH: Bắt đầu mỗi luận điểm bằng một dấu gạch ngang và một khoảng trắng (ví dụ: "- **Lập luận:** ...").

Chỉ trả về 3 luận điểm, không có gì khác.
`, topic, side.Label())
}

func questionsPrompt(topic string, arguments []string) string {
	var b strings.Builder
	b.WriteString("Bạn là một AI sử dụng phương pháp triết học Socrates, chuyên đặt ra những câu hỏi sâu sắc để thử thách và khám phá một quan điểm.\n")
	fmt.Fprintf(&b, "Chủ đề tranh luận là: %q\n", topic)
	b.WriteString("Các luận điểm của đối phương là:\n")
	for _, a := range arguments {
		fmt.Fprintf(&b, "- %s\n", a)
	}
	b.WriteString(`
Dựa trên các luận điểm trên, hãy đặt ra 3 câu hỏi Socratic sắc bén.
- Câu hỏi phải mang tính mở, khơi gợi suy nghĩ và phản biện.
- Câu hỏi không nên là câu hỏi có/không.
- Câu hỏi phải trực tiếp thách thức các giả định hoặc logic trong luận điểm của đối phương.

Chỉ trả về 3 câu hỏi, mỗi câu hỏi trên một dòng, bắt đầu bằng một số và dấu chấm (ví dụ: "1. ..."). Không thêm lời giải thích nào khác.
`)
	return b.String()
}

func socraticAnswerPrompt(topic string, side Stance, question string, history []TurnRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bạn là AI tham gia tranh luận về chủ đề %q với lập trường: %s.\n", topic, side.Label())
	if len(history) > 0 {
		b.WriteString("Các lượt hỏi đáp trước đó:\n")
		for _, r := range history {
			switch {
			case r.Question != "":
				fmt.Fprintf(&b, "- Sinh viên hỏi: %s\n", r.Question)
			case r.Answered():
				fmt.Fprintf(&b, "- AI trả lời: %s\n", r.AnswerText())
			}
		}
	}
	fmt.Fprintf(&b, "\nSinh viên hỏi: %s\n\n", question)
	b.WriteString("Hãy trả lời theo phương pháp Socrates: bảo vệ lập trường của bạn bằng lập luận và dẫn chứng lý thuyết, " +
		"sau đó đặt lại một câu hỏi gợi mở cho sinh viên. Trả lời ngắn gọn trong tối đa 150 từ.\n")
	return b.String()
}

func counterConclusionPrompt(topic string, side Stance, conclusion []string) string {
	return fmt.Sprintf(`Chủ đề tranh luận: %q
Lập trường của AI: %s.

Tại sao AI nên thắng cuộc tranh luận này? Phản bác lại các luận điểm tổng kết của sinh viên: %s

Trả về 3 luận điểm phản bác, mỗi luận điểm trên một dòng, bắt đầu bằng dấu gạch ngang. Không thêm lời giới thiệu.
`, topic, side.Label(), strings.Join(conclusion, "; "))
}

func topicPrompt(courseCode string) string {
	return fmt.Sprintf(`Hãy đề xuất một chủ đề tranh luận học thuật cho môn học %s.
Chủ đề phải là một nhận định có thể đồng ý hoặc phản đối, viết bằng tiếng Việt, trong một câu.
Chỉ trả về chủ đề, không giải thích.`, courseCode)
}

// splitLines returns the non-blank lines of a reply with list markers removed.
func splitLines(content string) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(strings.TrimLeft(line, "-•"))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
