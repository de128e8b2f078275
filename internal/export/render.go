package export

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/khoango6804/MLN-chatbot-debate/internal/debate"
	"github.com/khoango6804/MLN-chatbot-debate/internal/evaluation"
)

const timeLayout = "2006-01-02 15:04:05"

func renderMarkdown(w io.Writer, r Report) error {
	bw := bufio.NewWriter(w)
	s := r.Snapshot

	fmt.Fprintf(bw, "# Biên bản tranh luận: %s\n\n", s.TeamID)
	fmt.Fprintf(bw, "- **Chủ đề:** %s\n", s.Topic)
	fmt.Fprintf(bw, "- **Môn học:** %s\n", s.CourseCode)
	fmt.Fprintf(bw, "- **Thành viên:** %s\n", strings.Join(s.Members, ", "))
	fmt.Fprintf(bw, "- **Lập trường của nhóm:** %s\n", s.Stance.Label())
	fmt.Fprintf(bw, "- **Trạng thái:** %s\n", statusLine(s))
	fmt.Fprintf(bw, "- **Bắt đầu:** %s\n", s.CreatedAt.Format(timeLayout))
	if s.EndedAt != nil {
		fmt.Fprintf(bw, "- **Kết thúc:** %s\n", s.EndedAt.Format(timeLayout))
	}

	bw.WriteString("\n## Giai đoạn 1: Luận điểm\n\n### Nhóm sinh viên\n\n")
	mdList(bw, s.TeamArguments)
	bw.WriteString("\n### AI\n\n")
	mdList(bw, s.AIArguments)

	bw.WriteString("\n## Giai đoạn 2: AI hỏi, sinh viên trả lời\n\n")
	mdPairs(bw, r.Phase2, "AI hỏi", "Sinh viên trả lời")

	bw.WriteString("\n## Giai đoạn 3: Sinh viên hỏi, AI trả lời\n\n")
	mdPairs(bw, r.Phase3, "Sinh viên hỏi", "AI trả lời")

	bw.WriteString("\n## Giai đoạn 4: Kết luận\n\n### Kết luận của nhóm\n\n")
	mdList(bw, s.Conclusion)
	bw.WriteString("\n### Phản bác của AI\n\n")
	mdList(bw, s.AICounterArguments)

	bw.WriteString("\n## Giai đoạn 5: Đánh giá\n\n")
	if s.Evaluation == nil {
		bw.WriteString("_Chưa có đánh giá._\n")
	} else {
		bw.WriteString("| Tiêu chí | Điểm | Tối đa |\n|---|---:|---:|\n")
		for _, row := range scoreRows(r.Rubric, *s.Evaluation) {
			fmt.Fprintf(bw, "| %s | %s | %s |\n", row[0], row[1], row[2])
		}
		fmt.Fprintf(bw, "\n**Nhận xét:** %s\n", s.Evaluation.Feedback)
	}

	bw.WriteString("\n## Thống kê\n\n")
	writeStats(bw, r.Stats, "- ")
	if s.IntegrityHash != "" {
		fmt.Fprintf(bw, "\n`integrity: %s`\n", s.IntegrityHash)
	}
	return bw.Flush()
}

func renderText(w io.Writer, r Report) error {
	bw := bufio.NewWriter(w)
	s := r.Snapshot
	rule := strings.Repeat("=", 60)

	fmt.Fprintf(bw, "%s\nBIÊN BẢN TRANH LUẬN: %s\n%s\n", rule, s.TeamID, rule)
	fmt.Fprintf(bw, "Chủ đề: %s\n", s.Topic)
	fmt.Fprintf(bw, "Môn học: %s\n", s.CourseCode)
	fmt.Fprintf(bw, "Thành viên: %s\n", strings.Join(s.Members, ", "))
	fmt.Fprintf(bw, "Lập trường của nhóm: %s\n", s.Stance.Label())
	fmt.Fprintf(bw, "Trạng thái: %s\n", statusLine(s))

	fmt.Fprintf(bw, "\nGIAI ĐOẠN 1: LUẬN ĐIỂM\n%s\nNhóm sinh viên:\n", rule)
	textList(bw, s.TeamArguments)
	bw.WriteString("AI:\n")
	textList(bw, s.AIArguments)

	fmt.Fprintf(bw, "\nGIAI ĐOẠN 2: AI HỎI, SINH VIÊN TRẢ LỜI\n%s\n", rule)
	textPairs(bw, r.Phase2, "AI hỏi", "Sinh viên trả lời")

	fmt.Fprintf(bw, "\nGIAI ĐOẠN 3: SINH VIÊN HỎI, AI TRẢ LỜI\n%s\n", rule)
	textPairs(bw, r.Phase3, "Sinh viên hỏi", "AI trả lời")

	fmt.Fprintf(bw, "\nGIAI ĐOẠN 4: KẾT LUẬN\n%s\nKết luận của nhóm:\n", rule)
	textList(bw, s.Conclusion)
	bw.WriteString("Phản bác của AI:\n")
	textList(bw, s.AICounterArguments)

	fmt.Fprintf(bw, "\nGIAI ĐOẠN 5: ĐÁNH GIÁ\n%s\n", rule)
	if s.Evaluation == nil {
		bw.WriteString("Chưa có đánh giá.\n")
	} else {
		table := tablewriter.NewWriter(bw)
		table.Header("Tiêu chí", "Điểm", "Tối đa")
		for _, row := range scoreRows(r.Rubric, *s.Evaluation) {
			if err := table.Append(row); err != nil {
				return fmt.Errorf("export: score table: %w", err)
			}
		}
		if err := table.Render(); err != nil {
			return fmt.Errorf("export: score table: %w", err)
		}
		fmt.Fprintf(bw, "Nhận xét: %s\n", s.Evaluation.Feedback)
	}

	fmt.Fprintf(bw, "\nTHỐNG KÊ\n%s\n", rule)
	writeStats(bw, r.Stats, "")
	if s.IntegrityHash != "" {
		fmt.Fprintf(bw, "\nintegrity: %s\n", s.IntegrityHash)
	}
	return bw.Flush()
}

func statusLine(s debate.Snapshot) string {
	if s.EndReason != "" {
		return fmt.Sprintf("%s (%s)", s.Status, s.EndReason)
	}
	return string(s.Status)
}

// scoreRows lists every criterion in rubric order, then a total row.
func scoreRows(rubric evaluation.Rubric, ev evaluation.Evaluation) [][]string {
	var rows [][]string
	for _, p := range rubric.Phases {
		for _, c := range p.Criteria {
			rows = append(rows, []string{
				c.ID + " " + c.Name,
				strconv.Itoa(ev.Scores[p.Key][c.ID]),
				strconv.Itoa(c.MaxScore),
			})
		}
	}
	maxTotal := ev.MaxTotal
	if maxTotal == 0 {
		maxTotal = rubric.MaxTotal()
	}
	return append(rows, []string{"Tổng", strconv.Itoa(ev.Total), strconv.Itoa(maxTotal)})
}

func writeStats(w *bufio.Writer, st Stats, prefix string) {
	fmt.Fprintf(w, "%sCâu hỏi của AI (giai đoạn 2): %d\n", prefix, st.Phase2Questions)
	fmt.Fprintf(w, "%sCâu trả lời của sinh viên (giai đoạn 2): %d\n", prefix, st.Phase2Answers)
	fmt.Fprintf(w, "%sCâu hỏi của sinh viên (giai đoạn 3): %d\n", prefix, st.Phase3Questions)
	fmt.Fprintf(w, "%sCâu trả lời của AI (giai đoạn 3): %d\n", prefix, st.Phase3Answers)
	fmt.Fprintf(w, "%sTổng số lượt: %d\n", prefix, st.TotalTurns)
}

func mdList(w *bufio.Writer, items []string) {
	if len(items) == 0 {
		w.WriteString("_Không có._\n")
		return
	}
	for i, it := range items {
		fmt.Fprintf(w, "%d. %s\n", i+1, it)
	}
}

func mdPairs(w *bufio.Writer, pairs []Pair, qLabel, aLabel string) {
	if len(pairs) == 0 {
		w.WriteString("_Không có lượt nào._\n")
		return
	}
	for _, p := range pairs {
		fmt.Fprintf(w, "**Lượt %d**\n\n- **%s:** %s\n- **%s:** %s\n\n", p.Turn, qLabel, p.Question, aLabel, p.Answer)
	}
}

func textList(w *bufio.Writer, items []string) {
	if len(items) == 0 {
		w.WriteString("  (không có)\n")
		return
	}
	for i, it := range items {
		fmt.Fprintf(w, "  %d. %s\n", i+1, it)
	}
}

func textPairs(w *bufio.Writer, pairs []Pair, qLabel, aLabel string) {
	if len(pairs) == 0 {
		w.WriteString("(không có lượt nào)\n")
		return
	}
	for _, p := range pairs {
		fmt.Fprintf(w, "Lượt %d\n  %s: %s\n  %s: %s\n", p.Turn, qLabel, p.Question, aLabel, p.Answer)
	}
}
