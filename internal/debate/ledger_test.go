package debate

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/khoango6804/MLN-chatbot-debate/internal/llm"
)

func TestLedgerAppendAssignsSequence(t *testing.T) {
	var l TurnLedger
	ans := "answer"
	r1 := l.Append(AskerAI, "q?", nil, time.Unix(1, 0))
	r2 := l.Append(AskerStudent, "", &ans, time.Unix(2, 0))

	assert.Equal(t, 1, r1.Seq)
	assert.Equal(t, 2, r2.Seq)
	ans = "mutated"
	assert.Equal(t, "answer", l.Records()[1].AnswerText(), "record keeps its own copy")

	last, ok := l.Last()
	require.True(t, ok)
	assert.Equal(t, AskerStudent, last.Asker)
	assert.Equal(t, []string{"q?"}, l.Questions(AskerAI))
}

func TestLedgerRecordsAreCopies(t *testing.T) {
	var l TurnLedger
	ans := "a"
	l.Append(AskerStudent, "", &ans, time.Time{})
	recs := l.Records()
	*recs[0].Answer = "changed"
	assert.Equal(t, "a", l.Records()[0].AnswerText())
}

func TestLedgerJSON(t *testing.T) {
	var empty TurnLedger
	b, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(b))

	var l TurnLedger
	require.NoError(t, json.Unmarshal([]byte(`[{"seq":1,"asker":"AI","question":"q?","created_at":"2026-01-01T00:00:00Z"}]`), &l))
	assert.Equal(t, 1, l.Len())

	err = json.Unmarshal([]byte(`[{"seq":2,"asker":"AI"}]`), &l)
	require.Error(t, err, "gaps are rejected")
}

// Every ledger built through the engine numbers its records 1..N with no
// gaps, whatever mix of operations and model failures produced them.
func TestLedgerSequenceProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		m := goodModel()
		h := newHarness(t, m)
		h.start(t, "T1")
		ctx := context.Background()

		ops := rapid.SliceOfN(rapid.IntRange(0, 4), 1, 30).Draw(rt, "ops")
		for _, op := range ops {
			if rapid.Bool().Draw(rt, "modelDown") {
				m.reply = func(string) (string, error) { return "", llm.ErrAllCredentialsExhausted }
			} else {
				m.reply = goodModel().reply
			}
			switch op {
			case 0:
				_, _ = h.engine.SubmitTeamArguments(ctx, "T1", []string{"a"})
			case 1:
				_, _ = h.engine.AnswerAiQuestion(ctx, "T1", "một câu trả lời đầy đủ ý nghĩa")
			case 2:
				_, _ = h.engine.GenerateNextAiQuestion(ctx, "T1")
			case 3:
				_, _ = h.engine.AskAiQuestion(ctx, "T1", "Tại sao AI lại nghĩ như vậy?")
			case 4:
				_, _ = h.engine.AnswerAiQuestion(ctx, "T1", "1111111111")
			}
		}

		snap, err := h.engine.Snapshot(ctx, "T1")
		if err != nil {
			rt.Fatalf("snapshot: %v", err)
		}
		for _, ledger := range [][]TurnRecord{snap.Phase2Ledger, snap.Phase3Ledger} {
			for i, r := range ledger {
				if r.Seq != i+1 {
					rt.Fatalf("record %d has sequence %d", i, r.Seq)
				}
			}
		}
	})
}

// Phase 2 operations only ever grow the Phase 2 ledger and Phase 3
// operations only the Phase 3 ledger, in any interleaving.
func TestLedgerIsolationProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		h := newHarness(t, goodModel())
		h.start(t, "T1")
		ctx := context.Background()

		prev, err := h.engine.Snapshot(ctx, "T1")
		if err != nil {
			rt.Fatalf("snapshot: %v", err)
		}
		steps := rapid.IntRange(1, 25).Draw(rt, "steps")
		for range steps {
			phase3 := rapid.Bool().Draw(rt, "phase3")
			var snap Snapshot
			if phase3 {
				snap, err = h.engine.AskAiQuestion(ctx, "T1", "Bạn nghĩ sao về luận điểm này?")
			} else {
				switch rapid.IntRange(0, 2).Draw(rt, "phase2op") {
				case 0:
					snap, err = h.engine.SubmitTeamArguments(ctx, "T1", []string{"a"})
				case 1:
					snap, err = h.engine.AnswerAiQuestion(ctx, "T1", "một câu trả lời đầy đủ ý nghĩa")
				default:
					snap, err = h.engine.GenerateNextAiQuestion(ctx, "T1")
				}
			}
			var perr *PreconditionError
			if errors.As(err, &perr) {
				continue
			}
			if err != nil {
				rt.Fatalf("unexpected error: %v", err)
			}
			if phase3 {
				if len(snap.Phase2Ledger) != len(prev.Phase2Ledger) {
					rt.Fatalf("phase 3 operation changed the phase 2 ledger")
				}
				if len(snap.Phase3Ledger) != len(prev.Phase3Ledger)+2 {
					rt.Fatalf("phase 3 operation appended %d records", len(snap.Phase3Ledger)-len(prev.Phase3Ledger))
				}
			} else if len(snap.Phase3Ledger) != len(prev.Phase3Ledger) {
				rt.Fatalf("phase 2 operation changed the phase 3 ledger")
			}
			prev = snap
		}
	})
}
