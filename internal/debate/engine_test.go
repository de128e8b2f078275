package debate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoango6804/MLN-chatbot-debate/internal/evaluation"
	"github.com/khoango6804/MLN-chatbot-debate/internal/llm"
)

type mapStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func newMapStore() *mapStore {
	return &mapStore{sessions: make(map[string]*Session)}
}

func (m *mapStore) Add(_ context.Context, key string, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[key]; ok {
		return ErrDuplicateSession
	}
	m.sessions[key] = s
	return nil
}

func (m *mapStore) Put(_ context.Context, key string, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[key] = s
	return nil
}

func (m *mapStore) Get(_ context.Context, key string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (m *mapStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
	return nil
}

func (m *mapStore) List(context.Context) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out, nil
}

type listArchive struct {
	mu    sync.Mutex
	snaps []Snapshot
	err   error
}

func (a *listArchive) Save(_ context.Context, snap Snapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.snaps = append(a.snaps, snap)
	return nil
}

func (a *listArchive) Latest(_ context.Context, key string) (Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := len(a.snaps) - 1; i >= 0; i-- {
		if a.snaps[i].TeamKey == key {
			return a.snaps[i], nil
		}
	}
	return Snapshot{}, ErrSessionNotFound
}

func (a *listArchive) Recent(_ context.Context, limit int) ([]Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Snapshot, len(a.snaps))
	copy(out, a.snaps)
	sort.SliceStable(out, func(i, j int) bool { return out[i].EndedAt.After(*out[j].EndedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// fakeModel answers by prompt kind and counts calls.
type fakeModel struct {
	calls atomic.Int64
	reply func(prompt string) (string, error)
}

func (f *fakeModel) Invoke(_ context.Context, prompt string) (string, error) {
	f.calls.Add(1)
	return f.reply(prompt)
}

func goodModel() *fakeModel {
	var n atomic.Int64
	return &fakeModel{reply: func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "câu hỏi Socratic"):
			i := n.Add(1)
			return "1. Tại sao bạn cho rằng luận điểm số " + string(rune('A'+i)) + " là đúng?\n2. Bạn có thể đưa dẫn chứng không?", nil
		case strings.Contains(prompt, "Sinh viên hỏi:"):
			return "Theo phép biện chứng, câu trả lời phụ thuộc vào bối cảnh. Bạn nghĩ sao?", nil
		case strings.Contains(prompt, "Tại sao AI nên thắng"):
			return "- Phản bác một\n- Phản bác hai", nil
		case strings.Contains(prompt, "3 luận điểm sắc bén"):
			return "- **Lập luận:** A **Dẫn chứng lý thuyết:** B\n- **Lập luận:** C **Dẫn chứng lý thuyết:** D", nil
		}
		return "", errors.New("unexpected prompt")
	}}
}

func failingModel(err error) *fakeModel {
	return &fakeModel{reply: func(string) (string, error) { return "", err }}
}

type fixedTopics string

func (t fixedTopics) Topic(context.Context, string) (string, error) { return string(t), nil }

type stubEvaluator struct{ total int }

func (s stubEvaluator) Evaluate(_ context.Context, in evaluation.Input) evaluation.Evaluation {
	ev := evaluation.DefaultRubric().ZeroEvaluation("ok", time.Unix(0, 0))
	ev.Total = s.total
	ev.Feedback = "evaluated " + in.Topic
	ev.Parsed = true
	return ev
}

type harness struct {
	engine  *Engine
	store   *mapStore
	archive *listArchive
	model   *fakeModel
	clock   *clock.Mock
}

func newHarness(t *testing.T, model *fakeModel) *harness {
	t.Helper()
	h := &harness{
		store:   newMapStore(),
		archive: &listArchive{},
		model:   model,
		clock:   clock.NewMock(),
	}
	e, err := New(Config{
		Store:        h.store,
		Archive:      h.archive,
		Model:        model,
		Topics:       fixedTopics("Chủ đề 2024 thử nghiệm"),
		Evaluator:    stubEvaluator{total: 42},
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:        h.clock,
		StancePicker: func() Stance { return StanceAgree },
	})
	require.NoError(t, err)
	h.engine = e
	return h
}

func (h *harness) start(t *testing.T, team string) Snapshot {
	t.Helper()
	snap, err := h.engine.Start(context.Background(), StartRequest{TeamID: team, CourseCode: "MLN111", Members: []string{"A", "B"}})
	require.NoError(t, err)
	return snap
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestStart(t *testing.T) {
	h := newHarness(t, goodModel())
	snap := h.start(t, "  Team-1 ")

	assert.Equal(t, "Team-1", snap.TeamID)
	assert.Equal(t, "team-1", snap.TeamKey)
	assert.Equal(t, PhaseArguments, snap.Phase)
	assert.Equal(t, StatusActive, snap.Status)
	assert.Equal(t, StanceAgree, snap.Stance)
	assert.Equal(t, []string{"A", "B"}, snap.Members)
	assert.NotEmpty(t, snap.SessionID)
	assert.Empty(t, snap.Phase2Ledger)
}

func TestStartDuplicateAfterNormalization(t *testing.T) {
	h := newHarness(t, goodModel())
	h.start(t, "Ｔ1")

	_, err := h.engine.Start(context.Background(), StartRequest{TeamID: " t1 ", CourseCode: "MLN111", Members: []string{"C"}})
	require.ErrorIs(t, err, ErrDuplicateSession)
	var dup *DuplicateSessionError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "t1", dup.TeamID)
}

func TestStartGeneratesTeamID(t *testing.T) {
	h := newHarness(t, goodModel())
	h.start(t, "TEAM001")

	snap, err := h.engine.Start(context.Background(), StartRequest{CourseCode: "MLN122", Members: []string{"A"}})
	require.NoError(t, err)
	assert.Equal(t, "TEAM002", snap.TeamID)
}

func TestStartValidation(t *testing.T) {
	h := newHarness(t, goodModel())
	var verr *ValidationError

	_, err := h.engine.Start(context.Background(), StartRequest{TeamID: "x", Members: []string{"A"}})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "course_code", verr.Field)

	_, err = h.engine.Start(context.Background(), StartRequest{TeamID: "x", CourseCode: "MLN111", Members: []string{" "}})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "members", verr.Field)
}

func TestOperationsOnUnknownTeam(t *testing.T) {
	h := newHarness(t, goodModel())
	_, err := h.engine.AnswerAiQuestion(context.Background(), "nobody", "an answer long enough")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestScenarioA_SubmitArgumentsOpensPhase2(t *testing.T) {
	h := newHarness(t, goodModel())
	h.start(t, "T1")

	snap, err := h.engine.SubmitTeamArguments(context.Background(), "T1", []string{"a1", "a2", "a3"})
	require.NoError(t, err)

	assert.Equal(t, PhaseAIQuestions, snap.Phase)
	assert.Equal(t, []string{"a1", "a2", "a3"}, snap.TeamArguments)
	require.Len(t, snap.Phase2Ledger, 1)
	first := snap.Phase2Ledger[0]
	assert.Equal(t, 1, first.Seq)
	assert.Equal(t, AskerAI, first.Asker)
	assert.Contains(t, first.Question, "?")
	assert.Nil(t, first.Answer)
	assert.Empty(t, snap.Phase3Ledger)
}

func TestSubmitArgumentsRejectsBlank(t *testing.T) {
	h := newHarness(t, goodModel())
	h.start(t, "T1")

	_, err := h.engine.SubmitTeamArguments(context.Background(), "T1", []string{"", "  "})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	snap, err := h.engine.Snapshot(context.Background(), "T1")
	require.NoError(t, err)
	assert.Equal(t, PhaseArguments, snap.Phase, "failed validation must not mutate")
	assert.Empty(t, snap.Phase2Ledger)
}

func TestResubmitArgumentsKeepsAlternation(t *testing.T) {
	h := newHarness(t, goodModel())
	h.start(t, "T1")
	ctx := context.Background()

	_, err := h.engine.SubmitTeamArguments(ctx, "T1", []string{"a1"})
	require.NoError(t, err)
	snap, err := h.engine.SubmitTeamArguments(ctx, "T1", []string{"b1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, snap.TeamArguments)
	assert.Len(t, snap.Phase2Ledger, 1, "no second question while the first is unanswered")
}

func TestFirstQuestionFallsBackWhenModelDown(t *testing.T) {
	h := newHarness(t, failingModel(llm.ErrAllCredentialsExhausted))
	h.start(t, "T1")

	snap, err := h.engine.SubmitTeamArguments(context.Background(), "T1", []string{"a1"})
	require.NoError(t, err)
	require.Len(t, snap.Phase2Ledger, 1)
	assert.Equal(t, DefaultFirstQuestion, snap.Phase2Ledger[0].Question)
}

func TestScenarioB_AnswerAppendsStudentRecord(t *testing.T) {
	h := newHarness(t, goodModel())
	h.start(t, "T1")
	ctx := context.Background()
	_, err := h.engine.SubmitTeamArguments(ctx, "T1", []string{"a1", "a2", "a3"})
	require.NoError(t, err)
	calls := h.model.calls.Load()

	snap, err := h.engine.AnswerAiQuestion(ctx, "T1", "this is a ten+ char answer")
	require.NoError(t, err)

	require.Len(t, snap.Phase2Ledger, 2)
	turn := snap.Phase2Ledger[1]
	assert.Equal(t, 2, turn.Seq)
	assert.Equal(t, AskerStudent, turn.Asker)
	assert.Empty(t, turn.Question)
	assert.Equal(t, "this is a ten+ char answer", turn.AnswerText())
	assert.Equal(t, calls, h.model.calls.Load(), "answering never generates the next question")
}

func TestAnswerTooShort(t *testing.T) {
	h := newHarness(t, goodModel())
	h.start(t, "T1")

	_, err := h.engine.AnswerAiQuestion(context.Background(), "T1", "  short   ")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "answer", verr.Field)
}

func TestScenarioC_NextQuestionRequiresStudentAnswer(t *testing.T) {
	h := newHarness(t, goodModel())
	h.start(t, "T1")
	ctx := context.Background()
	_, err := h.engine.SubmitTeamArguments(ctx, "T1", []string{"a1"})
	require.NoError(t, err)
	_, err = h.engine.AnswerAiQuestion(ctx, "T1", "một câu trả lời đầy đủ ý nghĩa")
	require.NoError(t, err)

	snap, err := h.engine.GenerateNextAiQuestion(ctx, "T1")
	require.NoError(t, err)
	require.Len(t, snap.Phase2Ledger, 3)
	assert.Equal(t, AskerAI, snap.Phase2Ledger[2].Asker)

	_, err = h.engine.GenerateNextAiQuestion(ctx, "T1")
	var perr *PreconditionError
	require.ErrorAs(t, err, &perr)

	after, err := h.engine.Snapshot(ctx, "T1")
	require.NoError(t, err)
	assert.Len(t, after.Phase2Ledger, 3)
}

func TestNextQuestionOnEmptyLedger(t *testing.T) {
	h := newHarness(t, goodModel())
	h.start(t, "T1")
	_, err := h.engine.GenerateNextAiQuestion(context.Background(), "T1")
	var perr *PreconditionError
	require.ErrorAs(t, err, &perr)
}

func TestDegenerateAnswerUsesFallbackWithoutModel(t *testing.T) {
	h := newHarness(t, goodModel())
	h.start(t, "T1")
	ctx := context.Background()
	_, err := h.engine.SubmitTeamArguments(ctx, "T1", []string{"a1"})
	require.NoError(t, err)
	_, err = h.engine.AnswerAiQuestion(ctx, "T1", "1111111111")
	require.NoError(t, err)
	before := h.model.calls.Load()

	snap, err := h.engine.GenerateNextAiQuestion(ctx, "T1")
	require.NoError(t, err)

	assert.Equal(t, before, h.model.calls.Load(), "model must not be called")
	q := snap.Phase2Ledger[2].Question
	assert.Contains(t, FallbackPool(snap.Topic), q)
	assert.Equal(t, "Bạn có thể phân tích sâu hơn về quan điểm của mình trong bối cảnh Chủ đề thử nghiệm không?", q)
}

func TestRejectedCandidateUsesUnusedFallback(t *testing.T) {
	m := goodModel()
	h := newHarness(t, m)
	h.start(t, "T1")
	ctx := context.Background()
	_, err := h.engine.SubmitTeamArguments(ctx, "T1", []string{"a1"})
	require.NoError(t, err)

	m.reply = func(string) (string, error) { return "1. As an AI I cannot ask that?", nil }
	pool := FallbackPool("Chủ đề 2024 thử nghiệm")
	for i := range 2 {
		_, err = h.engine.AnswerAiQuestion(ctx, "T1", "một câu trả lời đầy đủ ý nghĩa")
		require.NoError(t, err)
		snap, err := h.engine.GenerateNextAiQuestion(ctx, "T1")
		require.NoError(t, err)
		last := snap.Phase2Ledger[len(snap.Phase2Ledger)-1]
		assert.Equal(t, pool[i], last.Question)
	}
}

func TestAskAiQuestion(t *testing.T) {
	h := newHarness(t, goodModel())
	h.start(t, "T1")

	snap, err := h.engine.AskAiQuestion(context.Background(), "T1", "Tại sao AI lại nghĩ như vậy?")
	require.NoError(t, err)
	require.Len(t, snap.Phase3Ledger, 2)
	assert.Equal(t, AskerStudent, snap.Phase3Ledger[0].Asker)
	assert.Nil(t, snap.Phase3Ledger[0].Answer)
	assert.Equal(t, AskerAI, snap.Phase3Ledger[1].Asker)
	assert.Empty(t, snap.Phase3Ledger[1].Question)
	assert.True(t, snap.Phase3Ledger[1].Answered())
	assert.Equal(t, PhaseStudentQuestions, snap.Phase)
	assert.Empty(t, snap.Phase2Ledger)
}

func TestAskAiQuestionValidation(t *testing.T) {
	h := newHarness(t, goodModel())
	h.start(t, "T1")
	tests := map[string]string{
		"too short":     "Tại sao?",
		"no mark":       "Tại sao lại như vậy nhỉ",
		"no letters":    "123456789012?",
		"whitespace only": "   ?   ",
	}
	for name, q := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := h.engine.AskAiQuestion(context.Background(), "T1", q)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}
	snap, err := h.engine.Snapshot(context.Background(), "T1")
	require.NoError(t, err)
	assert.Empty(t, snap.Phase3Ledger)
}

func TestAskAiQuestionModelFailure(t *testing.T) {
	tests := map[string]struct {
		err  error
		want string
	}{
		"exhausted": {err: llm.ErrAllCredentialsExhausted, want: UnavailableAnswer},
		"fatal":     {err: &llm.Error{Kind: llm.KindFatal, Op: "invoke", Err: errors.New("bad request")}, want: ApologyAnswer},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, failingModel(tt.err))
			h.start(t, "T1")
			snap, err := h.engine.AskAiQuestion(context.Background(), "T1", "Tại sao AI lại nghĩ như vậy?")
			require.NoError(t, err)
			require.Len(t, snap.Phase3Ledger, 2)
			assert.Equal(t, tt.want, snap.Phase3Ledger[1].AnswerText())
		})
	}
}

func TestLedgerIsolationRegression(t *testing.T) {
	h := newHarness(t, goodModel())
	h.start(t, "T1")
	ctx := context.Background()
	_, err := h.engine.SubmitTeamArguments(ctx, "T1", []string{"a1"})
	require.NoError(t, err)
	snap, err := h.engine.AnswerAiQuestion(ctx, "T1", "một câu trả lời đầy đủ ý nghĩa")
	require.NoError(t, err)
	p2 := len(snap.Phase2Ledger)

	snap, err = h.engine.AskAiQuestion(ctx, "T1", "Tại sao AI lại nghĩ như vậy?")
	require.NoError(t, err)
	assert.Len(t, snap.Phase2Ledger, p2)
	assert.Len(t, snap.Phase3Ledger, 2)
}

func TestSubmitConclusionFirstWriteWins(t *testing.T) {
	h := newHarness(t, goodModel())
	h.start(t, "T1")
	ctx := context.Background()

	snap, err := h.engine.SubmitConclusion(ctx, "T1", []string{"X1", " ", "X2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"X1", "X2"}, snap.Conclusion)
	assert.Equal(t, PhaseConclusions, snap.Phase)

	snap, err = h.engine.SubmitConclusion(ctx, "T1", []string{"Y"})
	require.NoError(t, err)
	assert.Equal(t, []string{"X1", "X2"}, snap.Conclusion)
}

func TestSubmitConclusionDefault(t *testing.T) {
	h := newHarness(t, goodModel())
	h.start(t, "T1")
	snap, err := h.engine.SubmitConclusion(context.Background(), "T1", []string{"", " "})
	require.NoError(t, err)
	assert.Equal(t, DefaultConclusion, snap.Conclusion)
}

func TestCounterConclusion(t *testing.T) {
	h := newHarness(t, goodModel())
	h.start(t, "T1")
	ctx := context.Background()

	_, err := h.engine.GenerateAiCounterConclusion(ctx, "T1")
	var perr *PreconditionError
	require.ErrorAs(t, err, &perr)

	_, err = h.engine.SubmitConclusion(ctx, "T1", []string{"X"})
	require.NoError(t, err)
	snap, err := h.engine.GenerateAiCounterConclusion(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Phản bác một", "Phản bác hai"}, snap.AICounterArguments)

	calls := h.model.calls.Load()
	again, err := h.engine.GenerateAiCounterConclusion(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, snap.AICounterArguments, again.AICounterArguments)
	assert.Equal(t, calls, h.model.calls.Load())
}

func TestCounterConclusionFallback(t *testing.T) {
	h := newHarness(t, failingModel(errors.New("boom")))
	h.start(t, "T1")
	ctx := context.Background()
	_, err := h.engine.SubmitConclusion(ctx, "T1", []string{"X"})
	require.NoError(t, err)
	snap, err := h.engine.GenerateAiCounterConclusion(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, fallbackCounterArguments, snap.AICounterArguments)
}

func TestGenerateAiArguments(t *testing.T) {
	m := goodModel()
	h := newHarness(t, m)
	h.start(t, "T1")
	ctx := context.Background()

	snap, err := h.engine.GenerateAiArguments(ctx, "T1", false)
	require.NoError(t, err)
	require.Len(t, snap.AIArguments, 2)
	assert.Contains(t, snap.AIArguments[0], "Lập luận")

	calls := m.calls.Load()
	_, err = h.engine.GenerateAiArguments(ctx, "T1", false)
	require.NoError(t, err)
	assert.Equal(t, calls, m.calls.Load(), "existing arguments are kept")

	m.reply = func(string) (string, error) { return "", errors.New("down") }
	snap, err = h.engine.GenerateAiArguments(ctx, "T1", true)
	require.NoError(t, err)
	assert.Equal(t, fallbackAIArguments, snap.AIArguments)
}

func TestEvaluateAndComplete(t *testing.T) {
	h := newHarness(t, goodModel())
	h.start(t, "T1")
	ctx := context.Background()

	_, err := h.engine.Complete(ctx, "T1")
	var perr *PreconditionError
	require.ErrorAs(t, err, &perr)
	assert.Empty(t, h.archive.snaps, "failed completion must not archive")

	snap, err := h.engine.Evaluate(ctx, "T1", "tóm tắt")
	require.NoError(t, err)
	require.NotNil(t, snap.Evaluation)
	assert.Equal(t, 42, snap.Evaluation.Total)
	assert.Equal(t, PhaseEvaluation, snap.Phase)

	h.clock.Add(time.Minute)
	done, err := h.engine.Complete(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, PhaseCompleted, done.Phase)
	require.NotNil(t, done.EndedAt)
	assert.True(t, done.VerifyIntegrity())

	_, err = h.store.Get(ctx, "t1")
	require.ErrorIs(t, err, ErrSessionNotFound)

	archived, err := h.engine.Snapshot(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, done.IntegrityHash, archived.IntegrityHash)

	_, err = h.engine.Evaluate(ctx, "T1", "")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestEndDefaultsReasonAndFreesTeam(t *testing.T) {
	h := newHarness(t, goodModel())
	h.start(t, "T1")
	ctx := context.Background()

	snap, err := h.engine.End(ctx, "T1", "")
	require.NoError(t, err)
	assert.Equal(t, StatusEnded, snap.Status)
	assert.Equal(t, EndReasonManual, snap.EndReason)
	assert.Nil(t, snap.Evaluation)

	h.start(t, "T1")
	recent, err := h.engine.RecentTerminal(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
}

func TestEndArchiveFailureKeepsSession(t *testing.T) {
	h := newHarness(t, goodModel())
	h.start(t, "T1")
	h.archive.err = errors.New("disk full")

	_, err := h.engine.End(context.Background(), "T1", "")
	require.Error(t, err)

	snap, err := h.engine.Snapshot(context.Background(), "T1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, snap.Status)
}

func TestExpire(t *testing.T) {
	h := newHarness(t, goodModel())
	h.start(t, "T1")
	ctx := context.Background()
	s, err := h.store.Get(ctx, "t1")
	require.NoError(t, err)

	require.NoError(t, h.engine.Expire(ctx, s))
	require.Len(t, h.archive.snaps, 1)
	assert.Equal(t, EndReasonIdleTimeout, h.archive.snaps[0].EndReason)
	_, err = h.store.Get(ctx, "t1")
	require.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, h.engine.Expire(ctx, s), "second expiry is a no-op")
	assert.Len(t, h.archive.snaps, 1)
}

func TestExpireAfterRestartKeepsNewSession(t *testing.T) {
	h := newHarness(t, goodModel())
	h.start(t, "T1")
	ctx := context.Background()
	old, err := h.store.Get(ctx, "t1")
	require.NoError(t, err)
	_, err = h.engine.SubmitTeamArguments(ctx, "T1", []string{"Vật chất có trước ý thức"})
	require.NoError(t, err)

	// The store dropped the idle session and the team started again before
	// the expiry callback ran.
	require.NoError(t, h.store.Delete(ctx, "t1"))
	h.start(t, "T1")

	require.NoError(t, h.engine.Expire(ctx, old))
	require.Len(t, h.archive.snaps, 1)
	assert.Equal(t, old.ID(), h.archive.snaps[0].SessionID)
	assert.Equal(t, EndReasonIdleTimeout, h.archive.snaps[0].EndReason)
	assert.Len(t, h.archive.snaps[0].Phase2Ledger, 1)

	snap, err := h.engine.Snapshot(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, snap.Status)
	assert.NotEqual(t, old.ID(), snap.SessionID)
}

func TestSnapshotDoesNotWaitForRunningOperation(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	m := &fakeModel{reply: func(string) (string, error) {
		once.Do(func() { close(entered) })
		<-release
		return "", errors.New("down")
	}}
	h := newHarness(t, m)
	h.start(t, "T1")
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := h.engine.GenerateAiArguments(ctx, "T1", false)
		done <- err
	}()
	<-entered

	read := make(chan Snapshot, 1)
	go func() {
		snap, _ := h.engine.Snapshot(ctx, "T1")
		read <- snap
	}()
	select {
	case snap := <-read:
		assert.Equal(t, "T1", snap.TeamID)
		assert.Empty(t, snap.AIArguments)
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatal("Snapshot blocked behind a running operation")
	}
	active, err := h.engine.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	close(release)
	require.NoError(t, <-done)
	snap, err := h.engine.Snapshot(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, fallbackAIArguments, snap.AIArguments)
}

func TestSnapshotsDoNotAlias(t *testing.T) {
	h := newHarness(t, goodModel())
	h.start(t, "T1")
	ctx := context.Background()
	_, err := h.engine.SubmitTeamArguments(ctx, "T1", []string{"Luận điểm gốc"})
	require.NoError(t, err)

	first, err := h.engine.Snapshot(ctx, "T1")
	require.NoError(t, err)
	first.TeamArguments[0] = "đã sửa"
	first.Phase2Ledger[0].Question = "đã sửa"

	second, err := h.engine.Snapshot(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, "Luận điểm gốc", second.TeamArguments[0])
	assert.NotEqual(t, "đã sửa", second.Phase2Ledger[0].Question)
}

func TestListActive(t *testing.T) {
	h := newHarness(t, goodModel())
	h.start(t, "T1")
	h.clock.Add(time.Second)
	h.start(t, "T2")

	snaps, err := h.engine.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "T1", snaps[0].TeamID)
	assert.Equal(t, "T2", snaps[1].TeamID)
}

func TestConcurrentOperationsKeepSequence(t *testing.T) {
	h := newHarness(t, goodModel())
	h.start(t, "T1")
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = h.engine.AnswerAiQuestion(ctx, "T1", "một câu trả lời đầy đủ ý nghĩa")
		}()
		go func() {
			defer wg.Done()
			_, _ = h.engine.AskAiQuestion(ctx, "T1", "Tại sao AI lại nghĩ như vậy?")
		}()
	}
	wg.Wait()

	snap, err := h.engine.Snapshot(ctx, "T1")
	require.NoError(t, err)
	require.Len(t, snap.Phase2Ledger, 20)
	require.Len(t, snap.Phase3Ledger, 40)
	for i, r := range snap.Phase2Ledger {
		assert.Equal(t, i+1, r.Seq)
		assert.Equal(t, AskerStudent, r.Asker)
	}
	for i, r := range snap.Phase3Ledger {
		assert.Equal(t, i+1, r.Seq)
	}
}

func TestLeaderboardSkipsUnevaluatedSessions(t *testing.T) {
	h := newHarness(t, goodModel())
	ctx := context.Background()
	h.start(t, "Done")
	h.start(t, "Quit")

	_, err := h.engine.Evaluate(ctx, "Done", "")
	require.NoError(t, err)
	_, err = h.engine.Complete(ctx, "Done")
	require.NoError(t, err)
	_, err = h.engine.End(ctx, "Quit", "")
	require.NoError(t, err)

	standings, stats, err := h.engine.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, standings, 1)
	assert.Equal(t, "Done", standings[0].TeamID)
	assert.Equal(t, 1, standings[0].Position)
	assert.Equal(t, 1, stats.TotalTeams)
}
