// Package debate implements the debate phase machine.
//
// An Engine drives one Session per team through five phases: team and AI
// arguments, AI questions answered by students (the Phase 2 ledger), student
// questions answered by the AI (the Phase 3 ledger), conclusions, and
// evaluation. Each operation locks its session for its whole duration, so
// operations on one session are applied one at a time while different
// sessions proceed independently.
//
// Structural violations are returned as typed errors and never mutate the
// session. Model failures during content generation are recovered with
// deterministic fallback content so a debate can always proceed.
package debate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/khoango6804/MLN-chatbot-debate/internal/evaluation"
	"github.com/khoango6804/MLN-chatbot-debate/internal/llm"
)

var debateMeter = otel.GetMeterProvider().Meter("debated/debate")

// Evaluator scores a finished debate. It never fails; unusable model output
// yields a zero-filled evaluation.
type Evaluator interface {
	Evaluate(ctx context.Context, in evaluation.Input) evaluation.Evaluation
}

// Config holds the Engine's collaborators.
type Config struct {
	Store     SessionStore
	Archive   Archive
	Model     llm.Client
	Topics    TopicSource
	Evaluator Evaluator
	Logger    *slog.Logger
	Clock     clock.Clock

	// StancePicker assigns the team stance at start. Defaults to a fair coin.
	StancePicker func() Stance
}

// Engine runs debate operations against a SessionStore.
type Engine struct {
	store     SessionStore
	archive   Archive
	model     llm.Client
	topics    TopicSource
	evaluator Evaluator
	logger    *slog.Logger
	clock     clock.Clock
	stance    func() Stance

	teamSeq atomic.Int64
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("debate: engine requires a session store")
	case cfg.Archive == nil:
		return nil, errors.New("debate: engine requires an archive")
	case cfg.Model == nil:
		return nil, errors.New("debate: engine requires a language model client")
	case cfg.Topics == nil:
		return nil, errors.New("debate: engine requires a topic source")
	case cfg.Evaluator == nil:
		return nil, errors.New("debate: engine requires an evaluator")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.StancePicker == nil {
		cfg.StancePicker = func() Stance {
			if rand.IntN(2) == 0 {
				return StanceAgree
			}
			return StanceDisagree
		}
	}
	return &Engine{
		store:     cfg.Store,
		archive:   cfg.Archive,
		model:     cfg.Model,
		topics:    cfg.Topics,
		evaluator: cfg.Evaluator,
		logger:    cfg.Logger,
		clock:     cfg.Clock,
		stance:    cfg.StancePicker,
	}, nil
}

// StartRequest opens a debate. An empty TeamID is replaced by a generated
// TEAMnnn id.
type StartRequest struct {
	TeamID     string
	CourseCode string
	Members    []string
}

// Start creates a session in Phase 1 with a generated topic and a random
// stance.
func (e *Engine) Start(ctx context.Context, req StartRequest) (Snapshot, error) {
	courseCode := strings.TrimSpace(req.CourseCode)
	if courseCode == "" {
		return Snapshot{}, invalid("course_code", "is required")
	}
	members := nonBlank(req.Members)
	if len(members) == 0 {
		return Snapshot{}, invalid("members", "at least one member is required")
	}

	teamID := strings.TrimSpace(req.TeamID)
	if teamID == "" {
		id, err := e.nextTeamID(ctx)
		if err != nil {
			return Snapshot{}, err
		}
		teamID = id
	}
	key := NormalizeTeamID(teamID)
	if key == "" {
		return Snapshot{}, invalid("team_id", "is blank after normalization")
	}

	// Reject duplicates before spending a model call on the topic.
	if _, err := e.store.Get(ctx, key); err == nil {
		return Snapshot{}, &DuplicateSessionError{TeamID: teamID}
	} else if !errors.Is(err, ErrSessionNotFound) {
		return Snapshot{}, fmt.Errorf("debate: start: %w", err)
	}

	topic, err := e.topics.Topic(ctx, courseCode)
	if err != nil {
		return Snapshot{}, fmt.Errorf("debate: start: topic: %w", err)
	}

	now := e.clock.Now()
	s := &Session{
		id:         uuid.NewString(),
		teamID:     teamID,
		key:        key,
		courseCode: strings.ToUpper(courseCode),
		topic:      topic,
		members:    members,
		stance:     e.stance(),
		phase:      PhaseArguments,
		status:     StatusActive,
		createdAt:  now,
		updatedAt:  now,
	}
	snap := s.publishLocked()
	if err := e.store.Add(ctx, key, s); err != nil {
		if errors.Is(err, ErrDuplicateSession) {
			return Snapshot{}, &DuplicateSessionError{TeamID: teamID}
		}
		return Snapshot{}, fmt.Errorf("debate: start: %w", err)
	}
	e.logger.Info("debate: session started",
		"team_id", teamID, "session_id", s.id, "course_code", s.courseCode, "stance", s.stance)
	return snap, nil
}

func (e *Engine) nextTeamID(ctx context.Context) (string, error) {
	for {
		id := fmt.Sprintf("TEAM%03d", e.teamSeq.Add(1))
		_, err := e.store.Get(ctx, NormalizeTeamID(id))
		if errors.Is(err, ErrSessionNotFound) {
			return id, nil
		}
		if err != nil {
			return "", fmt.Errorf("debate: generate team id: %w", err)
		}
	}
}

// SubmitTeamArguments stores the team's Phase 1 arguments and opens Phase 2.
// It is accepted in any phase; re-submission overwrites the arguments. The
// first AI question is appended only when the Phase 2 ledger is empty or
// ends with a student answer, so questions and answers keep alternating.
func (e *Engine) SubmitTeamArguments(ctx context.Context, teamID string, args []string) (Snapshot, error) {
	return e.mutate(ctx, teamID, func(s *Session) error {
		filtered := nonBlank(args)
		if len(filtered) == 0 {
			return invalid("arguments", "at least one non-blank argument is required")
		}
		s.teamArguments = filtered

		if last, ok := s.phase2.Last(); !ok || (last.Asker == AskerStudent && last.Answered()) {
			q := e.firstQuestion(ctx, s)
			s.phase2.Append(AskerAI, q, nil, e.clock.Now())
		}
		s.phase = PhaseAIQuestions
		return nil
	})
}

func (e *Engine) firstQuestion(ctx context.Context, s *Session) string {
	previous := s.phase2.Questions(AskerAI)
	reply, err := e.model.Invoke(ctx, questionsPrompt(s.topic, s.teamArguments))
	if err == nil {
		for _, q := range ParseNumberedQuestions(reply) {
			if ValidateCandidate(q, previous) {
				return q
			}
		}
	}
	e.fallback(ctx, "first_question", s, err)
	if !askedBefore(DefaultFirstQuestion, previous) {
		return DefaultFirstQuestion
	}
	return SelectFallback(s.topic, previous)
}

// GenerateAiArguments produces the AI's Phase 1 arguments for the side
// opposite the team. Existing arguments are kept unless force is set.
func (e *Engine) GenerateAiArguments(ctx context.Context, teamID string, force bool) (Snapshot, error) {
	return e.mutate(ctx, teamID, func(s *Session) error {
		if len(s.aiArguments) > 0 && !force {
			return nil
		}
		reply, err := e.model.Invoke(ctx, argumentsPrompt(s.topic, s.stance.Opposite()))
		args := SplitArguments(reply)
		if err != nil || len(args) == 0 {
			e.fallback(ctx, "ai_arguments", s, err)
			args = slices.Clone(fallbackAIArguments)
		}
		s.aiArguments = args
		return nil
	})
}

// AnswerAiQuestion appends a student answer to the Phase 2 ledger. It never
// generates the next AI question.
func (e *Engine) AnswerAiQuestion(ctx context.Context, teamID, answer string) (Snapshot, error) {
	return e.mutate(ctx, teamID, func(s *Session) error {
		answer = strings.TrimSpace(answer)
		if utf8.RuneCountInString(answer) < MinAnswerLength {
			return invalid("answer", "must be at least %d characters", MinAnswerLength)
		}
		s.phase2.Append(AskerStudent, "", &answer, e.clock.Now())
		return nil
	})
}

// GenerateNextAiQuestion appends the next AI question to the Phase 2 ledger.
// The ledger must end with a student answer. Degenerate answers skip the
// model and take a fallback question.
func (e *Engine) GenerateNextAiQuestion(ctx context.Context, teamID string) (Snapshot, error) {
	return e.mutate(ctx, teamID, func(s *Session) error {
		last, ok := s.phase2.Last()
		if !ok || last.Asker != AskerStudent || !last.Answered() {
			return precondition("generate next AI question", "the latest phase 2 entry is not a student answer")
		}
		previous := s.phase2.Questions(AskerAI)

		var q string
		if IsDegenerateAnswer(last.AnswerText()) {
			e.fallback(ctx, "degenerate_answer", s, nil)
			q = SelectFallback(s.topic, previous)
		} else {
			q = e.followUpQuestion(ctx, s, last.AnswerText(), previous)
		}
		s.phase2.Append(AskerAI, q, nil, e.clock.Now())
		return nil
	})
}

func (e *Engine) followUpQuestion(ctx context.Context, s *Session, answer string, previous []string) string {
	reply, err := e.model.Invoke(ctx, questionsPrompt(s.topic, []string{answer}))
	if err == nil {
		candidates := ParseNumberedQuestions(reply)
		if len(candidates) == 0 {
			candidates = splitLines(reply)
		}
		for _, q := range candidates {
			if ValidateCandidate(q, previous) {
				return q
			}
		}
	}
	e.fallback(ctx, "next_question", s, err)
	return SelectFallback(s.topic, previous)
}

// AskAiQuestion appends a student question to the Phase 3 ledger, then a
// separate AI answer record. Model failures produce a fixed answer.
func (e *Engine) AskAiQuestion(ctx context.Context, teamID, question string) (Snapshot, error) {
	return e.mutate(ctx, teamID, func(s *Session) error {
		question = strings.TrimSpace(question)
		if err := validStudentQuestion(question); err != nil {
			return err
		}
		history := s.phase3.Records()
		s.phase3.Append(AskerStudent, question, nil, e.clock.Now())

		reply, err := e.model.Invoke(ctx, socraticAnswerPrompt(s.topic, s.stance.Opposite(), question, history))
		answer := strings.TrimSpace(reply)
		switch {
		case errors.Is(err, llm.ErrAllCredentialsExhausted), errors.Is(err, llm.ErrDisabled):
			e.fallback(ctx, "ai_answer", s, err)
			answer = UnavailableAnswer
		case err != nil || answer == "":
			e.fallback(ctx, "ai_answer", s, err)
			answer = ApologyAnswer
		}
		s.phase3.Append(AskerAI, "", &answer, e.clock.Now())
		s.advance(PhaseStudentQuestions)
		return nil
	})
}

// SubmitConclusion stores the team conclusion. The first submission wins;
// later calls return the stored value unchanged.
func (e *Engine) SubmitConclusion(ctx context.Context, teamID string, args []string) (Snapshot, error) {
	return e.mutate(ctx, teamID, func(s *Session) error {
		if len(s.conclusion) > 0 {
			return nil
		}
		filtered := nonBlank(args)
		if len(filtered) == 0 {
			filtered = slices.Clone(DefaultConclusion)
		}
		s.conclusion = filtered
		s.advance(PhaseConclusions)
		return nil
	})
}

// GenerateAiCounterConclusion produces the AI rebuttal of the team
// conclusion. The first result wins.
func (e *Engine) GenerateAiCounterConclusion(ctx context.Context, teamID string) (Snapshot, error) {
	return e.mutate(ctx, teamID, func(s *Session) error {
		if len(s.aiCounterArguments) > 0 {
			return nil
		}
		if len(s.conclusion) == 0 {
			return precondition("generate AI counter conclusion", "the team conclusion has not been submitted")
		}
		reply, err := e.model.Invoke(ctx, counterConclusionPrompt(s.topic, s.stance.Opposite(), s.conclusion))
		lines := splitLines(reply)
		if err != nil || len(lines) == 0 {
			e.fallback(ctx, "counter_conclusion", s, err)
			lines = slices.Clone(fallbackCounterArguments)
		}
		s.aiCounterArguments = lines
		s.advance(PhaseConclusions)
		return nil
	})
}

// Evaluate scores the debate and stores the result. Calling it again
// replaces the evaluation; callers check Snapshot.Evaluation first.
func (e *Engine) Evaluate(ctx context.Context, teamID, studentSummary string) (Snapshot, error) {
	return e.mutate(ctx, teamID, func(s *Session) error {
		ev := e.evaluator.Evaluate(ctx, evaluation.Input{
			Topic:              s.topic,
			Stance:             s.stance.Label(),
			TeamArguments:      slices.Clone(s.teamArguments),
			AIArguments:        slices.Clone(s.aiArguments),
			Phase2:             toTurns(s.phase2.Records()),
			Phase3:             toTurns(s.phase3.Records()),
			Conclusion:         slices.Clone(s.conclusion),
			AICounterArguments: slices.Clone(s.aiCounterArguments),
			StudentSummary:     strings.TrimSpace(studentSummary),
		})
		s.evaluation = &ev
		s.advance(PhaseEvaluation)
		return nil
	})
}

func toTurns(recs []TurnRecord) []evaluation.Turn {
	return lo.Map(recs, func(r TurnRecord, _ int) evaluation.Turn {
		return evaluation.Turn{Asker: string(r.Asker), Question: r.Question, Answer: r.AnswerText()}
	})
}

// End archives the session with the given reason and removes it from the
// active set. An empty reason means a manual end.
func (e *Engine) End(ctx context.Context, teamID, reason string) (Snapshot, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = EndReasonManual
	}
	s, err := e.lock(ctx, teamID)
	if err != nil {
		return Snapshot{}, err
	}
	defer s.mu.Unlock()
	return e.terminate(ctx, s, StatusEnded, reason, true)
}

// Complete archives an evaluated session. It requires an evaluation.
func (e *Engine) Complete(ctx context.Context, teamID string) (Snapshot, error) {
	s, err := e.lock(ctx, teamID)
	if err != nil {
		return Snapshot{}, err
	}
	defer s.mu.Unlock()
	if s.evaluation == nil {
		return Snapshot{}, precondition("complete", "the debate has not been evaluated")
	}
	return e.terminate(ctx, s, StatusCompleted, EndReasonCompleted, true)
}

// Expire ends a session the store dropped for inactivity. Sessions that are
// already terminal are ignored.
func (e *Engine) Expire(ctx context.Context, s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return nil
	}
	if _, err := e.terminate(ctx, s, StatusEnded, EndReasonIdleTimeout, false); err != nil {
		return err
	}
	// An operation that was running at eviction time may have written the
	// session back.
	if cur, err := e.store.Get(ctx, s.key); err == nil && cur == s {
		if err := e.store.Delete(ctx, s.key); err != nil {
			e.logger.Error("debate: remove expired session from store", "team_id", s.teamID, "error", err)
		}
	}
	return nil
}

// terminate archives s and marks it terminal. The session is only mutated
// after the archive accepted the snapshot. Caller holds s.mu.
func (e *Engine) terminate(ctx context.Context, s *Session, status Status, reason string, remove bool) (Snapshot, error) {
	now := e.clock.Now()
	snap := s.snapshotLocked()
	snap.Status = status
	snap.EndReason = reason
	snap.EndedAt = &now
	snap.UpdatedAt = now
	if status == StatusCompleted {
		snap.Phase = PhaseCompleted
	} else {
		snap.Phase = PhaseEnded
	}
	snap.IntegrityHash = snap.ComputeIntegrityHash()

	if err := e.archive.Save(ctx, snap); err != nil {
		return Snapshot{}, fmt.Errorf("debate: archive %s: %w", s.teamID, err)
	}

	s.status = snap.Status
	s.phase = snap.Phase
	s.endReason = reason
	s.endedAt = &now
	s.updatedAt = now
	s.publishLocked()

	if remove {
		if err := e.store.Delete(ctx, s.key); err != nil {
			e.logger.Error("debate: remove terminal session from store", "team_id", s.teamID, "error", err)
		}
	}
	e.logger.Info("debate: session closed",
		"team_id", s.teamID, "session_id", s.id, "status", status, "reason", reason)
	return snap, nil
}

// Snapshot returns the active session, or the latest archived snapshot for
// the team when no session is active.
func (e *Engine) Snapshot(ctx context.Context, teamID string) (Snapshot, error) {
	key := NormalizeTeamID(teamID)
	s, err := e.store.Get(ctx, key)
	if err == nil {
		return s.Snapshot(), nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return Snapshot{}, fmt.Errorf("debate: snapshot: %w", err)
	}
	snap, err := e.archive.Latest(ctx, key)
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// ListActive returns snapshots of every active session, oldest first.
func (e *Engine) ListActive(ctx context.Context) ([]Snapshot, error) {
	sessions, err := e.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("debate: list active: %w", err)
	}
	snaps := lo.Map(sessions, func(s *Session, _ int) Snapshot { return s.Snapshot() })
	snaps = lo.Filter(snaps, func(s Snapshot, _ int) bool { return s.Status == StatusActive })
	slices.SortFunc(snaps, func(a, b Snapshot) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return snaps, nil
}

// RecentTerminal returns up to limit archived snapshots, newest first.
func (e *Engine) RecentTerminal(ctx context.Context, limit int) ([]Snapshot, error) {
	snaps, err := e.archive.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("debate: recent terminal: %w", err)
	}
	return snaps, nil
}

// lock fetches the active session for teamID and locks it. The caller
// unlocks.
func (e *Engine) lock(ctx context.Context, teamID string) (*Session, error) {
	key := NormalizeTeamID(teamID)
	if key == "" {
		return nil, invalid("team_id", "is required")
	}
	s, err := e.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.status != StatusActive {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// mutate runs fn with the session locked and writes the session back to the
// store if fn succeeds. fn must validate before changing anything.
func (e *Engine) mutate(ctx context.Context, teamID string, fn func(s *Session) error) (Snapshot, error) {
	s, err := e.lock(ctx, teamID)
	if err != nil {
		return Snapshot{}, err
	}
	defer s.mu.Unlock()

	if err := fn(s); err != nil {
		return Snapshot{}, err
	}
	s.updatedAt = e.clock.Now()
	if err := e.store.Put(ctx, s.key, s); err != nil {
		return Snapshot{}, fmt.Errorf("debate: save session: %w", err)
	}
	return s.publishLocked(), nil
}

// advance moves the session forward to p. It never moves backwards.
func (s *Session) advance(p Phase) {
	if p.Ordinal() > s.phase.Ordinal() {
		s.phase = p
	}
}

func (e *Engine) fallback(ctx context.Context, kind string, s *Session, err error) {
	e.logger.Warn("debate: using fallback content",
		"kind", kind, "team_id", s.teamID, "error", err)
	if counter, cerr := debateMeter.Int64Counter("debate.fallbacks"); cerr == nil {
		counter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("kind", kind)))
	}
}

func nonBlank(items []string) []string {
	return lo.FilterMap(items, func(it string, _ int) (string, bool) {
		it = strings.TrimSpace(it)
		return it, it != ""
	})
}
