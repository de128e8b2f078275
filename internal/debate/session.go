package debate

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/khoango6804/MLN-chatbot-debate/internal/evaluation"
	"github.com/khoango6804/MLN-chatbot-debate/internal/integrity"
)

// Phase is a debate stage. Phases are ordered; Completed and Ended are terminal.
type Phase string

const (
	PhaseNotStarted       Phase = "not_started"
	PhaseArguments        Phase = "phase1_arguments"
	PhaseAIQuestions      Phase = "phase2_ai_questions"
	PhaseStudentQuestions Phase = "phase3_student_questions"
	PhaseConclusions      Phase = "phase4_conclusions"
	PhaseEvaluation       Phase = "phase5_evaluation"
	PhaseCompleted        Phase = "completed"
	PhaseEnded            Phase = "ended"
)

var phaseOrder = []Phase{
	PhaseNotStarted,
	PhaseArguments,
	PhaseAIQuestions,
	PhaseStudentQuestions,
	PhaseConclusions,
	PhaseEvaluation,
	PhaseCompleted,
}

// Ordinal returns the phase position, with Ended sharing Completed's slot.
func (p Phase) Ordinal() int {
	if p == PhaseEnded {
		return len(phaseOrder) - 1
	}
	return slices.Index(phaseOrder, p)
}

// Terminal reports whether the phase ends the session.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseEnded
}

// Stance is the team's position on the topic.
type Stance string

const (
	StanceAgree    Stance = "agree"
	StanceDisagree Stance = "disagree"
)

// Opposite returns the stance the AI argues.
func (s Stance) Opposite() Stance {
	if s == StanceAgree {
		return StanceDisagree
	}
	return StanceAgree
}

// Label returns the Vietnamese label used in prompts and reports.
func (s Stance) Label() string {
	if s == StanceAgree {
		return "Đồng ý"
	}
	return "Phản đối"
}

// Status is the session lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusEnded     Status = "ended"
)

// End reasons.
const (
	EndReasonManual      = "manual_end"
	EndReasonIdleTimeout = "idle_timeout"
	EndReasonCompleted   = "completed"
)

// Session is the mutable state of one active debate. Every field is guarded
// by mu; the engine holds mu for the whole of each operation, model calls
// included. Readers use the snapshot published after the last successful
// write instead of waiting on mu.
type Session struct {
	mu        sync.Mutex
	published atomic.Pointer[Snapshot]

	id         string
	teamID     string
	key        string
	courseCode string
	topic      string
	members    []string
	stance     Stance
	phase      Phase
	status     Status

	teamArguments      []string
	aiArguments        []string
	conclusion         []string
	aiCounterArguments []string
	evaluation         *evaluation.Evaluation

	phase2 TurnLedger
	phase3 TurnLedger

	createdAt time.Time
	updatedAt time.Time
	endedAt   *time.Time
	endReason string
}

// Key returns the normalized team key. It never changes.
func (s *Session) Key() string {
	return s.key
}

// ID returns the session id. It never changes.
func (s *Session) ID() string {
	return s.id
}

// Snapshot returns a copy of the last published state. It does not block
// on an operation in progress.
func (s *Session) Snapshot() Snapshot {
	if p := s.published.Load(); p != nil {
		return p.clone()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// publishLocked makes the current state visible to Snapshot. Caller holds mu.
func (s *Session) publishLocked() Snapshot {
	snap := s.snapshotLocked()
	s.published.Store(&snap)
	return snap.clone()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:          s.id,
		TeamID:             s.teamID,
		TeamKey:            s.key,
		CourseCode:         s.courseCode,
		Topic:              s.topic,
		Members:            slices.Clone(s.members),
		Stance:             s.stance,
		Phase:              s.phase,
		Status:             s.status,
		TeamArguments:      slices.Clone(s.teamArguments),
		AIArguments:        slices.Clone(s.aiArguments),
		Phase2Ledger:       s.phase2.Records(),
		Phase3Ledger:       s.phase3.Records(),
		Conclusion:         slices.Clone(s.conclusion),
		AICounterArguments: slices.Clone(s.aiCounterArguments),
		CreatedAt:          s.createdAt,
		UpdatedAt:          s.updatedAt,
		EndReason:          s.endReason,
	}
	if s.endedAt != nil {
		t := *s.endedAt
		snap.EndedAt = &t
	}
	if s.evaluation != nil {
		ev := *s.evaluation
		snap.Evaluation = &ev
	}
	return snap
}

// Restore rebuilds a live session from a snapshot, for stores that persist
// active sessions outside process memory.
func Restore(snap Snapshot) (*Session, error) {
	p2, err := LedgerFrom(snap.Phase2Ledger)
	if err != nil {
		return nil, err
	}
	p3, err := LedgerFrom(snap.Phase3Ledger)
	if err != nil {
		return nil, err
	}
	s := &Session{
		id:                 snap.SessionID,
		teamID:             snap.TeamID,
		key:                NormalizeTeamID(snap.TeamID),
		courseCode:         snap.CourseCode,
		topic:              snap.Topic,
		members:            slices.Clone(snap.Members),
		stance:             snap.Stance,
		phase:              snap.Phase,
		status:             snap.Status,
		teamArguments:      slices.Clone(snap.TeamArguments),
		aiArguments:        slices.Clone(snap.AIArguments),
		conclusion:         slices.Clone(snap.Conclusion),
		aiCounterArguments: slices.Clone(snap.AICounterArguments),
		phase2:             p2,
		phase3:             p3,
		createdAt:          snap.CreatedAt,
		updatedAt:          snap.UpdatedAt,
		endReason:          snap.EndReason,
	}
	if snap.EndedAt != nil {
		t := *snap.EndedAt
		s.endedAt = &t
	}
	if snap.Evaluation != nil {
		ev := *snap.Evaluation
		s.evaluation = &ev
	}
	s.publishLocked()
	return s, nil
}

// Snapshot is an immutable copy of a session, used for responses, export
// and the terminal archive.
type Snapshot struct {
	SessionID          string                 `json:"session_id"`
	TeamID             string                 `json:"team_id"`
	TeamKey            string                 `json:"team_key"`
	CourseCode         string                 `json:"course_code"`
	Topic              string                 `json:"topic"`
	Members            []string               `json:"members"`
	Stance             Stance                 `json:"stance"`
	Phase              Phase                  `json:"phase"`
	Status             Status                 `json:"status"`
	EndReason          string                 `json:"end_reason,omitempty"`
	TeamArguments      []string               `json:"team_arguments"`
	AIArguments        []string               `json:"ai_arguments"`
	Phase2Ledger       []TurnRecord           `json:"phase2_ledger"`
	Phase3Ledger       []TurnRecord           `json:"phase3_ledger"`
	Conclusion         []string               `json:"conclusion"`
	AICounterArguments []string               `json:"ai_counter_arguments"`
	Evaluation         *evaluation.Evaluation `json:"evaluation,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
	EndedAt            *time.Time             `json:"ended_at,omitempty"`
	IntegrityHash      string                 `json:"integrity_hash,omitempty"`
}

// clone copies the slices of s so callers cannot alias a published snapshot.
func (s Snapshot) clone() Snapshot {
	s.Members = slices.Clone(s.Members)
	s.TeamArguments = slices.Clone(s.TeamArguments)
	s.AIArguments = slices.Clone(s.AIArguments)
	s.Phase2Ledger = cloneRecords(s.Phase2Ledger)
	s.Phase3Ledger = cloneRecords(s.Phase3Ledger)
	s.Conclusion = slices.Clone(s.Conclusion)
	s.AICounterArguments = slices.Clone(s.AICounterArguments)
	if s.EndedAt != nil {
		t := *s.EndedAt
		s.EndedAt = &t
	}
	if s.Evaluation != nil {
		ev := *s.Evaluation
		s.Evaluation = &ev
	}
	return s
}

func cloneRecords(recs []TurnRecord) []TurnRecord {
	if recs == nil {
		return nil
	}
	out := make([]TurnRecord, len(recs))
	for i, r := range recs {
		if r.Answer != nil {
			a := *r.Answer
			r.Answer = &a
		}
		out[i] = r
	}
	return out
}

// Terminal reports whether the snapshot was taken after End or Complete.
func (s Snapshot) Terminal() bool {
	return s.Status != StatusActive && s.Status != ""
}

// TurnCount is the number of records across both ledgers.
func (s Snapshot) TurnCount() int {
	return len(s.Phase2Ledger) + len(s.Phase3Ledger)
}

// ComputeIntegrityHash hashes the transcript content of the snapshot:
// identity, arguments, both ledgers, conclusions and final scores.
func (s Snapshot) ComputeIntegrityHash() string {
	h := integrity.NewHasher()
	h.Field(s.SessionID)
	h.Field(s.TeamKey)
	h.Field(s.Topic)
	h.Field(string(s.Stance))
	h.List(s.Members)
	h.List(s.TeamArguments)
	h.List(s.AIArguments)
	h.Field(LedgerRoot(s.Phase2Ledger))
	h.Field(LedgerRoot(s.Phase3Ledger))
	h.List(s.Conclusion)
	h.List(s.AICounterArguments)
	if s.Evaluation != nil {
		h.Int(s.Evaluation.Total)
		h.Field(s.Evaluation.Feedback)
	}
	h.Field(string(s.Status))
	h.Field(s.EndReason)
	return h.Sum()
}

// LedgerRoot returns the Merkle root over the per-record hashes of a ledger,
// in sequence order. An empty ledger has an empty root.
func LedgerRoot(recs []TurnRecord) string {
	leaves := make([]string, len(recs))
	for i, r := range recs {
		h := integrity.NewHasher()
		h.Int(r.Seq)
		h.Field(string(r.Asker))
		h.Field(r.Question)
		h.OptionalField(r.Answer)
		leaves[i] = h.Sum()
	}
	return integrity.BuildMerkleRoot(leaves)
}

// VerifyIntegrity reports whether IntegrityHash matches the content.
func (s Snapshot) VerifyIntegrity() bool {
	return s.IntegrityHash != "" && integrity.Equal(s.IntegrityHash, s.ComputeIntegrityHash())
}
