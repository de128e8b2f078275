package debate

import (
	"encoding/json"
	"fmt"
	"time"
)

// Asker identifies who produced a turn.
type Asker string

const (
	AskerAI      Asker = "AI"
	AskerStudent Asker = "Student"
)

// TurnRecord is one question-or-answer event. Records are immutable once
// appended to a ledger.
type TurnRecord struct {
	Seq       int       `json:"seq"`
	Asker     Asker     `json:"asker"`
	Question  string    `json:"question,omitempty"`
	Answer    *string   `json:"answer,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Answered reports whether the record carries an answer.
func (r TurnRecord) Answered() bool {
	return r.Answer != nil && *r.Answer != ""
}

// AnswerText returns the answer or the empty string.
func (r TurnRecord) AnswerText() string {
	if r.Answer == nil {
		return ""
	}
	return *r.Answer
}

// TurnLedger is an append-only sequence of turn records. Sequence numbers
// start at 1 and increase by exactly 1 per append. A ledger is not safe for
// concurrent use; the owning session's lock guards it.
type TurnLedger struct {
	records []TurnRecord
}

// Append adds a record and returns it with its sequence number assigned.
func (l *TurnLedger) Append(asker Asker, question string, answer *string, at time.Time) TurnRecord {
	rec := TurnRecord{
		Seq:       len(l.records) + 1,
		Asker:     asker,
		Question:  question,
		CreatedAt: at,
	}
	if answer != nil {
		a := *answer
		rec.Answer = &a
	}
	l.records = append(l.records, rec)
	return rec
}

// Len returns the number of records.
func (l *TurnLedger) Len() int {
	return len(l.records)
}

// Last returns the most recent record.
func (l *TurnLedger) Last() (TurnRecord, bool) {
	if len(l.records) == 0 {
		return TurnRecord{}, false
	}
	return l.records[len(l.records)-1], true
}

// Records returns a copy of the records in sequence order.
func (l *TurnLedger) Records() []TurnRecord {
	out := make([]TurnRecord, len(l.records))
	for i, r := range l.records {
		if r.Answer != nil {
			a := *r.Answer
			r.Answer = &a
		}
		out[i] = r
	}
	return out
}

// Questions returns the non-empty questions asked by asker, in order.
func (l *TurnLedger) Questions(asker Asker) []string {
	var out []string
	for _, r := range l.records {
		if r.Asker == asker && r.Question != "" {
			out = append(out, r.Question)
		}
	}
	return out
}

// MarshalJSON encodes the ledger as its record array.
func (l TurnLedger) MarshalJSON() ([]byte, error) {
	if l.records == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.records)
}

// UnmarshalJSON decodes a record array, rejecting gaps or reordering.
func (l *TurnLedger) UnmarshalJSON(data []byte) error {
	var recs []TurnRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return err
	}
	if err := checkSequence(recs); err != nil {
		return err
	}
	l.records = recs
	return nil
}

// LedgerFrom rebuilds a ledger from stored records.
func LedgerFrom(recs []TurnRecord) (TurnLedger, error) {
	if err := checkSequence(recs); err != nil {
		return TurnLedger{}, err
	}
	var l TurnLedger
	l.records = append(l.records, recs...)
	return l, nil
}

func checkSequence(recs []TurnRecord) error {
	for i, r := range recs {
		if r.Seq != i+1 {
			return fmt.Errorf("debate: ledger record %d has sequence %d", i+1, r.Seq)
		}
	}
	return nil
}
