// Package submission is the quest submission ledger: evidence variants, the
// integrity hash and the pending to approved/rejected lifecycle.
package submission

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/unicode/norm"

	"github.com/p-n-ai/greenquest/internal/reward"
)

// Status is a submission's lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Submission is one learner's evidence for one quest.
type Submission struct {
	ID            string            `json:"id"`
	QuestID       string            `json:"quest_id"`
	UserID        string            `json:"user_id"`
	CreatedAt     time.Time         `json:"created_at"`
	Evidence      Evidence          `json:"-"`
	IntegrityHash string            `json:"integrity_hash"`
	Status        Status            `json:"status"`
	ValidatorID   string            `json:"validator_id,omitempty"`
	Comments      string            `json:"comments,omitempty"`
	QualityScore  *float64          `json:"quality_score,omitempty"`
	TokensAwarded int               `json:"tokens_awarded,omitempty"`
	Reward        *reward.Breakdown `json:"reward,omitempty"`
	DecidedAt     *time.Time        `json:"decided_at,omitempty"`
}

type submissionJSON Submission

type submissionWire struct {
	submissionJSON
	Evidence json.RawMessage `json:"evidence"`
}

// MarshalJSON writes the evidence as a tagged envelope.
func (s Submission) MarshalJSON() ([]byte, error) {
	ev, err := MarshalEvidence(s.Evidence)
	if err != nil {
		return nil, err
	}
	return json.Marshal(submissionWire{submissionJSON: submissionJSON(s), Evidence: ev})
}

// UnmarshalJSON reads the tagged evidence envelope.
func (s *Submission) UnmarshalJSON(b []byte) error {
	var w submissionWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*s = Submission(w.submissionJSON)
	if len(w.Evidence) == 0 {
		return nil
	}
	ev, err := UnmarshalEvidence(w.Evidence)
	if err != nil {
		return err
	}
	s.Evidence = ev
	return nil
}

// TeamSize is the number of listed team members, or 1 for solo evidence.
func (s Submission) TeamSize() int {
	if te, ok := s.Evidence.(TeamEvidence); ok && len(te.Members) > 0 {
		return len(te.Members)
	}
	return 1
}

func (s Submission) clone() Submission {
	c := s
	if s.QualityScore != nil {
		q := *s.QualityScore
		c.QualityScore = &q
	}
	if s.Reward != nil {
		r := *s.Reward
		c.Reward = &r
	}
	if s.DecidedAt != nil {
		d := *s.DecidedAt
		c.DecidedAt = &d
	}
	return c
}

// Hash computes the integrity hash over submitter, quest, creation time and
// evidence. Text is NFC-normalised and every field is length-prefixed.
func Hash(userID, questID string, createdAt time.Time, ev Evidence) string {
	h, _ := blake2b.New256(nil) // only fails for oversized keys

	write := func(s string) {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}

	write(norm.NFC.String(userID))
	write(norm.NFC.String(questID))
	write(createdAt.UTC().Format(time.RFC3339Nano))
	if ev != nil {
		write(string(ev.Kind()))
		for _, f := range ev.fields() {
			write(norm.NFC.String(f))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyIntegrity recomputes the hash and compares it to the stored one.
func VerifyIntegrity(s Submission) bool {
	return s.IntegrityHash == Hash(s.UserID, s.QuestID, s.CreatedAt, s.Evidence)
}
