package submission

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/greenquest/internal/apperr"
	"github.com/p-n-ai/greenquest/internal/curriculum"
	"github.com/p-n-ai/greenquest/internal/reward"
)

// Decision is a validator's verdict on a pending submission.
type Decision struct {
	Status        Status
	ValidatorID   string
	Comments      string
	QualityScore  *float64 // required when approving
	TokensAwarded int
	Reward        *reward.Breakdown
	DecidedAt     time.Time
}

// Ledger owns all submissions. It is not safe for concurrent use; the engine
// serialises access.
type Ledger struct {
	graph   *curriculum.Graph
	quality reward.QualityBounds
	newID   func() string

	records []*Submission
	byID    map[string]*Submission
}

// NewLedger creates an empty ledger. Quality scores on approval are clamped to
// the given bounds.
func NewLedger(graph *curriculum.Graph, quality reward.QualityBounds) *Ledger {
	return &Ledger{
		graph:   graph,
		quality: quality,
		newID:   uuid.NewString,
		byID:    make(map[string]*Submission),
	}
}

// SetIDGenerator replaces the id source, for deterministic tests.
func (l *Ledger) SetIDGenerator(fn func() string) {
	l.newID = fn
}

// Create appends a pending submission for an existing quest.
func (l *Ledger) Create(questID, userID string, ev Evidence, now time.Time) (Submission, error) {
	const op = "ledger.Create"

	quest, ok := l.graph.Quest(questID)
	if !ok {
		return Submission{}, apperr.NotFound(op, "quest %q", questID)
	}
	if ev == nil {
		return Submission{}, apperr.Validation(op, "evidence is required")
	}
	if ev.Kind() != quest.Type {
		return Submission{}, apperr.Validation(op, "quest %q expects %s evidence, got %s", questID, quest.Type, ev.Kind())
	}
	if err := ev.Validate(); err != nil {
		return Submission{}, apperr.Validation(op, "%s evidence: %v", ev.Kind(), err)
	}

	s := &Submission{
		ID:            l.newID(),
		QuestID:       questID,
		UserID:        userID,
		CreatedAt:     now,
		Evidence:      ev,
		IntegrityHash: Hash(userID, questID, now, ev),
		Status:        StatusPending,
	}
	l.records = append(l.records, s)
	l.byID[s.ID] = s
	return s.clone(), nil
}

// Check reports whether d could be applied to the submission, without
// changing anything.
func (l *Ledger) Check(id string, d Decision) error {
	const op = "ledger.Decide"

	s, ok := l.byID[id]
	if !ok {
		return apperr.NotFound(op, "submission %q", id)
	}
	if s.Status != StatusPending {
		return apperr.InvalidState(op, "submission %q is already %s", id, s.Status)
	}

	switch d.Status {
	case StatusApproved:
		if d.QualityScore == nil {
			return apperr.Validation(op, "quality score is required to approve")
		}
		if q := *d.QualityScore; math.IsNaN(q) || math.IsInf(q, 0) {
			return apperr.Validation(op, "quality score must be a finite number")
		}
	case StatusRejected:
		if strings.TrimSpace(d.Comments) == "" {
			return apperr.Validation(op, "comments are required to reject")
		}
	default:
		return apperr.Validation(op, "cannot decide submission as %q", d.Status)
	}
	return nil
}

// Decide moves a pending submission to a terminal status. Decisions are
// applied once; a second decision fails with InvalidState.
func (l *Ledger) Decide(id string, d Decision) (Submission, error) {
	if err := l.Check(id, d); err != nil {
		return Submission{}, err
	}

	s := l.byID[id]
	decidedAt := d.DecidedAt
	s.Status = d.Status
	s.ValidatorID = d.ValidatorID
	s.Comments = strings.TrimSpace(d.Comments)
	s.DecidedAt = &decidedAt

	if d.Status == StatusApproved {
		q := min(max(*d.QualityScore, l.quality.Min), l.quality.Max)
		s.QualityScore = &q
		s.TokensAwarded = d.TokensAwarded
		if d.Reward != nil {
			r := *d.Reward
			s.Reward = &r
		}
	}
	return s.clone(), nil
}

// Get returns a submission by id.
func (l *Ledger) Get(id string) (Submission, bool) {
	s, ok := l.byID[id]
	if !ok {
		return Submission{}, false
	}
	return s.clone(), true
}

// ByStatus lists submissions in the given status, oldest first.
func (l *Ledger) ByStatus(status Status) []Submission {
	return l.filter(func(s *Submission) bool { return s.Status == status })
}

// ByUser lists a learner's submissions, oldest first.
func (l *Ledger) ByUser(userID string) []Submission {
	return l.filter(func(s *Submission) bool { return s.UserID == userID })
}

// All lists every submission, oldest first.
func (l *Ledger) All() []Submission {
	return l.filter(func(*Submission) bool { return true })
}

func (l *Ledger) filter(keep func(*Submission) bool) []Submission {
	out := []Submission{}
	for _, s := range l.records {
		if keep(s) {
			out = append(out, s.clone())
		}
	}
	return out
}

// Reset drops every submission.
func (l *Ledger) Reset() {
	l.records = nil
	l.byID = make(map[string]*Submission)
}

// Import replaces the ledger's contents, keeping the given order.
func (l *Ledger) Import(subs []Submission) {
	l.Reset()
	for _, in := range subs {
		s := in.clone()
		l.records = append(l.records, &s)
		l.byID[s.ID] = &s
	}
}
