package engine

import (
	"github.com/p-n-ai/greenquest/internal/apperr"
	"github.com/p-n-ai/greenquest/internal/events"
	"github.com/p-n-ai/greenquest/internal/identity"
	"github.com/p-n-ai/greenquest/internal/reward"
	"github.com/p-n-ai/greenquest/internal/submission"
)

// Approval is the result of approving a submission.
type Approval struct {
	Submission    submission.Submission `json:"submission"`
	Streak        int                   `json:"streak"`
	Balance       int                   `json:"balance"`
	BadgesAwarded []string              `json:"badges_awarded,omitempty"`
}

// SubmitQuest records the actor's evidence for a quest as a pending submission.
func (e *Engine) SubmitQuest(actor identity.Actor, questID string, ev submission.Evidence) (submission.Submission, error) {
	const op = "engine.SubmitQuest"
	if err := requireUser(op, actor); err != nil {
		return submission.Submission{}, err
	}

	e.mu.Lock()
	now := e.now()
	s, err := e.ledger.Create(questID, actor.UserID, ev, now)
	if err == nil {
		e.tracker.Ensure(actor.UserID)
	}
	e.mu.Unlock()
	if err != nil {
		return submission.Submission{}, err
	}

	e.dispatch([]events.Event{
		e.event(events.SubmissionCreated, actor, actor.UserID, now, map[string]any{
			"submission_id": s.ID,
			"quest_id":      s.QuestID,
			"evidence_type": string(ev.Kind()),
		}),
	})
	return s, nil
}

// Approve accepts a pending submission. The payout uses the learner's streak
// before this approval; the ledger transition, token credit, streak update and
// badge awards are applied together or not at all.
func (e *Engine) Approve(actor identity.Actor, submissionID string, qualityScore float64, comments string) (Approval, error) {
	const op = "engine.Approve"
	if err := requireValidator(op, actor); err != nil {
		return Approval{}, err
	}

	e.mu.Lock()
	now := e.now()
	decision := submission.Decision{
		Status:       submission.StatusApproved,
		ValidatorID:  actor.UserID,
		Comments:     comments,
		QualityScore: &qualityScore,
		DecidedAt:    now,
	}
	if err := e.ledger.Check(submissionID, decision); err != nil {
		e.mu.Unlock()
		return Approval{}, err
	}

	sub, _ := e.ledger.Get(submissionID)
	quest, ok := e.graph.Quest(sub.QuestID)
	if !ok {
		e.mu.Unlock()
		return Approval{}, apperr.NotFound(op, "quest %q", sub.QuestID)
	}

	priorStreak := 0
	if p, ok := e.tracker.Get(sub.UserID); ok {
		priorStreak = p.CurrentStreak
	}

	breakdown := e.rewards.Compute(reward.Input{
		Quest:        quest,
		SubmittedAt:  sub.CreatedAt,
		DecidedAt:    now,
		QualityScore: &qualityScore,
		TeamSize:     sub.TeamSize(),
		Streak:       priorStreak,
	})
	decision.TokensAwarded = breakdown.Tokens
	decision.Reward = &breakdown

	// Nothing below can fail: inputs were checked above and Credit only
	// rejects negative amounts.
	decided, err := e.ledger.Decide(submissionID, decision)
	if err != nil {
		e.mu.Unlock()
		return Approval{}, err
	}
	if err := e.tracker.Credit(sub.UserID, breakdown.Tokens); err != nil {
		e.mu.Unlock()
		return Approval{}, err
	}
	streak := e.tracker.UpdateStreak(sub.UserID, now)
	badges := e.evaluateBadges(sub.UserID)
	p, _ := e.tracker.Get(sub.UserID)
	e.mu.Unlock()

	batch := []events.Event{
		e.event(events.SubmissionApproved, actor, sub.UserID, now, map[string]any{
			"submission_id":  decided.ID,
			"quest_id":       decided.QuestID,
			"tokens_awarded": decided.TokensAwarded,
			"quality_score":  *decided.QualityScore,
			"streak":         streak,
		}),
	}
	batch = append(batch, e.badgeEvents(actor, sub.UserID, now, badges)...)
	e.dispatch(batch)

	return Approval{
		Submission:    decided,
		Streak:        streak,
		Balance:       p.TotalTokens,
		BadgesAwarded: badges,
	}, nil
}

// Reject declines a pending submission with feedback. Tokens, streak and
// mastery are untouched.
func (e *Engine) Reject(actor identity.Actor, submissionID, comments string) (submission.Submission, error) {
	const op = "engine.Reject"
	if err := requireValidator(op, actor); err != nil {
		return submission.Submission{}, err
	}

	e.mu.Lock()
	now := e.now()
	decided, err := e.ledger.Decide(submissionID, submission.Decision{
		Status:      submission.StatusRejected,
		ValidatorID: actor.UserID,
		Comments:    comments,
		DecidedAt:   now,
	})
	e.mu.Unlock()
	if err != nil {
		return submission.Submission{}, err
	}

	e.dispatch([]events.Event{
		e.event(events.SubmissionRejected, actor, decided.UserID, now, map[string]any{
			"submission_id": decided.ID,
			"quest_id":      decided.QuestID,
		}),
	})
	return decided, nil
}
