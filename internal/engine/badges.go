package engine

import (
	"time"

	"github.com/p-n-ai/greenquest/internal/apperr"
	"github.com/p-n-ai/greenquest/internal/curriculum"
	"github.com/p-n-ai/greenquest/internal/events"
	"github.com/p-n-ai/greenquest/internal/identity"
	"github.com/p-n-ai/greenquest/internal/progress"
	"github.com/p-n-ai/greenquest/internal/submission"
)

// AwardBadge grants a badge to a learner on a teacher's behalf. It reports
// false when the learner already had it.
func (e *Engine) AwardBadge(actor identity.Actor, userID, badgeID string) (bool, error) {
	const op = "engine.AwardBadge"
	if err := requireValidator(op, actor); err != nil {
		return false, err
	}
	if userID == "" {
		return false, apperr.Validation(op, "user id is required")
	}

	e.mu.Lock()
	now := e.now()
	added, err := e.tracker.AwardBadge(userID, badgeID)
	e.mu.Unlock()
	if err != nil || !added {
		return false, err
	}

	e.dispatch(e.badgeEvents(actor, userID, now, []string{badgeID}))
	return true, nil
}

// evaluateBadges awards every automatic badge the learner now qualifies for.
// Callers must hold e.mu.
func (e *Engine) evaluateBadges(userID string) []string {
	p, ok := e.tracker.Get(userID)
	if !ok {
		return nil
	}

	stats := e.approvalStats(userID)
	var awarded []string
	for _, b := range e.graph.Badges() {
		if p.HasBadge(b.ID) || !e.qualifies(b, p, stats) {
			continue
		}
		if added, err := e.tracker.AwardBadge(userID, b.ID); err == nil && added {
			awarded = append(awarded, b.ID)
		}
	}
	return awarded
}

type approvalStats struct {
	approved     int
	teamApproved int
}

func (e *Engine) approvalStats(userID string) approvalStats {
	var st approvalStats
	for _, s := range e.ledger.ByUser(userID) {
		if s.Status != submission.StatusApproved {
			continue
		}
		st.approved++
		if q, ok := e.graph.Quest(s.QuestID); ok && q.Type == curriculum.QuestTeam {
			st.teamApproved++
		}
	}
	return st
}

func (e *Engine) qualifies(b curriculum.Badge, p *progress.UserProgress, st approvalStats) bool {
	threshold := max(b.Threshold, 1)

	switch b.AwardOn {
	case curriculum.TriggerQuestsApproved:
		return st.approved >= threshold
	case curriculum.TriggerTeamQuestsApproved:
		return st.teamApproved >= threshold
	case curriculum.TriggerStreak:
		return p.CurrentStreak >= threshold
	case curriculum.TriggerLaneCompleted:
		return e.laneCompleted(p, b.LaneID)
	case curriculum.TriggerAllLanesCompleted:
		lanes := e.graph.Lanes()
		if len(lanes) == 0 {
			return false
		}
		for _, lane := range lanes {
			if !e.laneCompleted(p, lane.ID) {
				return false
			}
		}
		return true
	}
	return false
}

func (e *Engine) laneCompleted(p *progress.UserProgress, laneID string) bool {
	lane, ok := e.graph.Lane(laneID)
	if !ok || len(lane.Nodes) == 0 {
		return false
	}
	for _, n := range lane.Nodes {
		if !p.HasCompleted(laneID, n.ID) {
			return false
		}
	}
	return true
}

func (e *Engine) badgeEvents(actor identity.Actor, userID string, at time.Time, ids []string) []events.Event {
	out := make([]events.Event, 0, len(ids))
	for _, id := range ids {
		data := map[string]any{"badge_id": id}
		if b, ok := e.graph.Badge(id); ok {
			data["points"] = b.Points
		}
		out = append(out, e.event(events.BadgeAwarded, actor, userID, at, data))
	}
	return out
}
