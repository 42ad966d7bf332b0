// Package progress owns per-learner mastery, unlock, badge, streak and token
// state over the curriculum graph.
//
// A Tracker is not safe for concurrent use; the engine serialises access.
package progress

import (
	"math"
	"slices"
	"time"

	"github.com/p-n-ai/greenquest/internal/apperr"
	"github.com/p-n-ai/greenquest/internal/curriculum"
)

const day = 24 * time.Hour

// Tracker holds every learner's UserProgress.
type Tracker struct {
	graph *curriculum.Graph
	users map[string]*UserProgress
}

// NewTracker creates an empty tracker over graph.
func NewTracker(graph *curriculum.Graph) *Tracker {
	return &Tracker{
		graph: graph,
		users: make(map[string]*UserProgress),
	}
}

// Ensure returns the record for userID, creating it on first sight.
func (t *Tracker) Ensure(userID string) *UserProgress {
	p, ok := t.users[userID]
	if !ok {
		p = NewUserProgress(userID)
		t.users[userID] = p
	}
	return p
}

// Get returns a copy of the record for userID.
func (t *Tracker) Get(userID string) (*UserProgress, bool) {
	p, ok := t.users[userID]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// UserIDs lists known learners in ascending order.
func (t *Tracker) UserIDs() []string {
	ids := make([]string, 0, len(t.users))
	for id := range t.users {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// IsLocked derives lock state: a node is open when it is first in its lane or
// the learner completed the node right before it.
func (t *Tracker) IsLocked(userID string, node curriculum.Node) bool {
	if node.Order <= 1 {
		return false
	}
	prev, ok := t.graph.NodeAt(node.LaneID, node.Order-1)
	if !ok {
		return true
	}
	p, ok := t.users[userID]
	return !ok || !p.HasCompleted(prev.LaneID, prev.ID)
}

// NodeState returns the derived state of one node for userID.
func (t *Tracker) NodeState(userID, nodeID string) (NodeState, error) {
	node, ok := t.graph.Node(nodeID)
	if !ok {
		return NodeState{}, apperr.NotFound("progress.NodeState", "node %q", nodeID)
	}
	return t.nodeState(userID, node), nil
}

// LaneStates returns the derived state of every node in a lane, by order.
func (t *Tracker) LaneStates(userID, laneID string) ([]NodeState, error) {
	lane, ok := t.graph.Lane(laneID)
	if !ok {
		return nil, apperr.NotFound("progress.LaneStates", "lane %q", laneID)
	}
	states := make([]NodeState, 0, len(lane.Nodes))
	for _, n := range lane.Nodes {
		states = append(states, t.nodeState(userID, n))
	}
	return states, nil
}

// AvailableNodes lists unlocked, not yet completed nodes across all lanes.
func (t *Tracker) AvailableNodes(userID string) []NodeState {
	var out []NodeState
	for _, lane := range t.graph.Lanes() {
		for _, n := range lane.Nodes {
			s := t.nodeState(userID, n)
			if !s.Locked && !s.Completed {
				out = append(out, s)
			}
		}
	}
	return out
}

func (t *Tracker) nodeState(userID string, n curriculum.Node) NodeState {
	s := NodeState{
		NodeID:        n.ID,
		LaneID:        n.LaneID,
		Title:         n.Title,
		Order:         n.Order,
		Locked:        t.IsLocked(userID, n),
		RequiredScore: n.RequiredScore,
		XPReward:      n.XPReward,
	}
	if p, ok := t.users[userID]; ok {
		s.Completed = p.HasCompleted(n.LaneID, n.ID)
		if lp, ok := p.Lanes[n.LaneID]; ok {
			s.MasteryScore = lp.MasteryPercentages[n.ID]
		}
	}
	return s
}

// RecordQuizResult stores a quiz percentage and marks the node mastered when
// it meets the required score. XP is credited only on the first mastery.
func (t *Tracker) RecordQuizResult(userID, nodeID string, score, maxScore int) (MasteryOutcome, error) {
	const op = "progress.RecordQuizResult"

	node, ok := t.graph.Node(nodeID)
	if !ok {
		return MasteryOutcome{}, apperr.NotFound(op, "node %q", nodeID)
	}
	if maxScore <= 0 {
		return MasteryOutcome{}, apperr.Validation(op, "max score must be positive, got %d", maxScore)
	}
	if t.IsLocked(userID, node) {
		return MasteryOutcome{}, apperr.InvalidState(op, "node %q is locked", nodeID)
	}

	pct := int(math.Round(100 * float64(score) / float64(maxScore)))
	pct = min(max(pct, 0), 100)

	p := t.Ensure(userID)
	lp := p.lane(node.LaneID)
	lp.MasteryPercentages[node.ID] = pct

	out := MasteryOutcome{
		NodeID:     node.ID,
		LaneID:     node.LaneID,
		Percentage: pct,
		Passed:     pct >= node.RequiredScore,
	}
	if !out.Passed {
		return out, nil
	}

	var added bool
	lp.NodesCompleted, added = addUnique(lp.NodesCompleted, node.ID)
	if !added {
		return out, nil
	}

	lp.TotalXP += node.XPReward
	out.NewlyMastered = true
	out.XPAwarded = node.XPReward
	if next, ok := t.graph.NodeAt(node.LaneID, node.Order+1); ok {
		out.UnlockedNodeID = next.ID
	}
	return out, nil
}

// CompleteLesson records the node's lesson as viewed. It reports whether the
// lesson was new for the learner.
func (t *Tracker) CompleteLesson(userID, nodeID string) (bool, error) {
	const op = "progress.CompleteLesson"

	node, ok := t.graph.Node(nodeID)
	if !ok {
		return false, apperr.NotFound(op, "node %q", nodeID)
	}
	if t.IsLocked(userID, node) {
		return false, apperr.InvalidState(op, "node %q is locked", nodeID)
	}

	lp := t.Ensure(userID).lane(node.LaneID)
	var added bool
	lp.LessonsViewed, added = addUnique(lp.LessonsViewed, node.Lesson.ID)
	return added, nil
}

// AwardBadge adds a badge once and credits its points on first award.
func (t *Tracker) AwardBadge(userID, badgeID string) (bool, error) {
	badge, ok := t.graph.Badge(badgeID)
	if !ok {
		return false, apperr.NotFound("progress.AwardBadge", "badge %q", badgeID)
	}

	p := t.Ensure(userID)
	var added bool
	p.Badges, added = addUnique(p.Badges, badge.ID)
	if !added {
		return false, nil
	}
	if badge.Points > 0 {
		if err := t.Credit(userID, badge.Points); err != nil {
			return false, err
		}
	}
	return true, nil
}

// UpdateStreak applies one day of activity at the given time and returns the
// new streak. The next day extends it, the same day keeps it, and any other
// gap restarts it at 1, including activity dated before the last one.
func (t *Tracker) UpdateStreak(userID string, at time.Time) int {
	p := t.Ensure(userID)

	if p.LastActiveDate.IsZero() {
		p.CurrentStreak = 1
	} else {
		days := int(math.Floor(float64(at.Sub(p.LastActiveDate)) / float64(day)))
		switch {
		case days == 1:
			p.CurrentStreak++
		case days != 0:
			p.CurrentStreak = 1
		}
	}

	p.LastActiveDate = at
	return p.CurrentStreak
}

// Credit adds tokens to a learner's balance.
func (t *Tracker) Credit(userID string, amount int) error {
	if amount < 0 {
		return apperr.Validation("progress.Credit", "amount must not be negative, got %d", amount)
	}
	t.Ensure(userID).TotalTokens += amount
	return nil
}

// Debit removes tokens. It fails without mutation when amount exceeds the
// balance.
func (t *Tracker) Debit(userID string, amount int) error {
	const op = "progress.Debit"

	if amount < 0 {
		return apperr.Validation(op, "amount must not be negative, got %d", amount)
	}
	balance := 0
	if p, ok := t.users[userID]; ok {
		balance = p.TotalTokens
	}
	if amount > balance {
		return apperr.New(op, apperr.ErrInsufficientFunds, "need %d tokens, have %d", amount, balance)
	}
	if amount == 0 {
		return nil
	}
	t.users[userID].TotalTokens -= amount
	return nil
}

// UnlockCourse marks a course as purchased. It reports false if it already was.
func (t *Tracker) UnlockCourse(userID, courseID string) bool {
	p := t.Ensure(userID)
	var added bool
	p.UnlockedCourses, added = addUnique(p.UnlockedCourses, courseID)
	return added
}

// CompleteCourse marks a course as finished. It reports false if it already was.
func (t *Tracker) CompleteCourse(userID, courseID string) bool {
	p := t.Ensure(userID)
	var added bool
	p.CompletedCourses, added = addUnique(p.CompletedCourses, courseID)
	return added
}

// Reset drops every learner's progress.
func (t *Tracker) Reset() {
	t.users = make(map[string]*UserProgress)
}

// Export returns deep copies of all records keyed by user id.
func (t *Tracker) Export() map[string]*UserProgress {
	out := make(map[string]*UserProgress, len(t.users))
	for id, p := range t.users {
		out[id] = p.Clone()
	}
	return out
}

// Import replaces all records with deep copies of users. Nil records are
// skipped.
func (t *Tracker) Import(users map[string]*UserProgress) {
	t.users = make(map[string]*UserProgress, len(users))
	for id, p := range users {
		if p == nil {
			continue
		}
		c := p.Clone()
		c.UserID = id
		if c.Lanes == nil {
			c.Lanes = make(map[string]*LaneProgress)
		}
		t.users[id] = c
	}
}
