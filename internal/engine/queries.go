package engine

import (
	"sort"

	"github.com/p-n-ai/greenquest/internal/apperr"
	"github.com/p-n-ai/greenquest/internal/identity"
	"github.com/p-n-ai/greenquest/internal/leaderboard"
	"github.com/p-n-ai/greenquest/internal/progress"
	"github.com/p-n-ai/greenquest/internal/submission"
)

// Progress returns a learner's record, or an empty one for unseen learners.
// It never creates state.
func (e *Engine) Progress(userID string) *progress.UserProgress {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p, ok := e.tracker.Get(userID); ok {
		return p
	}
	return progress.NewUserProgress(userID)
}

// UserIDs lists every learner with recorded progress.
func (e *Engine) UserIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.UserIDs()
}

// LaneNodes returns the learner's view of every node in a lane.
func (e *Engine) LaneNodes(userID, laneID string) ([]progress.NodeState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.LaneStates(userID, laneID)
}

// NodeState returns the learner's view of one node.
func (e *Engine) NodeState(userID, nodeID string) (progress.NodeState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.NodeState(userID, nodeID)
}

// AvailableNodes lists unlocked, unfinished nodes; laneID narrows to one lane.
func (e *Engine) AvailableNodes(userID, laneID string) ([]progress.NodeState, error) {
	if laneID != "" {
		if _, ok := e.graph.Lane(laneID); !ok {
			return nil, apperr.NotFound("engine.AvailableNodes", "lane %q", laneID)
		}
	}

	e.mu.Lock()
	all := e.tracker.AvailableNodes(userID)
	e.mu.Unlock()

	out := []progress.NodeState{}
	for _, s := range all {
		if laneID == "" || s.LaneID == laneID {
			out = append(out, s)
		}
	}
	return out, nil
}

// Submission returns one submission.
func (e *Engine) Submission(id string) (submission.Submission, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.ledger.Get(id)
	if !ok {
		return submission.Submission{}, apperr.NotFound("engine.Submission", "submission %q", id)
	}
	return s, nil
}

// PendingSubmissions lists submissions awaiting a decision, oldest first.
func (e *Engine) PendingSubmissions() []submission.Submission {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.ByStatus(submission.StatusPending)
}

// Submissions lists submissions in a status; an empty status lists all.
func (e *Engine) Submissions(status submission.Status) ([]submission.Submission, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.Validation("engine.Submissions", "unknown status %q", status)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if status == "" {
		return e.ledger.All(), nil
	}
	return e.ledger.ByStatus(status), nil
}

// UserSubmissions lists a learner's submissions, oldest first.
func (e *Engine) UserSubmissions(userID string) []submission.Submission {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.ByUser(userID)
}

// WalletEarnings lists a learner's approved submissions, newest decision first.
func (e *Engine) WalletEarnings(userID string) []submission.Submission {
	e.mu.Lock()
	subs := e.ledger.ByUser(userID)
	e.mu.Unlock()

	out := []submission.Submission{}
	for _, s := range subs {
		if s.Status == submission.StatusApproved {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DecidedAt.After(*out[j].DecidedAt)
	})
	return out
}

// Leaderboard ranks learners in scope ("", "class:<id>" or "school:<id>").
func (e *Engine) Leaderboard(scope string) ([]leaderboard.Row, error) {
	sc, err := identity.ParseScope(scope)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	var entries []leaderboard.Entry
	for _, id := range e.tracker.UserIDs() {
		if !e.directory.InScope(id, sc) {
			continue
		}
		p, _ := e.tracker.Get(id)
		entries = append(entries, leaderboard.Entry{UserID: id, TotalXP: p.TotalXP()})
	}
	e.mu.Unlock()

	return leaderboard.Rank(entries, e.directory.DisplayName), nil
}
