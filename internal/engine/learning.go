package engine

import (
	"github.com/p-n-ai/greenquest/internal/apperr"
	"github.com/p-n-ai/greenquest/internal/events"
	"github.com/p-n-ai/greenquest/internal/identity"
	"github.com/p-n-ai/greenquest/internal/progress"
)

// QuizResult is the outcome of a graded quiz.
type QuizResult struct {
	progress.MasteryOutcome
	Score         int      `json:"score"`
	MaxScore      int      `json:"max_score"`
	Correct       []bool   `json:"correct"`
	BadgesAwarded []string `json:"badges_awarded,omitempty"`
}

// CompleteLesson marks the node's lesson as viewed by the actor.
func (e *Engine) CompleteLesson(actor identity.Actor, nodeID string) error {
	const op = "engine.CompleteLesson"
	if err := requireUser(op, actor); err != nil {
		return err
	}

	e.mu.Lock()
	added, err := e.tracker.CompleteLesson(actor.UserID, nodeID)
	now := e.now()
	e.mu.Unlock()
	if err != nil {
		return err
	}

	if added {
		e.dispatch([]events.Event{
			e.event(events.LessonCompleted, actor, actor.UserID, now, map[string]any{"node_id": nodeID}),
		})
	}
	return nil
}

// SubmitQuizAnswers grades answers against the node's quizzes and records the
// result. answers[i] is the chosen option index for quiz i.
func (e *Engine) SubmitQuizAnswers(actor identity.Actor, nodeID string, answers []int) (QuizResult, error) {
	const op = "engine.SubmitQuizAnswers"

	node, ok := e.graph.Node(nodeID)
	if !ok {
		return QuizResult{}, apperr.NotFound(op, "node %q", nodeID)
	}
	if len(answers) != len(node.Quizzes) {
		return QuizResult{}, apperr.Validation(op, "node %q has %d questions, got %d answers",
			nodeID, len(node.Quizzes), len(answers))
	}

	correct := make([]bool, len(answers))
	score := 0
	for i, q := range node.Quizzes {
		if answers[i] == q.CorrectAnswer {
			correct[i] = true
			score += q.Points
		}
	}

	res, err := e.RecordQuizResult(actor, nodeID, score, node.MaxQuizScore())
	if err != nil {
		return QuizResult{}, err
	}
	res.Correct = correct
	return res, nil
}

// RecordQuizResult stores a raw quiz score for the actor. On first mastery it
// credits lane XP and evaluates automatic badges in the same step.
func (e *Engine) RecordQuizResult(actor identity.Actor, nodeID string, score, maxScore int) (QuizResult, error) {
	const op = "engine.RecordQuizResult"
	if err := requireUser(op, actor); err != nil {
		return QuizResult{}, err
	}

	e.mu.Lock()
	now := e.now()
	out, err := e.tracker.RecordQuizResult(actor.UserID, nodeID, score, maxScore)
	if err != nil {
		e.mu.Unlock()
		return QuizResult{}, err
	}
	var badges []string
	if out.NewlyMastered {
		badges = e.evaluateBadges(actor.UserID)
	}
	e.mu.Unlock()

	batch := []events.Event{
		e.event(events.QuizRecorded, actor, actor.UserID, now, map[string]any{
			"node_id":    nodeID,
			"score":      score,
			"max_score":  maxScore,
			"percentage": out.Percentage,
		}),
	}
	if out.NewlyMastered {
		batch = append(batch, e.event(events.NodeMastered, actor, actor.UserID, now, map[string]any{
			"node_id":     nodeID,
			"lane_id":     out.LaneID,
			"xp_awarded":  out.XPAwarded,
			"unlocked_id": out.UnlockedNodeID,
		}))
	}
	batch = append(batch, e.badgeEvents(actor, actor.UserID, now, badges)...)
	e.dispatch(batch)

	return QuizResult{
		MasteryOutcome: out,
		Score:          score,
		MaxScore:       maxScore,
		BadgesAwarded:  badges,
	}, nil
}
