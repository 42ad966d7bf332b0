package engine

import (
	"github.com/p-n-ai/greenquest/internal/apperr"
	"github.com/p-n-ai/greenquest/internal/events"
	"github.com/p-n-ai/greenquest/internal/identity"
)

// Purchase is the result of buying a course.
type Purchase struct {
	CourseID string `json:"course_id"`
	Cost     int    `json:"cost"`
	Balance  int    `json:"balance"`
}

// CourseCompletion is the result of finishing a course.
type CourseCompletion struct {
	CourseID     string `json:"course_id"`
	BadgeAwarded string `json:"badge_awarded,omitempty"`
}

// PurchaseCourse spends tokens to unlock a course. A course is charged once;
// buying it again fails with InvalidState and costs nothing.
func (e *Engine) PurchaseCourse(actor identity.Actor, courseID string) (Purchase, error) {
	const op = "engine.PurchaseCourse"
	if err := requireUser(op, actor); err != nil {
		return Purchase{}, err
	}
	course, ok := e.graph.Course(courseID)
	if !ok {
		return Purchase{}, apperr.NotFound(op, "course %q", courseID)
	}

	e.mu.Lock()
	now := e.now()
	if p, ok := e.tracker.Get(actor.UserID); ok && p.HasUnlockedCourse(courseID) {
		e.mu.Unlock()
		return Purchase{}, apperr.InvalidState(op, "course %q is already unlocked", courseID)
	}
	if err := e.tracker.Debit(actor.UserID, course.TokenCost); err != nil {
		e.mu.Unlock()
		return Purchase{}, err
	}
	e.tracker.UnlockCourse(actor.UserID, courseID)
	p, _ := e.tracker.Get(actor.UserID)
	e.mu.Unlock()

	e.dispatch([]events.Event{
		e.event(events.CoursePurchased, actor, actor.UserID, now, map[string]any{
			"course_id": courseID,
			"cost":      course.TokenCost,
		}),
	})
	return Purchase{CourseID: courseID, Cost: course.TokenCost, Balance: p.TotalTokens}, nil
}

// CompleteCourse records that the actor finished an unlocked course and
// awards the course badge when the catalog defines it. Completing twice is a
// no-op.
func (e *Engine) CompleteCourse(actor identity.Actor, courseID string) (CourseCompletion, error) {
	const op = "engine.CompleteCourse"
	if err := requireUser(op, actor); err != nil {
		return CourseCompletion{}, err
	}
	course, ok := e.graph.Course(courseID)
	if !ok {
		return CourseCompletion{}, apperr.NotFound(op, "course %q", courseID)
	}

	e.mu.Lock()
	now := e.now()
	p, ok := e.tracker.Get(actor.UserID)
	if !ok || !p.HasUnlockedCourse(courseID) {
		e.mu.Unlock()
		return CourseCompletion{}, apperr.InvalidState(op, "course %q is not unlocked", courseID)
	}
	out := CourseCompletion{CourseID: courseID}
	if !e.tracker.CompleteCourse(actor.UserID, courseID) {
		e.mu.Unlock()
		return out, nil
	}
	if _, known := e.graph.Badge(course.Badge); known {
		if added, err := e.tracker.AwardBadge(actor.UserID, course.Badge); err == nil && added {
			out.BadgeAwarded = course.Badge
		}
	}
	e.mu.Unlock()

	batch := []events.Event{
		e.event(events.CourseCompleted, actor, actor.UserID, now, map[string]any{"course_id": courseID}),
	}
	if out.BadgeAwarded != "" {
		batch = append(batch, e.badgeEvents(actor, actor.UserID, now, []string{out.BadgeAwarded})...)
	}
	e.dispatch(batch)
	return out, nil
}
