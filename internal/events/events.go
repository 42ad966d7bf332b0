// Package events records the domain events the engine emits after each
// committed mutation.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Event types.
const (
	QuizRecorded       = "quiz.recorded"
	NodeMastered       = "node.mastered"
	LessonCompleted    = "lesson.completed"
	SubmissionCreated  = "submission.created"
	SubmissionApproved = "submission.approved"
	SubmissionRejected = "submission.rejected"
	BadgeAwarded       = "badge.awarded"
	CoursePurchased    = "course.purchased"
	CourseCompleted    = "course.completed"
	SettingsUpdated    = "settings.updated"
	ProgressReset      = "progress.reset"
)

const dbTimeout = 5 * time.Second

// Event is one committed state change.
type Event struct {
	EventType string         `json:"type"`
	UserID    string         `json:"user_id,omitempty"`
	ActorID   string         `json:"actor_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Logger defines event logging behavior.
type Logger interface {
	LogEvent(event Event) error
}

// NopLogger ignores all events.
type NopLogger struct{}

func (NopLogger) LogEvent(Event) error {
	return nil
}

// MemoryLogger stores events in memory for tests.
type MemoryLogger struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{
		events: []Event{},
	}
}

func (l *MemoryLogger) LogEvent(event Event) error {
	if event.EventType == "" {
		return fmt.Errorf("event type is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()

	return nil
}

func (l *MemoryLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event{}, l.events...)
}

// Types returns the recorded event types in order.
func (l *MemoryLogger) Types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.EventType)
	}
	return out
}

// PostgresLogger inserts events into the quest_events table.
type PostgresLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresLogger(pool *pgxpool.Pool) *PostgresLogger {
	return &PostgresLogger{pool: pool}
}

func (l *PostgresLogger) LogEvent(event Event) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("event logger pool is nil")
	}
	if event.EventType == "" {
		return fmt.Errorf("event type is required")
	}

	payload := event.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	_, err = l.pool.Exec(ctx,
		`INSERT INTO quest_events (event_type, user_id, actor_id, data, created_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5)`,
		event.EventType,
		event.UserID,
		event.ActorID,
		string(data),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	slog.Debug("event logged",
		"type", event.EventType,
		"user_id", event.UserID,
	)
	return nil
}

// Fanout forwards each event to every logger and joins their errors.
type Fanout []Logger

func NewFanout(loggers ...Logger) Fanout {
	return Fanout(loggers)
}

func (f Fanout) LogEvent(event Event) error {
	var errs []error
	for _, l := range f {
		if err := l.LogEvent(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
