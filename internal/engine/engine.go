// Package engine is the quest submission and reward engine. It owns the
// progress tracker and the submission ledger as one aggregate: every public
// operation runs under a single mutex, so no caller observes a half-applied
// decision. Domain events are dispatched after the lock is released.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/p-n-ai/greenquest/internal/apperr"
	"github.com/p-n-ai/greenquest/internal/curriculum"
	"github.com/p-n-ai/greenquest/internal/events"
	"github.com/p-n-ai/greenquest/internal/identity"
	"github.com/p-n-ai/greenquest/internal/progress"
	"github.com/p-n-ai/greenquest/internal/reward"
	"github.com/p-n-ai/greenquest/internal/submission"
)

// Config holds dependencies for the engine.
type Config struct {
	Graph     *curriculum.Graph   // required
	Rewards   *reward.Config      // default reward.DefaultConfig()
	Directory *identity.Directory // default empty roster
	Events    events.Logger       // default NopLogger
	Now       func() time.Time    // default time.Now
	NewID     func() string       // submission ids, default uuid
}

// Engine is the single aggregate over all learners' progress and submissions.
type Engine struct {
	graph     *curriculum.Graph
	rewards   reward.Config
	directory *identity.Directory
	events    events.Logger
	now       func() time.Time

	mu       sync.Mutex
	tracker  *progress.Tracker
	ledger   *submission.Ledger
	settings Settings
}

// New creates an engine with empty progress.
func New(cfg Config) (*Engine, error) {
	if cfg.Graph == nil {
		return nil, fmt.Errorf("engine: curriculum graph is required")
	}

	rewards := reward.DefaultConfig()
	if cfg.Rewards != nil {
		rewards = *cfg.Rewards
	}
	if err := rewards.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	directory := cfg.Directory
	if directory == nil {
		directory, _ = identity.NewDirectory(nil)
	}
	logger := cfg.Events
	if logger == nil {
		logger = events.NopLogger{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	ledger := submission.NewLedger(cfg.Graph, rewards.Quality)
	if cfg.NewID != nil {
		ledger.SetIDGenerator(cfg.NewID)
	}

	return &Engine{
		graph:     cfg.Graph,
		rewards:   rewards,
		directory: directory,
		events:    logger,
		now:       now,
		tracker:   progress.NewTracker(cfg.Graph),
		ledger:    ledger,
		settings:  DefaultSettings(),
	}, nil
}

// Graph returns the curriculum the engine runs on.
func (e *Engine) Graph() *curriculum.Graph {
	return e.graph
}

// Directory returns the roster used for display names and scopes.
func (e *Engine) Directory() *identity.Directory {
	return e.directory
}

// RewardConfig returns the reward table in use.
func (e *Engine) RewardConfig() reward.Config {
	return e.rewards
}

// dispatch logs events outside the critical section. Sink failures are
// reported but never undo the committed mutation.
func (e *Engine) dispatch(batch []events.Event) {
	for _, ev := range batch {
		if err := e.events.LogEvent(ev); err != nil {
			slog.Warn("event dispatch failed",
				"type", ev.EventType,
				"user_id", ev.UserID,
				"error", err,
			)
		}
	}
}

func (e *Engine) event(eventType string, actor identity.Actor, userID string, at time.Time, data map[string]any) events.Event {
	return events.Event{
		EventType: eventType,
		UserID:    userID,
		ActorID:   actor.UserID,
		Data:      data,
		CreatedAt: at,
	}
}

func requireUser(op string, actor identity.Actor) error {
	if actor.UserID == "" {
		return apperr.Unauthorized(op, "actor has no user id")
	}
	return nil
}

func requireValidator(op string, actor identity.Actor) error {
	if err := requireUser(op, actor); err != nil {
		return err
	}
	if !actor.IsValidator() {
		return apperr.Unauthorized(op, "user %q is not a validator", actor.UserID)
	}
	return nil
}
