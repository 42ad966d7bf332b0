package engine

import (
	"time"

	"github.com/p-n-ai/greenquest/internal/apperr"
	"github.com/p-n-ai/greenquest/internal/events"
	"github.com/p-n-ai/greenquest/internal/identity"
	"github.com/p-n-ai/greenquest/internal/progress"
	"github.com/p-n-ai/greenquest/internal/submission"
)

// SnapshotVersion is the current snapshot layout.
const SnapshotVersion = 1

// Settings are the application-wide preferences.
type Settings struct {
	Online            bool `json:"online"`
	Notifications     bool `json:"notifications"`
	SoundEnabled      bool `json:"sound_enabled"`
	TutorialCompleted bool `json:"tutorial_completed"`
}

// DefaultSettings returns the settings of a fresh install.
func DefaultSettings() Settings {
	return Settings{
		Online:        false,
		Notifications: true,
		SoundEnabled:  true,
	}
}

// SettingsPatch is a partial settings update; nil fields are left as is.
type SettingsPatch struct {
	Online            *bool `json:"online,omitempty"`
	Notifications     *bool `json:"notifications,omitempty"`
	SoundEnabled      *bool `json:"sound_enabled,omitempty"`
	TutorialCompleted *bool `json:"tutorial_completed,omitempty"`
}

func (s Settings) apply(p SettingsPatch) Settings {
	if p.Online != nil {
		s.Online = *p.Online
	}
	if p.Notifications != nil {
		s.Notifications = *p.Notifications
	}
	if p.SoundEnabled != nil {
		s.SoundEnabled = *p.SoundEnabled
	}
	if p.TutorialCompleted != nil {
		s.TutorialCompleted = *p.TutorialCompleted
	}
	return s
}

// Snapshot is the engine's complete persisted state. Node lock state is not
// stored: it is derived from each learner's completed nodes.
type Snapshot struct {
	Version     int                               `json:"version"`
	Settings    Settings                          `json:"settings"`
	Users       map[string]*progress.UserProgress `json:"users"`
	Submissions []submission.Submission           `json:"submissions"`
	SavedAt     time.Time                         `json:"saved_at"`
}

// Snapshot returns a deep copy of the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Snapshot{
		Version:     SnapshotVersion,
		Settings:    e.settings,
		Users:       e.tracker.Export(),
		Submissions: e.ledger.All(),
		SavedAt:     e.now(),
	}
}

// Restore replaces the current state with a snapshot.
func (e *Engine) Restore(s Snapshot) error {
	if s.Version > SnapshotVersion {
		return apperr.Validation("engine.Restore", "snapshot version %d is newer than %d", s.Version, SnapshotVersion)
	}
	for _, sub := range s.Submissions {
		if sub.ID == "" || !sub.Status.Valid() {
			return apperr.Validation("engine.Restore", "malformed submission %q", sub.ID)
		}
	}
	for id, p := range s.Users {
		if p == nil {
			return apperr.Validation("engine.Restore", "user %q has no progress record", id)
		}
		for laneID, lp := range p.Lanes {
			if lp == nil {
				return apperr.Validation("engine.Restore", "user %q has no progress record for lane %q", id, laneID)
			}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.settings = s.Settings
	if s.Version == 0 {
		e.settings = DefaultSettings()
	}
	e.tracker.Import(s.Users)
	e.ledger.Import(s.Submissions)
	return nil
}

// Settings returns the current settings.
func (e *Engine) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// UpdateSettings applies a partial update and returns the result.
func (e *Engine) UpdateSettings(actor identity.Actor, patch SettingsPatch) (Settings, error) {
	const op = "engine.UpdateSettings"
	if err := requireUser(op, actor); err != nil {
		return Settings{}, err
	}

	e.mu.Lock()
	e.settings = e.settings.apply(patch)
	updated := e.settings
	now := e.now()
	e.mu.Unlock()

	e.dispatch([]events.Event{
		e.event(events.SettingsUpdated, actor, "", now, map[string]any{
			"online":             updated.Online,
			"notifications":      updated.Notifications,
			"sound_enabled":      updated.SoundEnabled,
			"tutorial_completed": updated.TutorialCompleted,
		}),
	})
	return updated, nil
}

// Reset clears every learner's progress and all submissions. Settings are
// kept.
func (e *Engine) Reset(actor identity.Actor) error {
	const op = "engine.Reset"
	if err := requireValidator(op, actor); err != nil {
		return err
	}

	e.mu.Lock()
	users := len(e.tracker.UserIDs())
	subs := len(e.ledger.All())
	e.tracker.Reset()
	e.ledger.Reset()
	now := e.now()
	e.mu.Unlock()

	e.dispatch([]events.Event{
		e.event(events.ProgressReset, actor, "", now, map[string]any{
			"users":       users,
			"submissions": subs,
		}),
	})
	return nil
}
