// Package store persists engine snapshots between process restarts.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/p-n-ai/greenquest/internal/engine"
)

// ErrNoSnapshot is returned by Load when nothing has been saved yet.
var ErrNoSnapshot = errors.New("no snapshot saved")

// Store loads and saves the engine's complete state.
type Store interface {
	Load(ctx context.Context) (engine.Snapshot, error)
	Save(ctx context.Context, snap engine.Snapshot) error
}

// MemoryStore keeps the latest snapshot as encoded JSON so callers never
// share maps with the engine.
type MemoryStore struct {
	data []byte
	mu   sync.RWMutex
}

// NewMemoryStore creates an empty in-memory snapshot store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (engine.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.data == nil {
		return engine.Snapshot{}, ErrNoSnapshot
	}
	var snap engine.Snapshot
	if err := json.Unmarshal(s.data, &snap); err != nil {
		return engine.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

func (s *MemoryStore) Save(ctx context.Context, snap engine.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	return nil
}

// LoadInto restores eng from st. A store with nothing saved leaves the
// engine untouched and is not an error.
func LoadInto(ctx context.Context, st Store, eng *engine.Engine) error {
	snap, err := st.Load(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		slog.Info("no saved snapshot, starting fresh")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if err := eng.Restore(snap); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	slog.Info("snapshot restored",
		"users", len(snap.Users),
		"submissions", len(snap.Submissions),
		"saved_at", snap.SavedAt,
	)
	return nil
}
