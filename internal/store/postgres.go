package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/greenquest/internal/engine"
)

const (
	// DefaultSnapshotName is the row used when none is configured.
	DefaultSnapshotName = "default"
	dbTimeout           = 5 * time.Second
)

// PostgresStore keeps one named snapshot per row of engine_snapshots.
type PostgresStore struct {
	pool *pgxpool.Pool
	name string
}

// NewPostgresStore creates a store for the snapshot called name.
func NewPostgresStore(pool *pgxpool.Pool, name string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	if name == "" {
		name = DefaultSnapshotName
	}
	return &PostgresStore{pool: pool, name: name}, nil
}

func (s *PostgresStore) Load(ctx context.Context) (engine.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM engine_snapshots WHERE name = $1`,
		s.name,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return engine.Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return engine.Snapshot{}, fmt.Errorf("select snapshot %q: %w", s.name, err)
	}

	var snap engine.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return engine.Snapshot{}, fmt.Errorf("decode snapshot %q: %w", s.name, err)
	}
	return snap, nil
}

func (s *PostgresStore) Save(ctx context.Context, snap engine.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO engine_snapshots (name, version, data, saved_at)
		 VALUES ($1, $2, $3::jsonb, $4)
		 ON CONFLICT (name) DO UPDATE
		 SET version = EXCLUDED.version,
		     data = EXCLUDED.data,
		     saved_at = EXCLUDED.saved_at`,
		s.name,
		snap.Version,
		string(data),
		savedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot %q: %w", s.name, err)
	}
	return nil
}
