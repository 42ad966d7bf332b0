// Package app wires configuration into a running engine with its storage,
// cache and event sinks. Both the HTTP service and the operator CLI start
// from here.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/p-n-ai/greenquest/internal/curriculum"
	"github.com/p-n-ai/greenquest/internal/engine"
	"github.com/p-n-ai/greenquest/internal/events"
	"github.com/p-n-ai/greenquest/internal/identity"
	"github.com/p-n-ai/greenquest/internal/platform/cache"
	"github.com/p-n-ai/greenquest/internal/platform/config"
	"github.com/p-n-ai/greenquest/internal/platform/database"
	"github.com/p-n-ai/greenquest/internal/reward"
	"github.com/p-n-ai/greenquest/internal/server"
	"github.com/p-n-ai/greenquest/internal/store"
)

// RewardsFile is the optional reward table inside the curriculum directory.
const RewardsFile = "rewards.yaml"

// App is a fully wired engine.
type App struct {
	Engine *engine.Engine
	Store  store.Store
	Hub    *events.Hub
	DB     *database.DB // nil unless PostgreSQL is configured
	Cache  *cache.Cache // nil unless the cache is enabled
	Board  *cache.LeaderboardCache
}

// NewLogger builds the process logger from the log settings.
func NewLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// LoadContent reads the curriculum, reward table and roster.
func LoadContent(cfg *config.Config) (*curriculum.Graph, reward.Config, *identity.Directory, error) {
	graph, err := curriculum.Load(cfg.CurriculumPath)
	if err != nil {
		return nil, reward.Config{}, nil, err
	}
	rewards, err := reward.LoadConfig(filepath.Join(cfg.CurriculumPath, RewardsFile))
	if err != nil {
		return nil, reward.Config{}, nil, err
	}
	roster, err := identity.LoadRoster(cfg.RosterPath)
	if err != nil {
		return nil, reward.Config{}, nil, err
	}
	return graph, rewards, roster, nil
}

// New connects every configured backend and restores the saved snapshot.
// Callers must Close the result.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	graph, rewards, roster, err := LoadContent(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{Hub: events.NewHub()}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if cfg.NeedsDatabase() {
		a.DB, err = database.Open(ctx, database.Options{
			URL:      cfg.Database.URL,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			return nil, err
		}
		if err := a.DB.Migrate(ctx); err != nil {
			return nil, err
		}
	}

	if cfg.Cache.Enabled {
		a.Cache, err = cache.New(ctx, cfg.Cache.URL, cache.WithNamespace(cfg.Cache.Namespace))
		if err != nil {
			return nil, err
		}
		a.Board = cache.NewLeaderboardCache(a.Cache, cfg.Cache.LeaderboardTTLDuration())
	}

	sinks := []events.Logger{a.Hub}
	if cfg.Events.Postgres {
		sinks = append(sinks, events.NewPostgresLogger(a.DB.Pool))
	}

	switch cfg.Store.Driver {
	case "postgres":
		a.Store, err = store.NewPostgresStore(a.DB.Pool, cfg.Store.Snapshot)
		if err != nil {
			return nil, err
		}
	default:
		a.Store = store.NewMemoryStore()
	}

	a.Engine, err = engine.New(engine.Config{
		Graph:     graph,
		Rewards:   &rewards,
		Directory: roster,
		Events:    events.NewFanout(sinks...),
	})
	if err != nil {
		return nil, err
	}
	if err := store.LoadInto(ctx, a.Store, a.Engine); err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

// ServerConfig returns the HTTP server dependencies for a.
func (a *App) ServerConfig() server.Config {
	cfg := server.Config{
		Engine: a.Engine,
		Store:  a.Store,
		Events: a.Hub,
		Checks: map[string]server.Check{},
	}
	if a.DB != nil {
		cfg.Checks["database"] = a.DB.HealthCheck
	}
	if a.Cache != nil {
		cfg.Cache = a.Board
		cfg.Checks["cache"] = a.Cache.HealthCheck
	}
	return cfg
}

// Save persists the engine's current state and drops cached leaderboards.
func (a *App) Save(ctx context.Context) error {
	if err := a.Store.Save(ctx, a.Engine.Snapshot()); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if a.Board != nil {
		if err := a.Board.Invalidate(ctx); err != nil {
			slog.Warn("failed to invalidate leaderboard cache", "error", err)
		}
	}
	return nil
}

// Close releases backend connections.
func (a *App) Close() {
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			slog.Warn("failed to close cache", "error", err)
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
