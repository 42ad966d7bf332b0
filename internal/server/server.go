// Package server exposes the quest engine over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/p-n-ai/greenquest/internal/engine"
	"github.com/p-n-ai/greenquest/internal/leaderboard"
	"github.com/p-n-ai/greenquest/internal/store"
)

const persistTimeout = 5 * time.Second

// LeaderboardCache holds ranked rows per scope between mutations.
type LeaderboardCache interface {
	Generation(ctx context.Context) (int64, error)
	Get(ctx context.Context, gen int64, scope string) ([]leaderboard.Row, bool, error)
	Set(ctx context.Context, gen int64, scope string, rows []leaderboard.Row) error
	Invalidate(ctx context.Context) error
}

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

// Config holds dependencies for the HTTP server.
type Config struct {
	Engine *engine.Engine // required
	Store  store.Store    // nil keeps state in memory only
	Cache  LeaderboardCache
	Events http.Handler // live event stream, nil disables /v1/events
	Checks map[string]Check
}

// Server routes HTTP requests to the engine and persists after mutations.
type Server struct {
	eng    *engine.Engine
	store  store.Store
	cache  LeaderboardCache
	events http.Handler
	checks map[string]Check

	// persistMu orders snapshot writes so the last save is the newest state.
	persistMu sync.Mutex
}

// New creates a server.
func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("server: engine is required")
	}
	return &Server{
		eng:    cfg.Engine,
		store:  cfg.Store,
		cache:  cfg.Cache,
		events: cfg.Events,
		checks: cfg.Checks,
	}, nil
}

// Handler returns the HTTP router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("GET /v1/me/progress", s.handleMyProgress)
	mux.HandleFunc("GET /v1/me/available", s.handleAvailable)
	mux.HandleFunc("GET /v1/me/submissions", s.handleMySubmissions)
	mux.HandleFunc("GET /v1/me/wallet", s.handleWallet)
	mux.HandleFunc("GET /v1/lanes/{laneID}/nodes", s.handleLaneNodes)
	mux.HandleFunc("POST /v1/nodes/{nodeID}/lesson", s.handleLesson)
	mux.HandleFunc("POST /v1/nodes/{nodeID}/quiz", s.handleQuiz)

	mux.HandleFunc("POST /v1/quests/{questID}/submissions", s.handleSubmit)
	mux.HandleFunc("GET /v1/submissions", s.handleListSubmissions)
	mux.HandleFunc("GET /v1/submissions/{id}", s.handleGetSubmission)
	mux.HandleFunc("POST /v1/submissions/{id}/approve", s.handleApprove)
	mux.HandleFunc("POST /v1/submissions/{id}/reject", s.handleReject)

	mux.HandleFunc("POST /v1/badges/{badgeID}/award", s.handleAwardBadge)
	mux.HandleFunc("POST /v1/courses/{courseID}/purchase", s.handlePurchase)
	mux.HandleFunc("POST /v1/courses/{courseID}/complete", s.handleCompleteCourse)

	mux.HandleFunc("GET /v1/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("GET /v1/settings", s.handleGetSettings)
	mux.HandleFunc("PATCH /v1/settings", s.handlePatchSettings)
	mux.HandleFunc("POST /v1/admin/reset", s.handleReset)
	mux.HandleFunc("GET /v1/reports/export.xlsx", s.handleExport)

	if s.events != nil {
		mux.Handle("GET /v1/events", s.events)
	}
	return mux
}

// committed runs after every successful mutation. Failures are logged: the
// engine state has already changed and the next mutation saves it again.
func (s *Server) committed(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if s.store != nil {
		s.persistMu.Lock()
		err := s.store.Save(ctx, s.eng.Snapshot())
		s.persistMu.Unlock()
		if err != nil {
			slog.Error("failed to persist snapshot", "error", err)
		}
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			slog.Warn("failed to invalidate leaderboard cache", "error", err)
		}
	}
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := map[string]string{}
	for _, name := range names {
		if err := s.checks[name](r.Context()); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		slog.Warn("readiness check failed", "failed", failed)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}
