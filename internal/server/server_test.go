package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/greenquest/internal/engine"
	"github.com/p-n-ai/greenquest/internal/identity"
	"github.com/p-n-ai/greenquest/internal/leaderboard"
	"github.com/p-n-ai/greenquest/internal/report"
	"github.com/p-n-ai/greenquest/internal/server"
	"github.com/p-n-ai/greenquest/internal/store"
	"github.com/p-n-ai/greenquest/internal/submission"
	"github.com/p-n-ai/greenquest/internal/testutil"
)

type caller struct {
	id   string
	role string
}

var (
	alice   = caller{id: "alice-001", role: "student"}
	ravi    = caller{id: "ravi-002", role: "student"}
	teacher = caller{id: "teacher-001", role: "teacher"}
	nobody  = caller{}
)

// fakeCache records leaderboard cache traffic in memory.
type fakeCache struct {
	mu          sync.Mutex
	gen         int64
	rows        map[string][]leaderboard.Row
	hits        int
	invalidated int
	beforeSet   func()
}

func newFakeCache() *fakeCache {
	return &fakeCache{rows: map[string][]leaderboard.Row{}}
}

func fakeKey(gen int64, scope string) string {
	return fmt.Sprintf("%d/%s", gen, scope)
}

func (c *fakeCache) Generation(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen, nil
}

func (c *fakeCache) Get(_ context.Context, gen int64, scope string) ([]leaderboard.Row, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, ok := c.rows[fakeKey(gen, scope)]
	if ok {
		c.hits++
	}
	return rows, ok, nil
}

func (c *fakeCache) Set(_ context.Context, gen int64, scope string, rows []leaderboard.Row) error {
	if hook := c.beforeSet; hook != nil {
		c.beforeSet = nil
		hook()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[fakeKey(gen, scope)] = rows
	return nil
}

func (c *fakeCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.invalidated++
	return nil
}

type harness struct {
	handler http.Handler
	store   *store.MemoryStore
	cache   *fakeCache
}

func newHarness(t *testing.T, checks map[string]server.Check) *harness {
	t.Helper()

	dir, err := identity.NewDirectory([]identity.Member{
		{UserID: "alice-001", DisplayName: "Alice Chen", Class: "6a"},
		{UserID: "ravi-002", DisplayName: "Ravi Kumar", Class: "6b"},
		{UserID: "teacher-001", DisplayName: "Ms. Johnson", Role: identity.RoleTeacher},
	})
	require.NoError(t, err)

	eng, err := engine.New(engine.Config{
		Graph:     testutil.Graph(t),
		Directory: dir,
		Now:       testutil.NewClock().Now,
	})
	require.NoError(t, err)

	h := &harness{store: store.NewMemoryStore(), cache: newFakeCache()}
	srv, err := server.New(server.Config{
		Engine: eng,
		Store:  h.store,
		Cache:  h.cache,
		Checks: checks,
	})
	require.NoError(t, err)
	h.handler = srv.Handler()
	return h
}

func (h *harness) do(t *testing.T, as caller, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, r)
	if as.id != "" {
		req.Header.Set(server.HeaderUserID, as.id)
	}
	if as.role != "" {
		req.Header.Set(server.HeaderUserRole, as.role)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (h *harness) submitPhoto(t *testing.T, as caller) submission.Submission {
	t.Helper()
	rec := h.do(t, as, http.MethodPost, "/v1/quests/quest-waste-basics/submissions", map[string]any{
		"data": map[string]any{"photo_urls": []string{"https://img/audit.jpg"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[submission.Submission](t, rec)
}

func TestHealthEndpoints(t *testing.T) {
	h := newHarness(t, nil)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "healthz returns 200",
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
		{
			name:       "readyz returns 200",
			path:       "/readyz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()

			h.handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestReadyz_FailingCheck(t *testing.T) {
	h := newHarness(t, map[string]server.Check{
		"database": func(context.Context) error { return errors.New("connection refused") },
		"cache":    func(context.Context) error { return nil },
	})

	rec := h.do(t, nobody, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
	assert.NotContains(t, rec.Body.String(), `"cache"`)
}

func TestIdentityHeaders(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, nobody, http.MethodGet, "/v1/me/progress", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, caller{id: "alice-001", role: "admin"}, http.MethodGet, "/v1/me/progress", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Role falls back to the roster.
	rec = h.do(t, caller{id: "teacher-001"}, http.MethodGet, "/v1/submissions", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The roster role wins over the header for rostered users.
	rec = h.do(t, caller{id: "alice-001", role: "teacher"}, http.MethodGet, "/v1/submissions", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = h.do(t, caller{id: "teacher-001", role: "student"}, http.MethodGet, "/v1/submissions", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Users outside the roster are taken at the header's word.
	rec = h.do(t, caller{id: "sub-teacher-9", role: "teacher"}, http.MethodGet, "/v1/submissions", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, alice, http.MethodGet, "/v1/me/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"alice-001"`)
}

func TestSubmissionWorkflow(t *testing.T) {
	h := newHarness(t, nil)
	sub := h.submitPhoto(t, alice)
	assert.Equal(t, submission.StatusPending, sub.Status)
	assert.True(t, submission.VerifyIntegrity(sub))

	t.Run("learners cannot decide", func(t *testing.T) {
		rec := h.do(t, ravi, http.MethodPost, "/v1/submissions/"+sub.ID+"/approve",
			map[string]any{"quality_score": 1.0})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("quality is required", func(t *testing.T) {
		rec := h.do(t, teacher, http.MethodPost, "/v1/submissions/"+sub.ID+"/approve",
			map[string]any{"comments": "ok"})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("pending list", func(t *testing.T) {
		rec := h.do(t, teacher, http.MethodGet, "/v1/submissions?status=pending", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[[]submission.Submission](t, rec), 1)

		rec = h.do(t, teacher, http.MethodGet, "/v1/submissions?status=lost", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		rec = h.do(t, alice, http.MethodGet, "/v1/submissions", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	rec := h.do(t, teacher, http.MethodPost, "/v1/submissions/"+sub.ID+"/approve",
		map[string]any{"quality_score": 1.0, "comments": "great audit"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approval := decode[engine.Approval](t, rec)
	assert.Equal(t, submission.StatusApproved, approval.Submission.Status)
	assert.Positive(t, approval.Submission.TokensAwarded)
	assert.Contains(t, approval.BadgesAwarded, "first-quest")
	assert.Equal(t, 1, approval.Streak)

	t.Run("decided once", func(t *testing.T) {
		rec := h.do(t, teacher, http.MethodPost, "/v1/submissions/"+sub.ID+"/reject",
			map[string]any{"comments": "changed my mind"})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("visibility", func(t *testing.T) {
		rec := h.do(t, ravi, http.MethodGet, "/v1/submissions/"+sub.ID, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		rec = h.do(t, alice, http.MethodGet, "/v1/submissions/"+sub.ID, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("wallet", func(t *testing.T) {
		rec := h.do(t, alice, http.MethodGet, "/v1/me/wallet", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		wallet := decode[struct {
			Balance  int                     `json:"balance"`
			Earnings []submission.Submission `json:"earnings"`
		}](t, rec)
		assert.Equal(t, approval.Balance, wallet.Balance)
		require.Len(t, wallet.Earnings, 1)
		assert.Equal(t, sub.ID, wallet.Earnings[0].ID)
	})

	t.Run("persisted", func(t *testing.T) {
		snap, err := h.store.Load(context.Background())
		require.NoError(t, err)
		require.Len(t, snap.Submissions, 1)
		assert.Equal(t, submission.StatusApproved, snap.Submissions[0].Status)
		assert.Equal(t, approval.Balance, snap.Users["alice-001"].TotalTokens)
	})
}

func TestReject(t *testing.T) {
	h := newHarness(t, nil)
	sub := h.submitPhoto(t, alice)

	rec := h.do(t, teacher, http.MethodPost, "/v1/submissions/"+sub.ID+"/reject", map[string]any{"comments": "  "})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = h.do(t, teacher, http.MethodPost, "/v1/submissions/"+sub.ID+"/reject",
		map[string]any{"comments": "photo is blurry"})
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[submission.Submission](t, rec)
	assert.Equal(t, submission.StatusRejected, got.Status)
	assert.Zero(t, got.TokensAwarded)
}

func TestSubmit_Errors(t *testing.T) {
	h := newHarness(t, nil)

	tests := []struct {
		name       string
		path       string
		body       any
		wantStatus int
	}{
		{"unknown quest", "/v1/quests/quest-nope/submissions", map[string]any{"data": map[string]any{}}, http.StatusNotFound},
		{"malformed json", "/v1/quests/quest-waste-basics/submissions", `{"data":`, http.StatusBadRequest},
		{"missing data", "/v1/quests/quest-waste-basics/submissions", map[string]any{}, http.StatusUnprocessableEntity},
		{"no photos", "/v1/quests/quest-waste-basics/submissions", map[string]any{"data": map[string]any{"photo_urls": []string{}}}, http.StatusUnprocessableEntity},
		{"wrong variant", "/v1/quests/quest-waste-basics/submissions", map[string]any{"type": "qr", "data": map[string]any{"code": "X"}}, http.StatusUnprocessableEntity},
		{"short report", "/v1/quests/quest-waste-reduction/submissions", map[string]any{"data": map[string]any{"text": "too short"}}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, alice, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestQuizAndLanes(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, alice, http.MethodPost, "/v1/nodes/waste-reduction/quiz", map[string]any{"answers": []int{0, 3}})
	assert.Equal(t, http.StatusConflict, rec.Code, "locked node")

	rec = h.do(t, alice, http.MethodPost, "/v1/nodes/waste-basics/lesson", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, alice, http.MethodPost, "/v1/nodes/waste-basics/quiz", map[string]any{"answers": []int{1, 1}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[engine.QuizResult](t, rec)
	assert.True(t, res.NewlyMastered)
	assert.Equal(t, "waste-reduction", res.UnlockedNodeID)

	rec = h.do(t, alice, http.MethodPost, "/v1/nodes/waste-reduction/quiz", map[string]any{"score": 0, "max_score": 0})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = h.do(t, alice, http.MethodPost, "/v1/nodes/waste-reduction/quiz", map[string]any{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = h.do(t, alice, http.MethodGet, "/v1/lanes/waste-lane/nodes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var states []struct {
		NodeID    string `json:"node_id"`
		Locked    bool   `json:"locked"`
		Completed bool   `json:"completed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &states))
	require.Len(t, states, 3)
	assert.True(t, states[0].Completed)
	assert.False(t, states[1].Locked)
	assert.True(t, states[2].Locked)

	rec = h.do(t, alice, http.MethodGet, "/v1/lanes/air-lane/nodes", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, alice, http.MethodGet, "/v1/me/available?lane=waste-lane", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "waste-reduction")
	assert.NotContains(t, rec.Body.String(), "waste-community")
}

func TestCourses(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, alice, http.MethodPost, "/v1/courses/advanced-composting/purchase", nil)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	rec = h.do(t, alice, http.MethodPost, "/v1/courses/basket-weaving/purchase", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, alice, http.MethodPost, "/v1/courses/advanced-composting/complete", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAwardBadge(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, alice, http.MethodPost, "/v1/badges/class-helper/award", map[string]any{"user_id": "ravi-002"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, teacher, http.MethodPost, "/v1/badges/class-helper/award", map[string]any{"user_id": "ravi-002"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"awarded":true`)

	rec = h.do(t, teacher, http.MethodPost, "/v1/badges/class-helper/award", map[string]any{"user_id": "ravi-002"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"awarded":false`)

	rec = h.do(t, teacher, http.MethodPost, "/v1/badges/no-such-badge/award", map[string]any{"user_id": "ravi-002"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLeaderboard_Cache(t *testing.T) {
	h := newHarness(t, nil)
	h.submitPhoto(t, alice)

	rec := h.do(t, nobody, http.MethodGet, "/v1/leaderboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, h.cache.hits)

	rec = h.do(t, nobody, http.MethodGet, "/v1/leaderboard?scope=all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, h.cache.hits, "empty and all share one entry")
	rows := decode[[]leaderboard.Row](t, rec)
	require.Len(t, rows, 1)
	assert.Equal(t, "Alice Chen", rows[0].DisplayName)
	assert.Equal(t, 1, rows[0].Position)

	before := h.cache.invalidated
	rec = h.do(t, alice, http.MethodPost, "/v1/nodes/waste-basics/quiz", map[string]any{"answers": []int{1, 1}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, before+1, h.cache.invalidated)

	rec = h.do(t, nobody, http.MethodGet, "/v1/leaderboard", nil)
	rows = decode[[]leaderboard.Row](t, rec)
	require.Len(t, rows, 1)
	assert.Equal(t, 100, rows[0].TotalXP)

	rec = h.do(t, nobody, http.MethodGet, "/v1/leaderboard?scope=class:6b", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]leaderboard.Row](t, rec))

	rec = h.do(t, nobody, http.MethodGet, "/v1/leaderboard?scope=planet:earth", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestLeaderboard_WriteDuringCacheFill(t *testing.T) {
	h := newHarness(t, nil)
	h.submitPhoto(t, alice)

	// The quiz commits after the handler has read the engine but before it
	// stores the rows.
	h.cache.beforeSet = func() {
		rec := h.do(t, alice, http.MethodPost, "/v1/nodes/waste-basics/quiz", map[string]any{"answers": []int{1, 1}})
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := h.do(t, nobody, http.MethodGet, "/v1/leaderboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode[[]leaderboard.Row](t, rec)
	require.Len(t, rows, 1)
	assert.Equal(t, 0, rows[0].TotalXP, "the in-flight response shows what it read")

	rec = h.do(t, nobody, http.MethodGet, "/v1/leaderboard", nil)
	rows = decode[[]leaderboard.Row](t, rec)
	require.Len(t, rows, 1)
	assert.Equal(t, 100, rows[0].TotalXP, "rows from before the write are not served again")
}

func TestSettingsAndReset(t *testing.T) {
	h := newHarness(t, nil)
	h.submitPhoto(t, alice)

	rec := h.do(t, alice, http.MethodPatch, "/v1/settings", map[string]any{"sound_enabled": false})
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[engine.Settings](t, rec)
	assert.False(t, got.SoundEnabled)
	assert.True(t, got.Notifications)

	rec = h.do(t, alice, http.MethodPatch, "/v1/settings", `{"volume": 11}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, alice, http.MethodPost, "/v1/admin/reset", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, teacher, http.MethodPost, "/v1/admin/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, alice, http.MethodGet, "/v1/me/submissions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]submission.Submission](t, rec))

	rec = h.do(t, nobody, http.MethodGet, "/v1/settings", nil)
	assert.False(t, decode[engine.Settings](t, rec).SoundEnabled, "reset keeps settings")
}

func TestExport(t *testing.T) {
	h := newHarness(t, nil)
	h.submitPhoto(t, alice)

	rec := h.do(t, alice, http.MethodGet, "/v1/reports/export.xlsx", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, teacher, http.MethodGet, "/v1/reports/export.xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, report.ContentType, rec.Header().Get("Content-Type"))

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(report.SheetSubmissions)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Alice Chen", rows[1][2])
	assert.Equal(t, "Waste Audit Challenge", rows[1][4])
}

func TestNew_RequiresEngine(t *testing.T) {
	_, err := server.New(server.Config{})
	assert.Error(t, err)
}
