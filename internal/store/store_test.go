package store_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/p-n-ai/greenquest/internal/engine"
	"github.com/p-n-ai/greenquest/internal/identity"
	"github.com/p-n-ai/greenquest/internal/platform/database"
	"github.com/p-n-ai/greenquest/internal/store"
	"github.com/p-n-ai/greenquest/internal/submission"
	"github.com/p-n-ai/greenquest/internal/testutil"
)

var (
	alice   = identity.Actor{UserID: "alice-001", Role: identity.RoleStudent}
	teacher = identity.Actor{UserID: "teacher-001", Role: identity.RoleTeacher}
)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	clock := testutil.NewClock()
	eng, err := engine.New(engine.Config{Graph: testutil.Graph(t), Now: clock.Now})
	require.NoError(t, err)
	return eng
}

// populate leaves one approved and one pending submission behind.
func populate(t *testing.T, eng *engine.Engine) {
	t.Helper()
	photo := submission.PhotoEvidence{PhotoURLs: []string{"https://img/audit.jpg"}}

	first, err := eng.SubmitQuest(alice, "quest-waste-basics", photo)
	require.NoError(t, err)
	_, err = eng.Approve(teacher, first.ID, 1.0, "nice")
	require.NoError(t, err)
	_, err = eng.SubmitQuest(alice, "quest-waste-basics", photo)
	require.NoError(t, err)
}

func roundTrip(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()

	src := newEngine(t)
	populate(t, src)
	want := src.Snapshot()
	require.NoError(t, st.Save(ctx, want))

	dst := newEngine(t)
	require.NoError(t, store.LoadInto(ctx, st, dst))

	got := dst.Progress(alice.UserID)
	assert.Equal(t, want.Users[alice.UserID].TotalTokens, got.TotalTokens)
	assert.Equal(t, want.Users[alice.UserID].Badges, got.Badges)
	assert.Len(t, dst.PendingSubmissions(), 1)

	subs := dst.UserSubmissions(alice.UserID)
	require.Len(t, subs, 2)
	for _, s := range subs {
		assert.True(t, submission.VerifyIntegrity(s), "submission %s failed integrity check after reload", s.ID)
	}
}

func TestMemoryStore_Empty(t *testing.T) {
	st := store.NewMemoryStore()
	_, err := st.Load(context.Background())
	assert.ErrorIs(t, err, store.ErrNoSnapshot)
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	roundTrip(t, store.NewMemoryStore())
}

func TestMemoryStore_SaveOverwrites(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	eng := newEngine(t)

	require.NoError(t, st.Save(ctx, eng.Snapshot()))
	populate(t, eng)
	require.NoError(t, st.Save(ctx, eng.Snapshot()))

	snap, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Submissions, 2)
}

func TestLoadInto_NothingSaved(t *testing.T) {
	eng := newEngine(t)
	require.NoError(t, store.LoadInto(context.Background(), store.NewMemoryStore(), eng))
	assert.Empty(t, eng.UserIDs())
	assert.Equal(t, engine.DefaultSettings(), eng.Settings())
}

func TestLoadInto_NewerVersion(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.Save(ctx, engine.Snapshot{Version: engine.SnapshotVersion + 1}))

	err := store.LoadInto(ctx, st, newEngine(t))
	assert.Error(t, err)
}

func TestNewPostgresStore_NilPool(t *testing.T) {
	_, err := store.NewPostgresStore(nil, "")
	assert.Error(t, err)
}

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("greenquest"),
		postgres.WithUsername("quest"),
		postgres.WithPassword("quest"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.Open(ctx, database.Options{URL: dsn, MaxConns: 4, MinConns: 1})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.Migrate(ctx))
	// Applying twice must be harmless.
	require.NoError(t, db.Migrate(ctx))

	version, err := db.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, database.LatestVersion(), version)
	return db.Pool
}

func TestPostgresStore(t *testing.T) {
	pool := startPostgres(t)

	t.Run("empty", func(t *testing.T) {
		st, err := store.NewPostgresStore(pool, "empty")
		require.NoError(t, err)
		_, err = st.Load(context.Background())
		assert.ErrorIs(t, err, store.ErrNoSnapshot)
	})

	t.Run("round trip", func(t *testing.T) {
		st, err := store.NewPostgresStore(pool, "")
		require.NoError(t, err)
		roundTrip(t, st)
	})

	t.Run("upsert", func(t *testing.T) {
		ctx := context.Background()
		st, err := store.NewPostgresStore(pool, "upsert")
		require.NoError(t, err)

		eng := newEngine(t)
		require.NoError(t, st.Save(ctx, eng.Snapshot()))
		populate(t, eng)
		require.NoError(t, st.Save(ctx, eng.Snapshot()))

		snap, err := st.Load(ctx)
		require.NoError(t, err)
		assert.Len(t, snap.Submissions, 2)

		var rows int
		require.NoError(t, pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM engine_snapshots WHERE name = $1`, "upsert",
		).Scan(&rows))
		assert.Equal(t, 1, rows)
	})
}
