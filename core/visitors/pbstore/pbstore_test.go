package pbstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/EMADHASSAN-123/Al-shifa-association/core/visitors"
	"github.com/pocketbase/pocketbase/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupApp(t *testing.T) *tests.TestApp {
	t.Helper()
	app, err := tests.NewTestApp()
	require.NoError(t, err)
	t.Cleanup(app.Cleanup)

	require.NoError(t, EnsureCollections(app))
	return app
}

func TestEnsureCollectionsIdempotent(t *testing.T) {
	app := setupApp(t)
	require.NoError(t, EnsureCollections(app))

	collection, err := app.FindCollectionByNameOrId(visitors.CollectionName)
	require.NoError(t, err)
	assert.NotNil(t, collection.Fields.GetByName("fingerprint"))
	assert.NotNil(t, collection.Fields.GetByName("visited_at"))
	assert.Nil(t, collection.ListRule)

	_, err = app.FindCollectionByNameOrId(DailyCollectionName)
	require.NoError(t, err)
}

func TestStoreInsertAndQuery(t *testing.T) {
	app := setupApp(t)
	ctx := context.Background()

	store, err := New(app)
	require.NoError(t, err)

	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	for i, fp := range []string{"a", "b", "c"} {
		require.NoError(t, store.Insert(ctx, visitors.VisitRecord{
			Fingerprint:      fp,
			IPAddress:        "203.0.113.5",
			UserAgent:        "Mozilla/5.0",
			Referrer:         visitors.DirectReferrer,
			ScreenResolution: "1920x1080",
			Timezone:         "Asia/Riyadh",
			Language:         "ar",
			VisitedAt:        base.Add(time.Duration(i) * time.Hour),
			PageURL:          "https://alshifa.example/",
			PagePath:         "/",
		}))
	}

	all, err := store.Query(ctx, visitors.Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].Fingerprint)
	assert.True(t, base.Equal(all[0].VisitedAt))
	assert.Equal(t, "1920x1080", all[0].ScreenResolution)

	since, err := store.Query(ctx, visitors.Query{Since: base.Add(time.Hour)})
	require.NoError(t, err)
	assert.Len(t, since, 2)

	newest, err := store.Query(ctx, visitors.Query{Order: visitors.OrderDesc, Limit: 1})
	require.NoError(t, err)
	require.Len(t, newest, 1)
	assert.Equal(t, "c", newest[0].Fingerprint)
}

func TestProvider(t *testing.T) {
	app := setupApp(t)

	backend, err := visitors.WaitReady(context.Background(), Provider(app), 200*time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err)
	assert.IsType(t, &Store{}, backend)
}

func TestProviderWithoutCollection(t *testing.T) {
	app, err := tests.NewTestApp()
	require.NoError(t, err)
	defer app.Cleanup()

	_, err = visitors.WaitReady(context.Background(), Provider(app), 50*time.Millisecond, 10*time.Millisecond)
	assert.ErrorIs(t, err, visitors.ErrBackendUnavailable)
}

func TestRecorderOverStore(t *testing.T) {
	app := setupApp(t)
	ctx := context.Background()

	recorder := visitors.NewRecorder(Provider(app), visitors.NewGate(visitors.NewMemoryDayStore(), time.UTC), nil, app.Logger())
	env := visitors.Signals{Canvas: "data:image/png;base64,AAAA", ScreenWidth: 390, ScreenHeight: 844, UserAgent: "Mozilla/5.0 (iPhone)"}

	assert.Equal(t, visitors.StatusRecorded, recorder.Track(ctx, visitors.Visit{Env: env, PagePath: "/"}))
	assert.Equal(t, visitors.StatusAlreadyTracked, recorder.Track(ctx, visitors.Visit{Env: env, PagePath: "/"}))

	stats := visitors.NewStats(Provider(app), time.UTC, app.Logger())
	o := stats.Overview(ctx)
	assert.Empty(t, o.Degraded)
	assert.Equal(t, 1, o.TotalVisitors)
	assert.Equal(t, 1, o.TodayVisitors)

	recent, err := stats.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, visitors.UnknownIP, recent[0].IPAddress)
}

func TestSnapshotDaily(t *testing.T) {
	app := setupApp(t)

	require.NoError(t, SnapshotDaily(app, "2026-03-09", 4))
	require.NoError(t, SnapshotDaily(app, "2026-03-10", 2))
	require.NoError(t, SnapshotDaily(app, "2026-03-10", 5))

	snapshots, err := Snapshots(app, 0)
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.Equal(t, DailySnapshot{Day: "2026-03-10", UniqueVisitors: 5}, snapshots[0])
	assert.Equal(t, DailySnapshot{Day: "2026-03-09", UniqueVisitors: 4}, snapshots[1])
}

func TestSnapshotDailyLookupFailure(t *testing.T) {
	app := setupApp(t)

	_, err := app.DB().NewQuery("ALTER TABLE visitor_daily RENAME COLUMN day TO day_key").Execute()
	require.NoError(t, err)

	err = SnapshotDaily(app, "2026-03-10", 5)
	require.Error(t, err)
	assert.NotErrorIs(t, err, sql.ErrNoRows)
	assert.Contains(t, err.Error(), "find 2026-03-10 snapshot")
}
