package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/EMADHASSAN-123/Al-shifa-association/core/visitors"
	"github.com/EMADHASSAN-123/Al-shifa-association/core/visitors/pbstore"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJobApp(t *testing.T) *tests.TestApp {
	t.Helper()
	app, err := tests.NewTestApp()
	require.NoError(t, err)
	t.Cleanup(app.Cleanup)
	require.NoError(t, pbstore.EnsureCollections(app))
	return app
}

func TestJobManagerExecutesRegisteredJob(t *testing.T) {
	app := newJobApp(t)
	jm := NewJobManager(app)

	runs := 0
	require.NoError(t, jm.RegisterJob("cleanup", "Cleanup", "test job", "0 3 * * *", func(log *JobExecutionLogger) error {
		runs++
		log.Info("cleaned %d rows", 3)
		return nil
	}))

	result, err := jm.ExecuteJobManually("cleanup", "tester")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "manual", result.TriggerType)
	assert.Equal(t, "tester", result.TriggerBy)
	assert.Contains(t, result.Output, "Starting job: Cleanup")
	assert.Contains(t, result.Output, "cleaned 3 rows")
	assert.Equal(t, 1, runs)

	jobs := jm.GetJobs(false)
	require.Len(t, jobs, 1)
	assert.Equal(t, "cleanup", jobs[0].ID)
	assert.Equal(t, "0 3 * * *", jobs[0].Expression)
	require.NotNil(t, jobs[0].LastRun)
	assert.True(t, jobs[0].LastRun.Success)
}

func TestJobManagerFailureAndPanic(t *testing.T) {
	app := newJobApp(t)
	jm := NewJobManager(app)

	require.NoError(t, jm.RegisterJob("failing", "", "", "@daily", func(*JobExecutionLogger) error {
		return errors.New("disk full")
	}))
	require.NoError(t, jm.RegisterJob("panicking", "", "", "@daily", func(*JobExecutionLogger) error {
		panic("boom")
	}))

	result, err := jm.ExecuteJobManually("failing", "")
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "disk full", result.Error)
	assert.Contains(t, result.Output, "[ERROR] [failing]")

	result, err = jm.ExecuteJobManually("panicking", "")
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "boom")

	_, err = jm.ExecuteJobManually("missing", "")
	var srvErr *ServerError
	require.ErrorAs(t, err, &srvErr)
	assert.Equal(t, http.StatusNotFound, srvErr.StatusCode)
}

func TestJobManagerRejectsBadExpression(t *testing.T) {
	app := newJobApp(t)
	jm := NewJobManager(app)

	err := jm.RegisterJob("broken", "", "", "not a cron", func(*JobExecutionLogger) error { return nil })
	require.Error(t, err)
	assert.Empty(t, jm.GetJobs(false))
}

func TestJobManagerListsSystemJobs(t *testing.T) {
	app := newJobApp(t)
	jm := NewJobManager(app)

	for _, job := range jm.GetJobs(true) {
		assert.True(t, job.IsSystemJob, job.ID)
	}
	assert.Empty(t, jm.GetJobs(false))
}

func TestJobExecutionLogger(t *testing.T) {
	log := NewJobExecutionLogger("snapshot")
	log.Start("Snapshot")
	log.Warn("slow query %s", "visitors")
	log.Complete("done")

	out := log.GetOutput()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "[INFO] [snapshot] Starting job: Snapshot")
	assert.Contains(t, lines[1], "[WARN] [snapshot] slow query visitors")
	assert.Contains(t, lines[2], "Job completed in")
}

func TestDailySnapshotJob(t *testing.T) {
	app := newJobApp(t)
	tr := newTestTracking(t, app, testSiteConfig())
	jm := NewJobManager(app)
	require.NoError(t, RegisterVisitorJobs(app, jm, tr))

	store, err := pbstore.New(app)
	require.NoError(t, err)

	yesterday := visitors.StartOfDay(time.Now(), time.UTC).Add(-12 * time.Hour)
	for _, fp := range []string{"fp-a", "fp-b", "fp-a"} {
		require.NoError(t, store.Insert(context.Background(), visitors.VisitRecord{
			Fingerprint: fp,
			IPAddress:   "203.0.113.5",
			Referrer:    visitors.DirectReferrer,
			VisitedAt:   yesterday,
			PagePath:    "/",
		}))
	}
	require.NoError(t, store.Insert(context.Background(), visitors.VisitRecord{
		Fingerprint: "fp-today",
		VisitedAt:   time.Now(),
		PagePath:    "/",
	}))

	result, err := jm.ExecuteJobManually(JobDailySnapshot, "")
	require.NoError(t, err)
	assert.Contains(t, result.Output, "2 unique visitors")

	snapshots, err := pbstore.Snapshots(app, 1)
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, visitors.DayKey(yesterday, time.UTC), snapshots[0].Day)
	assert.Equal(t, 2, snapshots[0].UniqueVisitors)
}

func TestGatePruneJob(t *testing.T) {
	app := newJobApp(t)
	tr := newTestTracking(t, app, testSiteConfig())
	jm := NewJobManager(app)
	require.NoError(t, RegisterVisitorJobs(app, jm, tr))

	ctx := context.Background()
	store := tr.Gate().Store()
	require.NoError(t, store.Set(ctx, visitors.GateKeyPrefix+"old", "2020-01-01"))
	require.NoError(t, store.Set(ctx, visitors.GateKeyPrefix+"current", tr.Gate().Today()))

	result, err := jm.ExecuteJobManually(JobGatePrune, "")
	require.NoError(t, err)
	assert.Contains(t, result.Output, "removed 1 markers")

	_, found, err := store.Get(ctx, visitors.GateKeyPrefix+"current")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestJobRoutes(t *testing.T) {
	scenarios := []struct {
		name    string
		method  string
		url     string
		auth    bool
		status  int
		content []string
	}{
		{name: "list requires a superuser", method: http.MethodGet, url: "/api/cron/jobs", status: http.StatusUnauthorized},
		{
			name:    "list visitor jobs",
			method:  http.MethodGet,
			url:     "/api/cron/jobs",
			auth:    true,
			status:  http.StatusOK,
			content: []string{`"id":"visitors_daily_snapshot"`, `"id":"visitors_gate_prune"`},
		},
		{
			name:    "run gate pruning",
			method:  http.MethodPost,
			url:     "/api/cron/jobs/visitors_gate_prune/run",
			auth:    true,
			status:  http.StatusOK,
			content: []string{`"success":true`, `"trigger_type":"manual"`},
		},
		{
			name:    "run unknown job",
			method:  http.MethodPost,
			url:     "/api/cron/jobs/nope/run",
			auth:    true,
			status:  http.StatusNotFound,
			content: []string{`"type":"job_error"`},
		},
	}

	for _, s := range scenarios {
		app, token := newRouteApp(t)
		headers := map[string]string{}
		if s.auth {
			headers["Authorization"] = token
		}

		(&tests.ApiScenario{
			Name:            s.name,
			Method:          s.method,
			URL:             s.url,
			Headers:         headers,
			ExpectedStatus:  s.status,
			ExpectedContent: s.content,
			ExpectedEvents:  map[string]int{"*": 0},
			TestAppFactory:  func(testing.TB) *tests.TestApp { return app },
			BeforeTestFunc: func(t testing.TB, app *tests.TestApp, e *core.ServeEvent) {
				tr := newTestTracking(t, app, testSiteConfig())
				jm := NewJobManager(app)
				require.NoError(t, RegisterVisitorJobs(app, jm, tr))
				e.Router.BindFunc(renderServerErrors)
				jm.RegisterRoutes(e)
			},
		}).Test(t)
	}
}
