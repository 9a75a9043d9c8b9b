package logging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/EMADHASSAN-123/Al-shifa-association/core/server"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevel_String(t *testing.T) {
	testCases := []struct {
		level    LogLevel
		expected string
	}{
		{Debug, "DEBUG"},
		{Info, "INFO"},
		{Warn, "WARN"},
		{Error, "ERROR"},
		{LogLevel(99), "LEVEL_99"},
		{LogLevel(-10), "LEVEL_-10"},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("LogLevel_%d", tc.level), func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.level.String())
		})
	}
}

func TestShouldExcludeFromLogging(t *testing.T) {
	assert.True(t, shouldExcludeFromLogging("/favicon.ico"))
	assert.True(t, shouldExcludeFromLogging("/api/metrics"))
	assert.False(t, shouldExcludeFromLogging("/api/visitors/track"))
	assert.False(t, shouldExcludeFromLogging("/"))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "202 [Accepted]", StatusString(http.StatusAccepted))
	assert.Equal(t, "599 [Unknown]", StatusString(599))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250µs", FormatDuration(250*time.Microsecond))
	assert.Equal(t, "12.50ms", FormatDuration(12500*time.Microsecond))
	assert.Equal(t, "1.5s", FormatDuration(1500*time.Millisecond))
}

func TestRequestRate(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	snap := server.ServerStatsSnapshot{StartTime: start, TotalRequests: 120}

	assert.InDelta(t, 2.0, RequestRate(snap, start.Add(time.Minute)), 0.0001)
	assert.Zero(t, RequestRate(snap, start))
}

func TestInfoAndErrorWithContext(t *testing.T) {
	testApp, err := tests.NewTestApp()
	require.NoError(t, err)
	defer testApp.Cleanup()

	ctx := context.WithValue(context.Background(), RequestIDKey, "test-request-123")

	assert.NotPanics(t, func() {
		InfoWithContext(ctx, testApp, "visitor stats read", map[string]any{"sections": 4})
		InfoWithContext(context.TODO(), testApp, "visitor stats read", nil)
		ErrorWithContext(ctx, testApp, "visitor stats failed", errors.New("locked"), map[string]any{"section": "today"})
		ErrorWithContext(ctx, testApp, "visitor stats failed", nil, nil)
	})
}

func TestHandleContextErrors(t *testing.T) {
	assert.NoError(t, HandleContextErrors(context.Background(), nil, "op"))

	expired, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()
	err := HandleContextErrors(expired, errors.New("slow"), "visitors_stats")
	var srvErr *server.ServerError
	require.ErrorAs(t, err, &srvErr)
	assert.Equal(t, http.StatusGatewayTimeout, srvErr.StatusCode)
	assert.Equal(t, "visitors_stats", srvErr.Op)

	canceled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	err = HandleContextErrors(canceled, errors.New("gone"), "op")
	require.ErrorAs(t, err, &srvErr)
	assert.Equal(t, http.StatusRequestTimeout, srvErr.StatusCode)

	original := server.NewUnavailableError("visitors_recent", "not ready", nil)
	assert.Same(t, original, HandleContextErrors(context.Background(), original, "op"))

	err = HandleContextErrors(context.Background(), errors.New("boom"), "op")
	assert.True(t, server.IsInternalError(err))
}

func TestMiddleware(t *testing.T) {
	stats := &server.ServerStats{StartTime: time.Now()}

	routes := func(t testing.TB, app *tests.TestApp, e *core.ServeEvent) {
		SetupErrorHandler(app, e)
		e.Router.BindFunc(RequestLogger(app, stats))

		e.Router.GET("/test/ok", func(c *core.RequestEvent) error {
			return c.JSON(http.StatusOK, map[string]string{"trace": c.Request.Header.Get(TraceIDHeader)})
		})
		e.Router.GET("/test/unavailable", func(c *core.RequestEvent) error {
			return server.NewUnavailableError("visitors_recent", "Recent visitors are not available", errors.New("locked"))
		})
		e.Router.GET("/test/plain", func(c *core.RequestEvent) error {
			return errors.New("secret detail")
		})
		e.Router.GET("/test/api", func(c *core.RequestEvent) error {
			return c.BadRequestError("bad input", nil)
		})
		e.Router.GET("/test/panic", func(c *core.RequestEvent) error {
			panic("boom")
		})
	}

	scenarios := []tests.ApiScenario{
		{
			Name:            "trace id is propagated",
			Method:          http.MethodGet,
			URL:             "/test/ok",
			Headers:         map[string]string{TraceIDHeader: "trace-123"},
			ExpectedStatus:  http.StatusOK,
			ExpectedContent: []string{`"trace":"trace-123"`},
			ExpectedEvents:  map[string]int{"*": 0},
			BeforeTestFunc:  routes,
			AfterTestFunc: func(t testing.TB, app *tests.TestApp, res *http.Response) {
				assert.Equal(t, "trace-123", res.Header.Get(TraceIDHeader))
			},
		},
		{
			Name:            "trace id is generated",
			Method:          http.MethodGet,
			URL:             "/test/ok",
			ExpectedStatus:  http.StatusOK,
			ExpectedContent: []string{`"trace":"`},
			ExpectedEvents:  map[string]int{"*": 0},
			BeforeTestFunc:  routes,
			AfterTestFunc: func(t testing.TB, app *tests.TestApp, res *http.Response) {
				assert.Len(t, res.Header.Get(TraceIDHeader), 36)
			},
		},
		{
			Name:           "server errors render their status",
			Method:         http.MethodGet,
			URL:            "/test/unavailable",
			Headers:        map[string]string{TraceIDHeader: "trace-503"},
			ExpectedStatus: http.StatusServiceUnavailable,
			ExpectedContent: []string{
				`"type":"unavailable_error"`,
				`"operation":"visitors_recent"`,
				`"message":"Recent visitors are not available"`,
				`"trace_id":"trace-503"`,
			},
			ExpectedEvents: map[string]int{"*": 0},
			BeforeTestFunc: routes,
		},
		{
			Name:               "plain errors are hidden",
			Method:             http.MethodGet,
			URL:                "/test/plain",
			ExpectedStatus:     http.StatusInternalServerError,
			ExpectedContent:    []string{`"type":"internal_error"`},
			NotExpectedContent: []string{"secret detail"},
			ExpectedEvents:     map[string]int{"*": 0},
			BeforeTestFunc:     routes,
		},
		{
			Name:            "api errors keep their format",
			Method:          http.MethodGet,
			URL:             "/test/api",
			ExpectedStatus:  http.StatusBadRequest,
			ExpectedContent: []string{`"message":"Bad input."`},
			ExpectedEvents:  map[string]int{"*": 0},
			BeforeTestFunc:  routes,
		},
		{
			Name:            "panics are recovered",
			Method:          http.MethodGet,
			URL:             "/test/panic",
			ExpectedStatus:  http.StatusInternalServerError,
			ExpectedContent: []string{`"type":"panic"`},
			ExpectedEvents:  map[string]int{"*": 0},
			BeforeTestFunc:  routes,
		},
	}

	for _, scenario := range scenarios {
		scenario.Test(t)
	}
}
