package logging

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/EMADHASSAN-123/Al-shifa-association/core/server"

	"github.com/google/uuid"
	"github.com/pocketbase/pocketbase/core"
)

// LogLevel represents different log levels
type LogLevel int

const (
	Debug LogLevel = -4 // Debug level
	Info  LogLevel = 0  // Info level
	Warn  LogLevel = 4  // Warning level
	Error LogLevel = 8  // Error level

	TraceIDHeader = "X-Trace-ID"
	RequestIDKey  = "request_id"
)

// String converts log level to string
func (l LogLevel) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL_%d", l)
	}
}

// LogContext holds contextual information for logging
type LogContext struct {
	TraceID    string
	StartTime  time.Time
	Method     string
	Path       string
	StatusCode int
	Duration   time.Duration
	UserAgent  string
	IP         string
}

// shouldExcludeFromLogging returns true if the path should be excluded from logging
func shouldExcludeFromLogging(path string) bool {
	return path == "/service-worker.js" || path == "/favicon.ico" || path == "/manifest.json" ||
		path == "/api/metrics"
}

// InfoWithContext logs an info message with context data using PocketBase's logger
func InfoWithContext(ctx context.Context, app core.App, message string, data map[string]any) {
	logger := app.Logger()

	if ctx != nil {
		if id, ok := ctx.Value(RequestIDKey).(string); ok {
			logger = logger.With("request_id", id)
		}
	}

	for key, value := range data {
		logger = logger.With(key, value)
	}

	logger.Info(message)
}

// ErrorWithContext logs an error message with context data using PocketBase's logger
func ErrorWithContext(ctx context.Context, app core.App, message string, err error, data map[string]any) {
	logger := app.Logger()

	if ctx != nil {
		if id, ok := ctx.Value(RequestIDKey).(string); ok {
			logger = logger.With("request_id", id)
		}
	}

	if err != nil {
		logger = logger.With("error", err.Error())
	}

	for key, value := range data {
		logger = logger.With(key, value)
	}

	logger.Error(message)
}

// SetupLogging configures logging using PocketBase's logger
func SetupLogging(srv *server.Server) {
	app := srv.App()

	appLogger := app.Logger().With(
		"pid", os.Getpid(),
		"start_time", time.Now().Format(time.RFC3339),
	)

	appLogger.Info("Application starting up",
		"event", "app_startup",
		"visitors_backend", srv.Site().Visitors.Backend,
		"gate_store", srv.Site().Visitors.GateStore,
	)

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		snap := srv.Stats().Snapshot()
		appLogger.Info("Application shutting down",
			"event", "app_shutdown",
			"is_restart", e.IsRestart,
			"uptime", time.Since(snap.StartTime).Round(time.Second).String(),
			"total_requests", snap.TotalRequests,
			"total_errors", snap.TotalErrors,
			"avg_request_time", FormatDuration(time.Duration(snap.AverageRequestTime)),
		)
		return e.Next()
	})

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		SetupErrorHandler(app, e)
		e.Router.BindFunc(RequestLogger(app, srv.Stats()))
		return e.Next()
	})
}

// RequestLogger tags every request with a trace id and logs it once handled.
// stats may be nil.
func RequestLogger(app core.App, stats *server.ServerStats) func(*core.RequestEvent) error {
	return func(c *core.RequestEvent) error {
		defer func() {
			RecoverFromPanic(app, c)
		}()

		traceID := c.Request.Header.Get(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
			c.Request.Header.Set(TraceIDHeader, traceID)
		}
		c.Response.Header().Set(TraceIDHeader, traceID)

		start := time.Now()

		err := c.Next()

		logCtx := LogContext{
			TraceID:    traceID,
			StartTime:  start,
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			StatusCode: c.Status(),
			Duration:   time.Since(start),
			UserAgent:  c.Request.UserAgent(),
			IP:         c.RealIP(),
		}
		if logCtx.StatusCode == 0 {
			logCtx.StatusCode = http.StatusOK
		}

		if err != nil || shouldExcludeFromLogging(logCtx.Path) {
			return err
		}

		requestLogger := app.Logger().WithGroup("request").With(
			"trace_id", logCtx.TraceID,
			"method", logCtx.Method,
			"path", logCtx.Path,
			"status", StatusString(logCtx.StatusCode),
			"duration", FormatDuration(logCtx.Duration),
			"ip", logCtx.IP,
			"user_agent", logCtx.UserAgent,
			"content_length", c.Request.ContentLength,
		)
		if stats != nil {
			requestLogger = requestLogger.With("request_rate", RequestRate(stats.Snapshot(), time.Now()))
		}

		requestLogger.Debug("Request processed",
			"event", "http_request",
		)

		return nil
	}
}

// StatusString formats a status code with its reason phrase.
func StatusString(code int) string {
	text := http.StatusText(code)
	if text == "" {
		text = "Unknown"
	}
	return fmt.Sprintf("%d [%s]", code, text)
}

// FormatDuration renders d with a unit suited to its magnitude.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000)
	default:
		return d.Round(time.Millisecond).String()
	}
}

// RequestRate is the average number of requests per second since start.
func RequestRate(snap server.ServerStatsSnapshot, now time.Time) float64 {
	elapsed := now.Sub(snap.StartTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(snap.TotalRequests) / elapsed
}

// SetupRecovery configures panic recovery
func SetupRecovery(app core.App, e *core.ServeEvent) {
	app.Logger().Info("Server recovery starting",
		"event", "recovery_setup",
		"time", time.Now().Format(time.RFC3339),
	)

	e.Router.BindFunc(func(c *core.RequestEvent) error {
		defer func() {
			RecoverFromPanic(app, c)
		}()
		return c.Next()
	})
}
