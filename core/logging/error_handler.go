package logging

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/EMADHASSAN-123/Al-shifa-association/core/server"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
)

// ErrorResponse defines standardized error response
type ErrorResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	Type       string `json:"type,omitempty"`
	Operation  string `json:"operation,omitempty"`
	StatusCode int    `json:"status_code"`
	TraceID    string `json:"trace_id"`
}

// SetupErrorHandler renders ServerError values as ErrorResponse JSON.
// PocketBase API errors keep their own format.
func SetupErrorHandler(app core.App, e *core.ServeEvent) {
	e.Router.BindFunc(func(c *core.RequestEvent) error {
		err := c.Next()
		if err == nil {
			return nil
		}

		var apiErr *router.ApiError
		if errors.As(err, &apiErr) {
			return err
		}

		traceID := c.Request.Header.Get(TraceIDHeader)

		statusCode := http.StatusInternalServerError
		errorType := server.ErrTypeInternal
		operation := "unknown"
		message := "Internal server error"

		var srvErr *server.ServerError
		if errors.As(err, &srvErr) {
			errorType = srvErr.Type
			operation = srvErr.Op
			message = srvErr.Message
			if srvErr.StatusCode > 0 {
				statusCode = srvErr.StatusCode
			}
		}

		app.Logger().Error("Request error",
			"trace_id", traceID,
			"error_type", errorType,
			"operation", operation,
			"message", message,
			"error", err,
			"status_code", statusCode,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		)

		return c.JSON(statusCode, ErrorResponse{
			Status:     "error",
			Message:    message,
			Type:       errorType,
			Operation:  operation,
			StatusCode: statusCode,
			TraceID:    traceID,
		})
	})
}

// HandleContextErrors maps err to a ServerError, reporting deadline and
// cancellation of ctx as such.
func HandleContextErrors(ctx context.Context, err error, op string) error {
	if err == nil {
		return nil
	}

	if ctx != nil && ctx.Err() != nil {
		switch ctx.Err() {
		case context.DeadlineExceeded:
			return server.NewHTTPError(op, "operation timed out", http.StatusGatewayTimeout, err)
		case context.Canceled:
			return server.NewHTTPError(op, "operation was canceled", http.StatusRequestTimeout, err)
		}
	}

	var srvErr *server.ServerError
	if errors.As(err, &srvErr) {
		return err
	}

	return server.NewInternalError(op, "unexpected error occurred", err)
}

// RecoverFromPanic recovers from panics and returns a 500 response
func RecoverFromPanic(app core.App, c *core.RequestEvent) {
	if r := recover(); r != nil {
		traceID := c.Request.Header.Get(TraceIDHeader)

		app.Logger().Error("Panic recovered",
			"event", "panic",
			"trace_id", traceID,
			"error", r,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"stack", string(debug.Stack()),
		)

		_ = c.JSON(http.StatusInternalServerError, ErrorResponse{
			Status:     "error",
			Message:    "Internal server error",
			Type:       "panic",
			Operation:  "request_handler",
			StatusCode: http.StatusInternalServerError,
			TraceID:    traceID,
		})
	}
}
