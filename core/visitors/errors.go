package visitors

import "errors"

var (
	// ErrBackendUnavailable is returned when the backend did not become ready in time.
	ErrBackendUnavailable = errors.New("visitors backend not available")

	// ErrCanvasUnavailable is returned when the environment has no canvas rendering.
	ErrCanvasUnavailable = errors.New("canvas unavailable")

	// ErrNoAddress is returned when a lookup response carries no usable address.
	ErrNoAddress = errors.New("no address in response")
)
