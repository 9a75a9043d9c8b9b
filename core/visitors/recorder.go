package visitors

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Recording outcomes.
const (
	StatusRecorded       = "recorded"
	StatusAlreadyTracked = "already_tracked"
	StatusUnavailable    = "unavailable"
	StatusFailed         = "failed"
)

// Visit is the page context of one tracking attempt.
type Visit struct {
	Env      Environment
	Referrer string
	PageURL  string
	PagePath string

	// Resolver overrides the recorder's resolver for this visit.
	Resolver Resolver
}

// Result describes what a tracking attempt did.
type Result struct {
	Status      string
	Fingerprint string
	Record      *VisitRecord
	Err         error
}

// Recorder persists at most one VisitRecord per fingerprint and day.
type Recorder struct {
	provider      Provider
	gate          *Gate
	resolver      Resolver
	logger        *slog.Logger
	now           func() time.Time
	readyTimeout  time.Duration
	readyInterval time.Duration
	observe       func(Result, time.Duration)
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithReadyWait sets the backend readiness timeout and poll interval.
func WithReadyWait(timeout, interval time.Duration) RecorderOption {
	return func(r *Recorder) {
		r.readyTimeout = timeout
		r.readyInterval = interval
	}
}

// WithRecorderClock replaces the clock stamping visited_at.
func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		r.now = now
	}
}

// WithResultObserver registers a callback receiving every tracking result.
func WithResultObserver(observe func(Result, time.Duration)) RecorderOption {
	return func(r *Recorder) {
		r.observe = observe
	}
}

// NewRecorder wires the recording pipeline. resolver may be nil when every
// visit carries its own.
func NewRecorder(provider Provider, gate *Gate, resolver Resolver, logger *slog.Logger, opts ...RecorderOption) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if gate == nil {
		gate = NewGate(NewMemoryDayStore(), time.Local)
	}
	r := &Recorder{
		provider:      provider,
		gate:          gate,
		resolver:      resolver,
		logger:        logger,
		now:           time.Now,
		readyTimeout:  DefaultReadyTimeout,
		readyInterval: DefaultReadyInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record runs one tracking attempt: readiness, fingerprint, gate, address
// resolution and insert, strictly in that order.
func (r *Recorder) Record(ctx context.Context, v Visit) Result {
	backend, err := WaitReady(ctx, r.provider, r.readyTimeout, r.readyInterval)
	if err != nil {
		return Result{Status: StatusUnavailable, Err: err}
	}

	fingerprint, fpErr := Fingerprint(v.Env)
	if fpErr != nil {
		r.logger.Warn("Fingerprint unavailable, using random id",
			"error", fpErr,
			"fingerprint", fingerprint,
		)
	}

	tracked, err := r.gate.AlreadyTracked(ctx, fingerprint)
	if err != nil {
		// an unreadable gate counts as not tracked
		r.logger.Warn("Dedup gate failed", "fingerprint", fingerprint, "error", err)
	}
	if tracked {
		return Result{Status: StatusAlreadyTracked, Fingerprint: fingerprint}
	}

	resolver := v.Resolver
	if resolver == nil {
		resolver = r.resolver
	}
	ip := UnknownIP
	if resolver != nil {
		if resolved := resolver.Resolve(ctx); resolved != "" {
			ip = resolved
		}
	}

	record := newVisitRecord(fingerprint, ip, v, r.now())
	if err := backend.Insert(ctx, record); err != nil {
		return Result{
			Status:      StatusFailed,
			Fingerprint: fingerprint,
			Record:      &record,
			Err:         fmt.Errorf("insert visit: %w", err),
		}
	}

	return Result{Status: StatusRecorded, Fingerprint: fingerprint, Record: &record}
}

// Track records a visit and absorbs every failure into a log line. It returns
// the outcome status only.
func (r *Recorder) Track(ctx context.Context, v Visit) (status string) {
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Visitor tracking panicked", "panic", p)
			status = StatusFailed
		}
	}()

	res := r.Record(ctx, v)
	if r.observe != nil {
		r.observe(res, time.Since(start))
	}

	switch res.Status {
	case StatusRecorded:
		r.logger.Debug("Visitor tracked",
			"fingerprint", res.Fingerprint,
			"page_path", v.PagePath,
		)
	case StatusAlreadyTracked:
		r.logger.Debug("Visitor already tracked today", "fingerprint", res.Fingerprint)
	default:
		r.logger.Error("Visitor tracking failed",
			"status", res.Status,
			"fingerprint", res.Fingerprint,
			"error", res.Err,
		)
	}

	return res.Status
}

func newVisitRecord(fingerprint, ip string, v Visit, now time.Time) VisitRecord {
	record := VisitRecord{
		Fingerprint: fingerprint,
		IPAddress:   ip,
		Referrer:    normalizeReferrer(v.Referrer),
		VisitedAt:   now,
		PageURL:     v.PageURL,
		PagePath:    v.PagePath,
	}

	if v.Env != nil {
		width, height := v.Env.ScreenSize()
		record.UserAgent = truncate(v.Env.UserAgentString(), MaxUserAgentLength)
		record.ScreenResolution = ScreenResolution(width, height)
		record.Timezone = v.Env.TimezoneName()
		record.Language = v.Env.LanguageTag()
	}

	return record
}
