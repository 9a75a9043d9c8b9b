package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/EMADHASSAN-123/Al-shifa-association/core/visitors"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// Track statuses answered without recording.
const (
	TrackSkipped   = "skipped"
	TrackThrottled = "throttled"
	TrackInvalid   = "invalid"
)

// trackTimeout bounds one tracking request including address lookups.
const trackTimeout = 15 * time.Second

// TrackRequest is the body posted by the public site on page load.
type TrackRequest struct {
	visitors.Signals
	Referrer string `json:"referrer"`
	PageURL  string `json:"page_url"`
	PagePath string `json:"page_path"`
}

// TrackResponse is always returned with 202 Accepted.
type TrackResponse struct {
	Status string `json:"status"`
}

// RecentResponse lists the newest visitors.
type RecentResponse struct {
	Items []visitors.RecentVisitor `json:"items"`
	Limit int                      `json:"limit"`
}

// RegisterRoutes binds the public tracking endpoint and the superuser
// statistics endpoints.
func (t *Tracking) RegisterRoutes(e *core.ServeEvent) {
	e.Router.POST("/api/visitors/track", t.handleTrack)

	g := e.Router.Group("/api/visitors")
	g.Bind(apis.RequireSuperuserAuth())
	g.GET("/stats", t.handleStats)
	g.GET("/recent", t.handleRecent)
}

func (t *Tracking) handleTrack(c *core.RequestEvent) error {
	// RealIP only honours proxy headers listed in the trusted proxy settings.
	ip := c.RealIP()
	if !t.limiter.Allow(ip) {
		t.metrics.ObserveSkip(TrackThrottled)
		return c.JSON(http.StatusAccepted, TrackResponse{Status: TrackThrottled})
	}

	var body TrackRequest
	if err := c.BindBody(&body); err != nil {
		t.logger.Debug("Invalid tracking body", "error", err, "ip", ip)
		t.metrics.ObserveSkip(TrackInvalid)
		return c.JSON(http.StatusAccepted, TrackResponse{Status: TrackInvalid})
	}

	if body.UserAgent == "" {
		body.UserAgent = c.Request.UserAgent()
	}
	if body.PagePath == "" {
		body.PagePath = "/"
	}

	if t.cfg.Visitors.SkipBots && visitors.IsBot(body.UserAgent) {
		t.metrics.ObserveSkip("bot")
		return c.JSON(http.StatusAccepted, TrackResponse{Status: TrackSkipped})
	}
	if !visitors.IsHomePage(body.PagePath) {
		t.metrics.ObserveSkip("page")
		return c.JSON(http.StatusAccepted, TrackResponse{Status: TrackSkipped})
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), trackTimeout)
	defer cancel()

	status := t.recorder.Track(ctx, visitors.Visit{
		Env:      body.Signals,
		Referrer: body.Referrer,
		PageURL:  body.PageURL,
		PagePath: body.PagePath,
		Resolver: visitors.NewRequestResolver(ip, t.lookup),
	})

	return c.JSON(http.StatusAccepted, TrackResponse{Status: status})
}

func (t *Tracking) handleStats(c *core.RequestEvent) error {
	start := time.Now()
	overview := t.stats.Overview(c.Request.Context())
	t.metrics.StatsDuration.Observe(time.Since(start).Seconds())

	return c.JSON(http.StatusOK, overview)
}

func (t *Tracking) handleRecent(c *core.RequestEvent) error {
	limit := t.cfg.Visitors.RecentLimit
	if raw := c.Request.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return NewHTTPError("visitors_recent", "limit must be a number", http.StatusBadRequest, err)
		}
		limit = n
	}
	limit = visitors.ClampRecentLimit(limit)

	items, err := t.stats.Recent(c.Request.Context(), limit)
	if err != nil {
		return NewUnavailableError("visitors_recent", "Recent visitors are not available", err)
	}

	return c.JSON(http.StatusOK, RecentResponse{Items: items, Limit: limit})
}
