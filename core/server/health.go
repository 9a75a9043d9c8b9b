package server

import (
	"context"
	"net/http"
	"time"

	"github.com/EMADHASSAN-123/Al-shifa-association/core/monitoring"

	"github.com/pocketbase/pocketbase/core"
)

// Health statuses.
const (
	HealthOK       = "healthy"
	HealthDegraded = "degraded"
)

// HealthResponse represents health check response data
type HealthResponse struct {
	Status        string                  `json:"status"`
	Uptime        string                  `json:"uptime"`
	ServerStats   ServerStatsSnapshot     `json:"server_stats"`
	SystemStats   *monitoring.SystemStats `json:"system_stats,omitempty"`
	Visitors      VisitorsHealth          `json:"visitors"`
	LastCheckTime time.Time               `json:"last_check_time"`
}

// VisitorsHealth reports the visitors backend readiness.
type VisitorsHealth struct {
	Ready     bool   `json:"ready"`
	Backend   string `json:"backend"`
	GateStore string `json:"gate_store"`
	Timezone  string `json:"timezone"`
	Error     string `json:"error,omitempty"`
}

// RegisterHealthRoute registers the health check endpoint
func (s *Server) RegisterHealthRoute(e *core.ServeEvent) {
	e.Router.GET("/api/health", s.handleHealth)
}

func (s *Server) handleHealth(c *core.RequestEvent) error {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:        HealthOK,
		Uptime:        time.Since(s.stats.StartTime).Round(time.Second).String(),
		ServerStats:   s.stats.Snapshot(),
		LastCheckTime: time.Now(),
	}

	sysStats, err := monitoring.CollectSystemStats(ctx, s.stats.StartTime)
	if err != nil {
		c.App.Logger().Debug("Partial system stats", "error", err)
	}
	resp.SystemStats = sysStats

	if s.tracking != nil {
		cfg := s.tracking.cfg
		resp.Visitors = VisitorsHealth{
			Backend:   cfg.Visitors.Backend,
			GateStore: cfg.Visitors.GateStore,
			Timezone:  s.tracking.loc.String(),
			Ready:     true,
		}
		if err := s.tracking.Ready(ctx); err != nil {
			resp.Visitors.Ready = false
			resp.Visitors.Error = err.Error()
		}
	}
	if !resp.Visitors.Ready {
		resp.Status = HealthDegraded
	}

	status := http.StatusOK
	if resp.Status != HealthOK {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, resp)
}
