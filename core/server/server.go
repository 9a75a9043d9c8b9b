package server

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/EMADHASSAN-123/Al-shifa-association/core/config"
	"github.com/EMADHASSAN-123/Al-shifa-association/core/visitors/pbstore"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server wraps PocketBase with visitor tracking and request stats
type Server struct {
	app      *pocketbase.PocketBase
	stats    *ServerStats
	options  *options
	site     *config.Config
	tracking *Tracking
	jobs     *JobManager
}

// ServerStats tracks server metrics
type ServerStats struct {
	StartTime          time.Time
	TotalRequests      atomic.Uint64
	ActiveConnections  atomic.Int32
	LastRequestTime    atomic.Int64 // Unix timestamp
	TotalErrors        atomic.Uint64
	AverageRequestTime atomic.Int64 // nanoseconds
}

// ServerStatsSnapshot is a point-in-time copy of ServerStats
type ServerStatsSnapshot struct {
	StartTime          time.Time `json:"start_time"`
	TotalRequests      uint64    `json:"total_requests"`
	ActiveConnections  int32     `json:"active_connections"`
	LastRequestTime    int64     `json:"last_request_time"`
	TotalErrors        uint64    `json:"total_errors"`
	AverageRequestTime int64     `json:"average_request_time_ns"`
}

// Snapshot copies the current counters.
func (s *ServerStats) Snapshot() ServerStatsSnapshot {
	return ServerStatsSnapshot{
		StartTime:          s.StartTime,
		TotalRequests:      s.TotalRequests.Load(),
		ActiveConnections:  s.ActiveConnections.Load(),
		LastRequestTime:    s.LastRequestTime.Load(),
		TotalErrors:        s.TotalErrors.Load(),
		AverageRequestTime: s.AverageRequestTime.Load(),
	}
}

// New creates a server instance. Options args used for precision setup - pocketbase.Config and pocketbase.Pocketbase instance injection.
func New(create_options ...Option) *Server {
	var (
		opts    *options = &options{}
		pb_conf *pocketbase.Config
		pb_app  *pocketbase.PocketBase
	)

	for _, opt := range create_options {
		opt(opts)
	}

	site := opts.site
	if site == nil {
		site = config.Default()
	}
	if site.Server.DevMode {
		opts.developer_mode = true
	}

	if opts.config != nil {
		pb_conf = opts.config
	} else {
		pb_conf = &pocketbase.Config{
			DefaultDev: opts.developer_mode,
		}
	}

	if opts.pocketbase != nil {
		pb_app = opts.pocketbase
		if opts.developer_mode && !pb_app.App.IsDev() {
			pb_app.Logger().Warn("cannot change developer mode for pocketbase.Pocketbase, cause you already pass instance of *pocketbase.Pocketbase with unchecked dev mode flag")
		}
	} else {
		pb_app = pocketbase.NewWithConfig(*pb_conf)
	}

	return &Server{
		app:     pb_app,
		options: opts,
		site:    site,
		stats: &ServerStats{
			StartTime: time.Now(),
		},
	}
}

// BindHooks attaches the bootstrap, serve and terminate hooks to app.
// Start calls it with the wrapped PocketBase instance.
func (s *Server) BindHooks(app core.App) {
	app.OnBootstrap().BindFunc(func(e *core.BootstrapEvent) error {
		app.Logger().Info("🌱 Server bootstrapping",
			"time", time.Now(),
			"pid", os.Getpid(),
		)

		if err := e.Next(); err != nil {
			return NewInternalError("bootstrap_initialization", "Failed to initialize core resources", err)
		}

		if err := pbstore.EnsureCollections(e.App); err != nil {
			return NewDatabaseError("bootstrap_collections", "Failed to create visitor collections", err)
		}

		app.Logger().Info("✨ Server bootstrap complete",
			"time", time.Now(),
			"pid", os.Getpid(),
			"db_path", app.DataDir(),
		)

		return nil
	})

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		app.Logger().Info("🚀 Server initialized",
			"start_time", s.stats.StartTime,
			"pid", os.Getpid(),
			"db_path", app.DataDir(),
		)

		e.Router.BindFunc(s.countRequest)

		tracking, err := NewTracking(context.Background(), e.App, s.site)
		if err != nil {
			return err
		}
		s.tracking = tracking
		tracking.RegisterRoutes(e)

		s.jobs = NewJobManager(e.App)
		if err := RegisterVisitorJobs(e.App, s.jobs, tracking); err != nil {
			app.Logger().Error("Failed to register visitor jobs", "error", err)
		}
		s.jobs.RegisterRoutes(e)

		s.RegisterHealthRoute(e)

		if s.site.Server.EnableMetrics {
			e.Router.GET("/api/metrics", apis.WrapStdHandler(promhttp.Handler()))
		}

		publicDirPath := resolvePublicDir(s.site.Server.PublicDir)
		app.Logger().Info("Serving static files from", "path", publicDirPath)
		e.Router.GET("/{path...}", apis.Static(os.DirFS(publicDirPath), false))

		return e.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		if s.tracking != nil {
			if err := s.tracking.Close(); err != nil {
				app.Logger().Warn("Failed to close visitor tracking", "error", err)
			}
		}
		return e.Next()
	})
}

func (s *Server) countRequest(c *core.RequestEvent) error {
	start := time.Now()
	s.stats.ActiveConnections.Add(1)
	s.stats.TotalRequests.Add(1)

	err := c.Next()

	s.stats.ActiveConnections.Add(-1)
	s.stats.LastRequestTime.Store(time.Now().Unix())

	duration := time.Since(start).Nanoseconds()
	oldAvg := s.stats.AverageRequestTime.Load()
	totalReqs := s.stats.TotalRequests.Load()
	if totalReqs > 1 {
		newAvg := (oldAvg*(int64(totalReqs)-1) + duration) / int64(totalReqs)
		s.stats.AverageRequestTime.Store(newAvg)
	} else {
		s.stats.AverageRequestTime.Store(duration)
	}

	if err != nil {
		s.stats.TotalErrors.Add(1)
	}

	return err
}

// resolvePublicDir falls back to directories next to the executable when
// dir does not exist relative to the working directory.
func resolvePublicDir(dir string) string {
	if dir == "" {
		dir = "pb_public"
	}
	if _, err := os.Stat(dir); err == nil || filepath.IsAbs(dir) {
		return dir
	}

	exePath, err := os.Executable()
	if err != nil {
		return dir
	}
	exeDir := filepath.Dir(exePath)
	for _, path := range []string{
		filepath.Join(exeDir, dir),
		filepath.Join(exeDir, "..", dir),
		filepath.Join(exeDir, "..", "..", dir),
	} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return dir
}

// Start initializes and starts the server
func (s *Server) Start() error {
	s.BindHooks(s.app)

	s.app.Logger().Debug("Starting server with args", "args", s.app.RootCmd.Flags().Args())

	if err := s.app.Start(); err != nil {
		return NewInternalError("server_start", "Failed to start server", err)
	}
	return nil
}

// App returns the underlying PocketBase instance
func (s *Server) App() *pocketbase.PocketBase {
	return s.app
}

// Stats returns the current server statistics
func (s *Server) Stats() *ServerStats {
	return s.stats
}

// Site returns the site configuration
func (s *Server) Site() *config.Config {
	return s.site
}

// Tracking returns the visitor tracking stack once the server is serving.
func (s *Server) Tracking() *Tracking {
	return s.tracking
}

// Jobs returns the job manager once the server is serving.
func (s *Server) Jobs() *JobManager {
	return s.jobs
}
