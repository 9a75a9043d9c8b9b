package main

import (
	"log"
	"os"

	"github.com/EMADHASSAN-123/Al-shifa-association/core/config"
	"github.com/EMADHASSAN-123/Al-shifa-association/core/logging"
	"github.com/EMADHASSAN-123/Al-shifa-association/core/server"

	"github.com/pocketbase/pocketbase/core"
)

const defaultConfigPath = "alshifa.toml"

func main() {
	initApp()
}

func initApp() {
	configPath := os.Getenv(config.EnvPrefix + "CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg, created, err := config.LoadOrInit(configPath, ".env")
	if err != nil {
		log.Fatal(err)
	}

	// Create new server instance
	srv := server.New(server.WithSiteConfig(cfg))

	if created {
		srv.App().Logger().Info("Wrote default configuration", "path", configPath)
	}

	// Setup logging and recovery
	logging.SetupLogging(srv)

	srv.App().OnServe().BindFunc(func(e *core.ServeEvent) error {
		logging.SetupRecovery(srv.App(), e)
		return e.Next()
	})

	srv.App().RootCmd.AddCommand(newVisitorsCommand(srv.App(), cfg))

	// Without a subcommand the site is served, on the configured domain if any
	if len(os.Args) <= 1 {
		args := []string{"serve"}
		if cfg.Server.Domain != "" {
			args = append(args, "--domain", cfg.Server.Domain)
		}
		srv.App().RootCmd.SetArgs(args)
	}

	if err := srv.Start(); err != nil {
		snap := srv.Stats().Snapshot()
		srv.App().Logger().Error("Fatal application error",
			"error", err,
			"uptime", snap.StartTime,
			"total_requests", snap.TotalRequests,
			"active_connections", snap.ActiveConnections,
			"last_request_time", snap.LastRequestTime,
		)
		log.Fatal(err)
	}
}
