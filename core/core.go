// Package core re-exports the entry points used by cmd/server.
package core

import (
	"github.com/EMADHASSAN-123/Al-shifa-association/core/config"
	"github.com/EMADHASSAN-123/Al-shifa-association/core/logging"
	"github.com/EMADHASSAN-123/Al-shifa-association/core/server"
)

// Re-export server components
var (
	New            = server.New
	WithSiteConfig = server.WithSiteConfig
	WithMode       = server.WithMode
)

// Re-export logging components
var (
	SetupLogging  = logging.SetupLogging
	SetupRecovery = logging.SetupRecovery
)

// Re-export configuration
var LoadConfig = config.LoadOrInit
