package httpapi

import (
	"database/sql"
	"sync/atomic"

	"jobdeck/internal/config"
	"jobdeck/internal/events"
	"jobdeck/internal/pipeline"
)

type Deps struct {
	DB *sql.DB

	Hub *events.Hub

	Runner *pipeline.Runner

	// Atomic store for config.Config, shared with the pipeline
	CfgVal *atomic.Value

	// Config persistence
	UserCfgPath string
	LoadCfg     func() (config.Config, error)
}
