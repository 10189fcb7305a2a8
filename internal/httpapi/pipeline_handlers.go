package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"jobdeck/internal/pipeline"
)

type PipelineHandler struct {
	Runner *pipeline.Runner
}

func (h PipelineHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeData(w, h.Runner.Status())
}

// Run is the manual trigger. It shares the single-flight lock with the
// scheduled trigger, so a concurrent run makes this a logged no-op. The run
// executes synchronously so the caller gets real counts back.
func (h PipelineHandler) Run(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	stats, err := h.Runner.RunOnce(ctx)
	if errors.Is(err, pipeline.ErrAlreadyRunning) {
		writeError(w, r, http.StatusConflict, "already_running", "a pipeline run is already in progress")
		return
	}
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "run_failed", err.Error())
		return
	}
	writeData(w, stats)
}
