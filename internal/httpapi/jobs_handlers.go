package httpapi

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"jobdeck/internal/events"
	"jobdeck/internal/store"
)

type JobsHandler struct {
	DB  *sql.DB
	Hub *events.Hub
}

func (h JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := store.ListJobsOpts{
		Limit:  queryInt(r, "limit", 100),
		Offset: queryInt(r, "offset", 0),
	}

	jobs, page, err := store.ListJobs(r.Context(), h.DB, opts)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if jobs == nil {
		jobs = []store.Job{}
	}
	writeList(w, jobs, page)
}

func (h JobsHandler) GetByPath(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDFromPath(r.URL.Path)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid_id", "invalid job id")
		return
	}

	job, err := store.GetJob(r.Context(), h.DB, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	writeData(w, job)
}

// DeleteByPath removes a job; tracking records cascade.
func (h JobsHandler) DeleteByPath(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDFromPath(r.URL.Path)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid_id", "invalid job id")
		return
	}

	if err := store.DeleteJob(r.Context(), h.DB, id); err != nil {
		writeError(w, r, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	reqID := RequestIDFrom(r.Context())
	h.Hub.Publish(events.MakeEvent(reqID, "job_deleted", 1, map[string]any{"id": id}))
	writeData(w, map[string]any{"id": id})
}

func jobIDFromPath(path string) (int64, bool) {
	idStr := strings.TrimPrefix(path, "/jobs/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	return id, err == nil && id > 0
}
