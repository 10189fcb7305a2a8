package httpapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"jobdeck/internal/events"
	"jobdeck/internal/store"
)

// TrackingHandler covers the per-(user, job) kanban records. Single-row
// updates are last-writer-wins; errors come back synchronously so the UI can
// revert its optimistic state.
type TrackingHandler struct {
	DB  *sql.DB
	Hub *events.Hub
}

func (h TrackingHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "missing_user", "X-User-ID header required")
		return
	}

	records, err := store.ListUserJobs(r.Context(), h.DB, userID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if records == nil {
		records = []store.UserJob{}
	}
	writeData(w, records)
}

// Route dispatches /tracking/{jobID} and /tracking/{jobID}/{field}.
func (h TrackingHandler) Route(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "missing_user", "X-User-ID header required")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/tracking/")
	parts := strings.SplitN(rest, "/", 2)
	jobID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || jobID <= 0 {
		writeError(w, r, http.StatusBadRequest, "invalid_id", "invalid job id")
		return
	}
	field := ""
	if len(parts) == 2 {
		field = parts[1]
	}

	switch {
	case field == "" && r.Method == http.MethodPost:
		h.getOrCreate(w, r, userID, jobID)
	case field == "" && r.Method == http.MethodDelete:
		h.delete(w, r, userID, jobID)
	case r.Method == http.MethodPatch:
		h.patch(w, r, userID, jobID, field)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h TrackingHandler) getOrCreate(w http.ResponseWriter, r *http.Request, userID, jobID int64) {
	uj, err := store.GetOrCreateUserJob(r.Context(), h.DB, userID, jobID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "not_found", "job not found")
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	writeData(w, uj)
}

func (h TrackingHandler) delete(w http.ResponseWriter, r *http.Request, userID, jobID int64) {
	err := store.DeleteUserJob(r.Context(), h.DB, userID, jobID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "not_found", "tracking record not found")
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	writeData(w, map[string]any{"jobId": jobID})
}

func (h TrackingHandler) patch(w http.ResponseWriter, r *http.Request, userID, jobID int64, field string) {
	var uj store.UserJob
	var err error

	switch field {
	case "stage":
		var in struct {
			StageID int64 `json:"stageId"`
		}
		if jerr := json.NewDecoder(r.Body).Decode(&in); jerr != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_json", jerr.Error())
			return
		}
		uj, err = store.UpdateUserJobStage(r.Context(), h.DB, userID, jobID, in.StageID)

	case "interested":
		var in struct {
			Interested bool `json:"isInterested"`
		}
		if jerr := json.NewDecoder(r.Body).Decode(&in); jerr != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_json", jerr.Error())
			return
		}
		uj, err = store.UpdateUserJobInterested(r.Context(), h.DB, userID, jobID, in.Interested)

	case "notes":
		var in struct {
			Notes string `json:"notes"`
		}
		if jerr := json.NewDecoder(r.Body).Decode(&in); jerr != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_json", jerr.Error())
			return
		}
		uj, err = store.UpdateUserJobNotes(r.Context(), h.DB, userID, jobID, in.Notes)

	case "dates":
		var in struct {
			AppliedAt   *string `json:"appliedAt"`
			InterviewAt *string `json:"interviewAt"`
		}
		if jerr := json.NewDecoder(r.Body).Decode(&in); jerr != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_json", jerr.Error())
			return
		}
		uj, err = store.UpdateUserJobDates(r.Context(), h.DB, userID, jobID, in.AppliedAt, in.InterviewAt)

	case "meta":
		var in struct {
			ApplicationURL    string `json:"applicationUrl"`
			Contact           string `json:"contact"`
			SalaryExpectation string `json:"salaryExpectation"`
		}
		if jerr := json.NewDecoder(r.Body).Decode(&in); jerr != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_json", jerr.Error())
			return
		}
		uj, err = store.UpdateUserJobMeta(r.Context(), h.DB, userID, jobID, in.ApplicationURL, in.Contact, in.SalaryExpectation)

	default:
		writeError(w, r, http.StatusNotFound, "not_found", "unknown tracking field")
		return
	}

	switch {
	case errors.Is(err, store.ErrStageNotVisible):
		writeError(w, r, http.StatusForbidden, "stage_not_visible", "stage belongs to a different user")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "tracking record not found")
	case err != nil:
		writeError(w, r, http.StatusInternalServerError, "store_error", err.Error())
	default:
		h.Hub.Publish(events.MakeEvent(RequestIDFrom(r.Context()), "tracking_updated", 1,
			map[string]any{"jobId": jobID, "field": field}))
		writeData(w, uj)
	}
}
