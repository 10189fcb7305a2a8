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

type StagesHandler struct {
	DB  *sql.DB
	Hub *events.Hub
}

func (h StagesHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "missing_user", "X-User-ID header required")
		return
	}

	stages, err := store.ListStagesForUser(r.Context(), h.DB, userID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if stages == nil {
		stages = []store.Stage{}
	}
	writeData(w, stages)
}

func (h StagesHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "missing_user", "X-User-ID header required")
		return
	}

	var in struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_name", "stage name is required")
		return
	}

	s, err := store.CreateStage(r.Context(), h.DB, userID, in.Name, in.Color)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	writeData(w, s)
}

// Reorder applies all assignments atomically; on failure nothing changed,
// so the client rolls its board back to the last known-good snapshot.
func (h StagesHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "missing_user", "X-User-ID header required")
		return
	}

	var in struct {
		Orders []store.StageOrder `json:"orders"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	if err := store.ReorderStages(r.Context(), h.DB, userID, in.Orders); err != nil {
		if errors.Is(err, store.ErrReorderFailed) {
			writeError(w, r, http.StatusConflict, "reorder_failed", err.Error())
			return
		}
		writeError(w, r, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	stages, err := store.ListStagesForUser(r.Context(), h.DB, userID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	h.Hub.Publish(events.MakeEvent(RequestIDFrom(r.Context()), "stages_reordered", 1, nil))
	writeData(w, stages)
}

func (h StagesHandler) DeleteByPath(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "missing_user", "X-User-ID header required")
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/stages/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, "invalid_id", "invalid stage id")
		return
	}

	err = store.DeleteStage(r.Context(), h.DB, userID, id)
	switch {
	case errors.Is(err, store.ErrStageInUse):
		writeError(w, r, http.StatusConflict, "stage_in_use", "stage is referenced by tracking records")
	case errors.Is(err, store.ErrStageNotVisible):
		writeError(w, r, http.StatusForbidden, "stage_not_visible", "stage is not yours to delete")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "stage not found")
	case err != nil:
		writeError(w, r, http.StatusInternalServerError, "store_error", err.Error())
	default:
		writeData(w, map[string]any{"id": id})
	}
}
