package httpapi

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"jobdeck/internal/store"
)

type UsersHandler struct {
	DB *sql.DB
}

func (h UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := store.ListUsers(r.Context(), h.DB)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if users == nil {
		users = []store.User{}
	}
	writeData(w, users)
}

func (h UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email          string `json:"email"`
		TelegramChatID string `json:"telegramChatId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	in.Email = strings.TrimSpace(in.Email)
	if in.Email == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_email", "email is required")
		return
	}

	u, err := store.CreateUser(r.Context(), h.DB, in.Email, strings.TrimSpace(in.TelegramChatID))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	writeData(w, u)
}

// DeleteByPath removes a user with their tracking rows and custom stages.
func (h UsersHandler) DeleteByPath(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/users/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, "invalid_id", "invalid user id")
		return
	}

	if err := store.DeleteUser(r.Context(), h.DB, id); err != nil {
		writeError(w, r, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	writeData(w, map[string]any{"id": id})
}
