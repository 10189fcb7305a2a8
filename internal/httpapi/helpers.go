package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"jobdeck/internal/store"
)

// envelope is the uniform response shape: { success, data?, error? }.
// List endpoints also carry pagination metadata.
type envelope struct {
	Success bool        `json:"success"`
	Data    any         `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
	Meta    *store.Page `json:"meta,omitempty"`
}

type apiError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeList(w http.ResponseWriter, data any, page store.Page) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, Meta: &page})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, envelope{
		Success: false,
		Error:   &apiError{Code: code, Message: message, RequestID: RequestIDFrom(r.Context())},
	})
}

func methodMux(m map[string]http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h, ok := m[r.Method]; ok {
			h(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// userIDFrom reads the caller identity. Session handling is the outer
// layer's job; the engine trusts the header.
func userIDFrom(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
