package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramNotify(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := &Telegram{BotToken: "token123", BaseURL: srv.URL, HTTPClient: srv.Client()}
	err := tg.Notify(context.Background(), "4242", JobSummary{
		Title: "SRE", Company: "Acme", Link: "https://acme.com/jobs/1",
	})
	require.NoError(t, err)

	assert.Equal(t, "/bottoken123/sendMessage", gotPath)
	assert.Equal(t, "4242", gotBody["chat_id"])
	assert.Contains(t, gotBody["text"], "SRE at Acme")
}

func TestTelegramNotifyHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	tg := &Telegram{BotToken: "bad", BaseURL: srv.URL, HTTPClient: srv.Client()}
	err := tg.Notify(context.Background(), "4242", JobSummary{Title: "SRE"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
