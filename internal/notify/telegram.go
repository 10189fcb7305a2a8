// Package notify delivers minimal job summaries to users. Delivery is an
// external collaborator: failures are logged by callers, never fatal.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// JobSummary is the minimal shape sent for a newly inserted job.
type JobSummary struct {
	Title   string
	Company string
	Link    string
}

type Notifier interface {
	// Notify addresses chatID, a per-user opaque handle.
	Notify(ctx context.Context, chatID string, job JobSummary) error
}

// Telegram sends job summaries through the Bot API.
type Telegram struct {
	BotToken   string
	HTTPClient *http.Client
	BaseURL    string // default https://api.telegram.org
}

func (t *Telegram) Notify(ctx context.Context, chatID string, job JobSummary) error {
	base := t.BaseURL
	if base == "" {
		base = "https://api.telegram.org"
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", base, t.BotToken)

	text := fmt.Sprintf("New job: %s at %s\n%s", job.Title, job.Company, job.Link)
	body, err := json.Marshal(map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := t.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("telegram HTTP %d", resp.StatusCode)
	}
	return nil
}
