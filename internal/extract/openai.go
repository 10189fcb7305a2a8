package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// chat request/response structs for an OpenAI-compatible
// /v1/chat/completions endpoint.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const systemPrompt = `You read job-alert emails and return the job postings they contain.

Return a JSON array (and nothing else). One object per distinct posting:
{"title": string, "company": string, "location": string?, "remote": bool?,
 "description": string?, "url": string, "salary": string?, "postedDate": string?,
 "relevance": number between 0 and 1}

Omit a field entirely when the email does not state it. Return [] when the
email contains no job postings.`

// ChatExtractor calls an OpenAI-compatible chat endpoint and coerces the
// loose model output into strict candidates.
type ChatExtractor struct {
	Endpoint string
	Model    string
	APIKey   string
	Source   string // label stamped on every candidate, e.g. "email"
	Timeout  time.Duration

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

func (e *ChatExtractor) Extract(ctx context.Context, in EmailContext) ([]Candidate, error) {
	userPrompt := fmt.Sprintf("Sender: %s\nSubject: %s\n\n%s", in.Sender, in.Subject, in.Body)

	reqBody := chatRequest{
		Model: e.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := e.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call extractor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("extractor HTTP %d", resp.StatusCode)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("decode extractor response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("no choices in extractor response")
	}

	cands := CoerceCandidates(cr.Choices[0].Message.Content)
	for i := range cands {
		if cands[i].Source == "" {
			cands[i].Source = e.Source
		}
	}
	return cands, nil
}

// CoerceCandidates validates loose model output into the strict candidate
// shape. Unknown or mistyped fields become absent values; candidates without
// a usable title+company are dropped with a log line.
func CoerceCandidates(content string) []Candidate {
	content = trimCodeFence(content)

	var items []map[string]any
	if err := json.Unmarshal([]byte(content), &items); err != nil {
		log.Printf("[extract] model output is not a JSON array: %v", err)
		return nil
	}

	out := make([]Candidate, 0, len(items))
	for _, m := range items {
		c := Candidate{
			Title:       asString(m["title"]),
			Company:     asString(m["company"]),
			URL:         strings.TrimSpace(asString(m["url"])),
			Remote:      asBool(m["remote"]),
			Location:    asOptString(m["location"]),
			Description: asOptString(m["description"]),
			Salary:      asOptString(m["salary"]),
			PostedAt:    asOptString(m["postedDate"]),
		}
		if r, ok := asFloat(m["relevance"]); ok {
			if r < 0 {
				r = 0
			}
			if r > 1 {
				r = 1
			}
			c.Relevance = &r
		}
		if c.Title == "" || c.Company == "" {
			log.Printf("[extract] dropped candidate without title/company: %v", m)
			continue
		}
		out = append(out, c)
	}
	return out
}

func trimCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func asString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func asOptString(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}
