package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"spoolerd/internal/task"
)

// apiExecutor issues the outbound HTTP request described by a task's
// settings: method, url, headers and body all come from the task itself
// rather than from any fixed endpoint.
type apiExecutor struct {
	client *http.Client
}

func (e *apiExecutor) Execute(ctx context.Context, t task.Task) error {
	if t.Policy == nil || t.Policy.URL == "" {
		return fmt.Errorf("task %s: API kind requires settings.url", t.ID)
	}

	headers := map[string]string{}
	if t.Policy.Headers != "" {
		if err := json.Unmarshal([]byte(t.Policy.Headers), &headers); err != nil {
			return fmt.Errorf("task %s: invalid settings.headers: %w", t.ID, err)
		}
	}

	var body io.Reader
	if t.Payload != "" {
		body = strings.NewReader(t.Payload)
	}

	req, err := http.NewRequestWithContext(ctx, normalizeMethod(t.Policy.Method), t.Policy.URL, body)
	if err != nil {
		return fmt.Errorf("task %s: building request: %w", t.ID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("task %s: request failed: %w", t.ID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("task %s: remote returned status %d", t.ID, resp.StatusCode)
	}
	return nil
}

// normalizeMethod matches the task's method verbatim, case-sensitively:
// only the exact strings GET/POST/PUT/PATCH/DELETE pass through. Anything
// else — including lowercase spellings like "get" — falls back to OPTIONS
// rather than failing admission outright.
func normalizeMethod(m string) string {
	switch m {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return m
	default:
		return http.MethodOptions
	}
}
