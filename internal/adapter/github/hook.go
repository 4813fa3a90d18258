// Package github posts task outcomes to a repository as a best-effort
// post-commit hook. Failures are logged, never surfaced to the request
// that triggered them.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/Strob0t/AgentHub/internal/config"
)

const defaultAPIBase = "https://api.github.com"

// Hook posts a comment-style dispatch event when a task is accepted or
// rejected.
type Hook struct {
	cfg    config.GitHub
	client *http.Client
}

// NewHook creates a Hook from the github config section.
func NewHook(cfg config.GitHub) *Hook {
	return &Hook{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// NotifyTaskOutcome fires the hook asynchronously. The caller's request
// never waits on or fails with it.
func (h *Hook) NotifyTaskOutcome(taskID, assignee, status, reason string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := h.post(ctx, taskID, assignee, status, reason); err != nil {
			slog.Warn("github hook failed", "task_id", taskID, "error", err)
			return
		}
		slog.Debug("github hook delivered", "task_id", taskID, "status", status)
	}()
}

func (h *Hook) post(ctx context.Context, taskID, assignee, status, reason string) error {
	if h.cfg.Repo == "" {
		return fmt.Errorf("github repo not configured")
	}
	base := h.cfg.APIBase
	if base == "" {
		base = defaultAPIBase
	}

	body, err := json.Marshal(map[string]any{
		"event_type": "agenthub_task",
		"client_payload": map[string]string{
			"task_id":  taskID,
			"assignee": assignee,
			"status":   status,
			"reason":   reason,
		},
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/repos/%s/dispatches", base, h.cfg.Repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if h.cfg.TokenEnv != "" {
		if token := os.Getenv(h.cfg.TokenEnv); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("github returned %s", resp.Status)
	}
	return nil
}
