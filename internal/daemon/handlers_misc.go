package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Strob0t/AgentHub/internal/adapter/ripgrep"
	"github.com/Strob0t/AgentHub/internal/domain"
	"github.com/Strob0t/AgentHub/internal/domain/activity"
	"github.com/Strob0t/AgentHub/internal/domain/retro"
	"github.com/Strob0t/AgentHub/internal/domain/task"
	"github.com/Strob0t/AgentHub/internal/protocol"
)

func (d *Dispatcher) registerMisc() {
	d.handlers[protocol.TypeHealthCheck] = d.handleHealthCheck
	d.handlers[protocol.TypeHealthStatus] = d.handleHealthStatus
	d.handlers[protocol.TypeQueryActivity] = d.handleQueryActivity
	d.handlers[protocol.TypeConfigReload] = d.handleConfigReload
	d.handlers[protocol.TypeSearchCode] = d.handleSearchCode
	d.handlers[protocol.TypeReplaySession] = d.handleReplaySession
	d.handlers[protocol.TypeLinkTask] = d.handleLinkTask
	d.handlers[protocol.TypeGetTaskLinks] = d.handleGetTaskLinks
	d.handlers[protocol.TypeGetReviewBundle] = d.handleGetReviewBundle
	d.handlers[protocol.TypeGenerateReviewBundle] = d.handleGenerateReviewBundle
	d.handlers[protocol.TypeGetAnalytics] = d.handleGetAnalytics
	d.handlers[protocol.TypeCouncilAnalyze] = d.handleCouncilAnalyze
	d.handlers[protocol.TypeCouncilVerify] = d.handleCouncilVerify
	d.handlers[protocol.TypeCouncilHistory] = d.handleCouncilHistory
	d.handlers[protocol.TypeRetroStartSession] = d.handleRetroStart
	d.handlers[protocol.TypeRetroSubmitReview] = d.handleRetroReview
	d.handlers[protocol.TypeRetroSubmitSynthesis] = d.handleRetroSynthesis
	d.handlers[protocol.TypeRetroStatus] = d.handleRetroStatus
	d.handlers[protocol.TypeRetroPastLearnings] = d.handleRetroLearnings
}

func (d *Dispatcher) handleHealthCheck(_ context.Context, _ *Client, _ json.RawMessage) (any, error) {
	return map[string]any{"healthy": true}, nil
}

func (d *Dispatcher) handleHealthStatus(ctx context.Context, _ *Client, _ json.RawMessage) (any, error) {
	boardSize := 0
	if tasks, err := d.state.TaskBoard.List(ctx); err == nil {
		boardSize = len(tasks)
	}
	return map[string]any{
		"healthy":    true,
		"uptimeMs":   time.Since(d.state.StartedAt).Milliseconds(),
		"connected":  d.state.conns.accounts(),
		"tasks":      boardSize,
		"schemaVers": d.state.Holder.Get().SchemaVersion,
	}, nil
}

func (d *Dispatcher) handleQueryActivity(ctx context.Context, _ *Client, params json.RawMessage) (any, error) {
	// The envelope's own "type" is the request type, so the event-kind
	// filter rides under "eventType".
	req, err := decode[struct {
		EventType     string `json:"eventType"`
		Account       string `json:"account"`
		WorkflowRunID string `json:"workflowRunId"`
		SinceMs       int64  `json:"sinceMs"`
		Limit         int    `json:"limit"`
		Search        string `json:"search"`
	}](params)
	if err != nil {
		return nil, err
	}

	var events []activity.Event
	if req.Search != "" {
		events, err = d.state.Activity.Search(ctx, req.Search, req.Limit)
	} else {
		q := activity.Query{
			Type:          req.EventType,
			Account:       req.Account,
			WorkflowRunID: req.WorkflowRunID,
			Limit:         req.Limit,
		}
		if req.SinceMs > 0 {
			q.Since = time.UnixMilli(req.SinceMs).UTC()
		}
		events, err = d.state.Activity.Query(ctx, q)
	}
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []activity.Event{}
	}
	return map[string]any{"events": events}, nil
}

func (d *Dispatcher) handleConfigReload(_ context.Context, _ *Client, _ json.RawMessage) (any, error) {
	if err := d.state.Holder.Reload(); err != nil {
		return nil, err
	}
	cfg := d.state.Holder.Get()
	return map[string]any{
		"reloaded":      true,
		"schemaVersion": cfg.SchemaVersion,
		"accounts":      len(cfg.Accounts),
	}, nil
}

func (d *Dispatcher) handleSearchCode(ctx context.Context, _ *Client, params json.RawMessage) (any, error) {
	req, err := decode[struct {
		Dir     string `json:"dir"`
		Pattern string `json:"pattern"`
		Limit   int    `json:"limit"`
	}](params)
	if err != nil {
		return nil, err
	}
	if req.Pattern == "" {
		return nil, fmt.Errorf("%w: Invalid field: pattern", domain.ErrInvalid)
	}
	if req.Dir == "" {
		return nil, fmt.Errorf("%w: Invalid field: dir", domain.ErrInvalid)
	}
	matches, err := ripgrep.Search(ctx, req.Dir, req.Pattern, req.Limit)
	if err != nil {
		return nil, err
	}
	if matches == nil {
		matches = []ripgrep.Match{}
	}
	return map[string]any{"matches": matches}, nil
}

func (d *Dispatcher) handleReplaySession(ctx context.Context, _ *Client, params json.RawMessage) (any, error) {
	req, err := decode[struct {
		TaskID  string `json:"taskId"`
		Account string `json:"account"`
		SinceMs int64  `json:"sinceMs"`
		Limit   int    `json:"limit"`
	}](params)
	if err != nil {
		return nil, err
	}
	if req.TaskID == "" && req.Account == "" {
		return nil, fmt.Errorf("%w: Invalid field: taskId or account required", domain.ErrInvalid)
	}

	q := activity.Query{Account: req.Account, Limit: req.Limit}
	if req.SinceMs > 0 {
		q.Since = time.UnixMilli(req.SinceMs).UTC()
	}
	events, err := d.state.Activity.Query(ctx, q)
	if err != nil {
		return nil, err
	}

	// Chronological replay: filter by task, oldest first.
	var timeline []activity.Event
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if req.TaskID != "" && ev.TaskID != req.TaskID {
			continue
		}
		timeline = append(timeline, ev)
	}
	if timeline == nil {
		timeline = []activity.Event{}
	}
	return map[string]any{"timeline": timeline}, nil
}

func (d *Dispatcher) handleLinkTask(ctx context.Context, _ *Client, params json.RawMessage) (any, error) {
	req, err := decode[struct {
		FromTask string `json:"fromTask"`
		ToTask   string `json:"toTask"`
		Relation string `json:"relation"`
	}](params)
	if err != nil {
		return nil, err
	}
	if req.FromTask == "" || req.ToTask == "" {
		return nil, fmt.Errorf("%w: Invalid field: fromTask/toTask", domain.ErrInvalid)
	}
	if req.Relation == "" {
		req.Relation = "relates_to"
	}
	if err := d.state.Messages.Link(ctx, &task.Link{FromTask: req.FromTask, ToTask: req.ToTask, Relation: req.Relation}); err != nil {
		return nil, err
	}
	return map[string]any{"linked": true}, nil
}

func (d *Dispatcher) handleGetTaskLinks(ctx context.Context, _ *Client, params json.RawMessage) (any, error) {
	req, err := decode[struct {
		TaskID string `json:"taskId"`
	}](params)
	if err != nil {
		return nil, err
	}
	if req.TaskID == "" {
		return nil, fmt.Errorf("%w: Invalid field: taskId", domain.ErrInvalid)
	}
	links, err := d.state.Messages.Links(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}
	if links == nil {
		links = []task.Link{}
	}
	return map[string]any{"links": links}, nil
}

func (d *Dispatcher) handleGetReviewBundle(_ context.Context, _ *Client, params json.RawMessage) (any, error) {
	if err := d.requireFeature("reviewBundles", "Review bundles"); err != nil {
		return nil, err
	}
	req, err := decode[struct {
		TaskID string `json:"taskId"`
	}](params)
	if err != nil {
		return nil, err
	}
	bundle, err := d.state.Bundler.Get(req.TaskID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"bundle": bundle}, nil
}

func (d *Dispatcher) handleGenerateReviewBundle(ctx context.Context, _ *Client, params json.RawMessage) (any, error) {
	if err := d.requireFeature("reviewBundles", "Review bundles"); err != nil {
		return nil, err
	}
	req, err := decode[struct {
		TaskID string `json:"taskId"`
	}](params)
	if err != nil {
		return nil, err
	}
	if req.TaskID == "" {
		return nil, fmt.Errorf("%w: Invalid field: taskId", domain.ErrInvalid)
	}
	bundle, err := d.state.Bundler.Generate(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"bundle": bundle}, nil
}

func (d *Dispatcher) handleGetAnalytics(ctx context.Context, _ *Client, _ json.RawMessage) (any, error) {
	snapshot, err := d.state.Analytics.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"analytics": snapshot}, nil
}

// --- Council ---

func (d *Dispatcher) handleCouncilAnalyze(ctx context.Context, _ *Client, params json.RawMessage) (any, error) {
	if err := d.requireFeature("council", "Council"); err != nil {
		return nil, err
	}
	req, err := decode[struct {
		Prompt string `json:"prompt"`
	}](params)
	if err != nil {
		return nil, err
	}
	res, err := d.state.Council.Analyze(ctx, req.Prompt)
	if err != nil {
		return nil, err
	}
	return map[string]any{"council": res}, nil
}

func (d *Dispatcher) handleCouncilVerify(ctx context.Context, _ *Client, params json.RawMessage) (any, error) {
	if err := d.requireFeature("council", "Council"); err != nil {
		return nil, err
	}
	req, err := decode[struct {
		TaskID string `json:"taskId"`
	}](params)
	if err != nil {
		return nil, err
	}
	if req.TaskID == "" {
		return nil, fmt.Errorf("%w: Invalid field: taskId", domain.ErrInvalid)
	}
	msg, err := d.state.Messages.GetMessage(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}
	res, err := d.state.Council.Verify(ctx, req.TaskID, msg.Content)
	if err != nil {
		return nil, err
	}
	return map[string]any{"council": res}, nil
}

func (d *Dispatcher) handleCouncilHistory(_ context.Context, _ *Client, params json.RawMessage) (any, error) {
	if err := d.requireFeature("council", "Council"); err != nil {
		return nil, err
	}
	req, err := decode[struct {
		Limit int `json:"limit"`
	}](params)
	if err != nil {
		return nil, err
	}
	return map[string]any{"history": d.state.Council.History(req.Limit)}, nil
}

// --- Retro ---

func (d *Dispatcher) requireRetro() error {
	return d.requireFeature("retro", "Retro")
}

func (d *Dispatcher) handleRetroStart(ctx context.Context, c *Client, params json.RawMessage) (any, error) {
	if err := d.requireRetro(); err != nil {
		return nil, err
	}
	req, err := decode[struct {
		Topic  string `json:"topic"`
		TaskID string `json:"taskId"`
	}](params)
	if err != nil {
		return nil, err
	}
	if req.Topic == "" {
		return nil, fmt.Errorf("%w: Invalid field: topic", domain.ErrInvalid)
	}
	sess := &retro.Session{Topic: req.Topic, TaskID: req.TaskID, StartedBy: c.Account, Status: retro.SessionOpen}
	if err := d.state.RetroStore.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return map[string]any{"session": sess}, nil
}

func (d *Dispatcher) handleRetroReview(ctx context.Context, c *Client, params json.RawMessage) (any, error) {
	if err := d.requireRetro(); err != nil {
		return nil, err
	}
	req, err := decode[struct {
		SessionID string `json:"sessionId"`
		WentWell  string `json:"wentWell"`
		WentWrong string `json:"wentWrong"`
		Learning  string `json:"learning"`
	}](params)
	if err != nil {
		return nil, err
	}
	if req.SessionID == "" {
		return nil, fmt.Errorf("%w: Invalid field: sessionId", domain.ErrInvalid)
	}
	if _, err := d.state.RetroStore.GetSession(ctx, req.SessionID); err != nil {
		return nil, err
	}
	review := &retro.Review{
		SessionID: req.SessionID, Account: c.Account,
		WentWell: req.WentWell, WentWrong: req.WentWrong, Learning: req.Learning,
	}
	if err := d.state.RetroStore.AddReview(ctx, review); err != nil {
		return nil, err
	}
	return map[string]any{"submitted": true}, nil
}

func (d *Dispatcher) handleRetroSynthesis(ctx context.Context, c *Client, params json.RawMessage) (any, error) {
	if err := d.requireRetro(); err != nil {
		return nil, err
	}
	req, err := decode[struct {
		SessionID string   `json:"sessionId"`
		Summary   string   `json:"summary"`
		Learnings []string `json:"learnings"`
	}](params)
	if err != nil {
		return nil, err
	}
	if req.SessionID == "" {
		return nil, fmt.Errorf("%w: Invalid field: sessionId", domain.ErrInvalid)
	}
	if _, err := d.state.RetroStore.GetSession(ctx, req.SessionID); err != nil {
		return nil, err
	}
	syn := &retro.Synthesis{SessionID: req.SessionID, Account: c.Account, Summary: req.Summary, Learnings: req.Learnings}
	if err := d.state.RetroStore.SaveSynthesis(ctx, syn); err != nil {
		return nil, err
	}
	return map[string]any{"synthesized": true}, nil
}

func (d *Dispatcher) handleRetroStatus(ctx context.Context, _ *Client, params json.RawMessage) (any, error) {
	if err := d.requireRetro(); err != nil {
		return nil, err
	}
	req, err := decode[struct {
		SessionID string `json:"sessionId"`
	}](params)
	if err != nil {
		return nil, err
	}
	sess, err := d.state.RetroStore.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	reviews, err := d.state.RetroStore.ListReviews(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	out := map[string]any{"session": sess, "reviews": reviews}
	if syn, err := d.state.RetroStore.GetSynthesis(ctx, req.SessionID); err == nil {
		out["synthesis"] = syn
	}
	return out, nil
}

func (d *Dispatcher) handleRetroLearnings(ctx context.Context, _ *Client, params json.RawMessage) (any, error) {
	if err := d.requireRetro(); err != nil {
		return nil, err
	}
	req, err := decode[struct {
		Limit int `json:"limit"`
	}](params)
	if err != nil {
		return nil, err
	}
	learnings, err := d.state.RetroStore.PastLearnings(ctx, req.Limit)
	if err != nil {
		return nil, err
	}
	if learnings == nil {
		learnings = []string{}
	}
	return map[string]any{"learnings": learnings}, nil
}
