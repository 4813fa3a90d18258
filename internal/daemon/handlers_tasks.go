package daemon

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Strob0t/AgentHub/internal/domain"
	"github.com/Strob0t/AgentHub/internal/domain/task"
	"github.com/Strob0t/AgentHub/internal/protocol"
	"github.com/Strob0t/AgentHub/internal/service"
)

func (d *Dispatcher) registerTasks() {
	d.handlers[protocol.TypeUpdateTaskStatus] = d.handleUpdateTaskStatus
	d.handlers[protocol.TypeReportProgress] = d.handleReportProgress
	d.handlers[protocol.TypeAdaptiveSLACheck] = d.handleSLACheck
	d.handlers[protocol.TypeGetTrust] = d.handleGetTrust
	d.handlers[protocol.TypeCheckCircuitBreaker] = d.handleCheckBreaker
	d.handlers[protocol.TypeReinstateAgent] = d.handleReinstateAgent
}

func (d *Dispatcher) handleUpdateTaskStatus(ctx context.Context, c *Client, params json.RawMessage) (any, error) {
	req, err := decode[struct {
		TaskID        string `json:"taskId"`
		Status        string `json:"status"`
		Reason        string `json:"reason"`
		WorkspacePath string `json:"workspacePath"`
		Branch        string `json:"branch"`
		WorkspaceID   string `json:"workspaceId"`
	}](params)
	if err != nil {
		return nil, err
	}
	if req.TaskID == "" {
		return nil, fmt.Errorf("%w: Invalid field: taskId", domain.ErrInvalid)
	}
	return d.state.Tasks.UpdateStatus(ctx, c.Account, req.TaskID, task.Status(req.Status),
		req.Reason, req.WorkspacePath, req.Branch, req.WorkspaceID)
}

func (d *Dispatcher) handleReportProgress(ctx context.Context, c *Client, params json.RawMessage) (any, error) {
	req, err := decode[struct {
		TaskID  string `json:"taskId"`
		Percent int    `json:"percent"`
		Note    string `json:"note"`
	}](params)
	if err != nil {
		return nil, err
	}
	if req.TaskID == "" {
		return nil, fmt.Errorf("%w: Invalid field: taskId", domain.ErrInvalid)
	}
	if err := d.state.Tasks.ReportProgress(ctx, c.Account, req.TaskID, req.Percent, req.Note); err != nil {
		return nil, err
	}
	return map[string]any{"recorded": true}, nil
}

func (d *Dispatcher) handleSLACheck(ctx context.Context, _ *Client, _ json.RawMessage) (any, error) {
	if err := d.requireFeature("slaEngine", "SLA engine"); err != nil {
		return nil, err
	}
	actions, err := d.state.SLA.Scan(ctx)
	if err != nil {
		return nil, err
	}
	if actions == nil {
		actions = []service.SLAAction{}
	}
	return map[string]any{"actions": actions}, nil
}

func (d *Dispatcher) handleGetTrust(ctx context.Context, c *Client, params json.RawMessage) (any, error) {
	req, err := decode[struct {
		Account string `json:"account"`
	}](params)
	if err != nil {
		return nil, err
	}
	account := req.Account
	if account == "" {
		account = c.Account
	}
	t, err := d.state.Trust.Get(ctx, account)
	if err != nil {
		return nil, err
	}
	return map[string]any{"trust": t}, nil
}

func (d *Dispatcher) handleCheckBreaker(_ context.Context, _ *Client, params json.RawMessage) (any, error) {
	if err := d.requireFeature("circuitBreaker", "Circuit breaker"); err != nil {
		return nil, err
	}
	req, err := decode[struct {
		Account string `json:"account"`
	}](params)
	if err != nil {
		return nil, err
	}
	if req.Account == "" {
		return nil, fmt.Errorf("%w: Invalid field: account", domain.ErrInvalid)
	}
	state, failures := d.state.Breakers.For(req.Account).Snapshot()
	return map[string]any{
		"account":  req.Account,
		"state":    state,
		"failures": failures,
		"allowed":  d.state.Breakers.For(req.Account).Allow(),
	}, nil
}

func (d *Dispatcher) handleReinstateAgent(_ context.Context, _ *Client, params json.RawMessage) (any, error) {
	if err := d.requireFeature("circuitBreaker", "Circuit breaker"); err != nil {
		return nil, err
	}
	req, err := decode[struct {
		Account string `json:"account"`
	}](params)
	if err != nil {
		return nil, err
	}
	if req.Account == "" {
		return nil, fmt.Errorf("%w: Invalid field: account", domain.ErrInvalid)
	}
	d.state.Breakers.For(req.Account).Reset()
	return map[string]any{"account": req.Account, "reinstated": true}, nil
}
