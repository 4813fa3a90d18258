package daemon

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Strob0t/AgentHub/internal/domain"
	"github.com/Strob0t/AgentHub/internal/domain/workflow"
	"github.com/Strob0t/AgentHub/internal/protocol"
)

func (d *Dispatcher) registerWorkflow() {
	d.handlers[protocol.TypeWorkflowTrigger] = d.handleWorkflowTrigger
	d.handlers[protocol.TypeWorkflowStatus] = d.handleWorkflowStatus
	d.handlers[protocol.TypeWorkflowList] = d.handleWorkflowList
	d.handlers[protocol.TypeWorkflowCancel] = d.handleWorkflowCancel
}

func (d *Dispatcher) requireWorkflow() error {
	return d.requireFeature("workflow", "Workflow")
}

func (d *Dispatcher) handleWorkflowTrigger(ctx context.Context, c *Client, params json.RawMessage) (any, error) {
	if err := d.requireWorkflow(); err != nil {
		return nil, err
	}
	req, err := decode[struct {
		Name string `json:"name"`
	}](params)
	if err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, fmt.Errorf("%w: Invalid field: name", domain.ErrInvalid)
	}
	run, err := d.state.Workflows.Trigger(ctx, c.Account, req.Name)
	if err != nil {
		return nil, err
	}
	return map[string]any{"run": run}, nil
}

func (d *Dispatcher) handleWorkflowStatus(ctx context.Context, _ *Client, params json.RawMessage) (any, error) {
	if err := d.requireWorkflow(); err != nil {
		return nil, err
	}
	req, err := decode[struct {
		RunID string `json:"runId"`
	}](params)
	if err != nil {
		return nil, err
	}
	if req.RunID == "" {
		return nil, fmt.Errorf("%w: Invalid field: runId", domain.ErrInvalid)
	}
	run, err := d.state.Workflows.Status(ctx, req.RunID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"run": run}, nil
}

func (d *Dispatcher) handleWorkflowList(ctx context.Context, _ *Client, params json.RawMessage) (any, error) {
	if err := d.requireWorkflow(); err != nil {
		return nil, err
	}
	req, err := decode[struct {
		Limit int `json:"limit"`
	}](params)
	if err != nil {
		return nil, err
	}

	defs, err := d.state.Workflows.ListDefinitions()
	if err != nil {
		return nil, err
	}
	runs, err := d.state.Workflows.ListRuns(ctx, req.Limit)
	if err != nil {
		return nil, err
	}
	if defs == nil {
		defs = []workflow.Definition{}
	}
	if runs == nil {
		runs = []workflow.Run{}
	}
	return map[string]any{"workflows": defs, "runs": runs}, nil
}

func (d *Dispatcher) handleWorkflowCancel(ctx context.Context, _ *Client, params json.RawMessage) (any, error) {
	if err := d.requireWorkflow(); err != nil {
		return nil, err
	}
	req, err := decode[struct {
		RunID string `json:"runId"`
	}](params)
	if err != nil {
		return nil, err
	}
	if req.RunID == "" {
		return nil, fmt.Errorf("%w: Invalid field: runId", domain.ErrInvalid)
	}
	if err := d.state.Workflows.Cancel(ctx, req.RunID); err != nil {
		return nil, err
	}
	return map[string]any{"cancelled": true}, nil
}
