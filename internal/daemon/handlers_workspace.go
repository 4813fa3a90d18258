package daemon

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Strob0t/AgentHub/internal/domain"
	"github.com/Strob0t/AgentHub/internal/protocol"
)

func (d *Dispatcher) registerWorkspace() {
	d.handlers[protocol.TypePrepareWorktree] = d.handlePrepareWorktree
	d.handlers[protocol.TypeGetWorkspaceStatus] = d.handleWorkspaceStatus
	d.handlers[protocol.TypeCleanupWorkspace] = d.handleCleanupWorkspace
}

func (d *Dispatcher) handlePrepareWorktree(ctx context.Context, c *Client, params json.RawMessage) (any, error) {
	if err := d.requireFeature("workspaceWorktree", "Workspace worktree"); err != nil {
		return nil, err
	}
	req, err := decode[struct {
		RepoPath  string `json:"repoPath"`
		Branch    string `json:"branch"`
		HandoffID string `json:"handoffId"`
	}](params)
	if err != nil {
		return nil, err
	}
	if req.RepoPath == "" {
		return nil, fmt.Errorf("%w: Invalid field: repoPath", domain.ErrInvalid)
	}
	if req.Branch == "" {
		return nil, fmt.Errorf("%w: Invalid field: branch", domain.ErrInvalid)
	}

	ws, err := d.state.Worktrees.Prepare(ctx, req.RepoPath, req.Branch, c.Account, req.HandoffID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"workspace": ws}, nil
}

func (d *Dispatcher) handleWorkspaceStatus(ctx context.Context, c *Client, params json.RawMessage) (any, error) {
	req, err := decode[struct {
		WorkspaceID string `json:"workspaceId"`
	}](params)
	if err != nil {
		return nil, err
	}

	if req.WorkspaceID != "" {
		ws, err := d.state.Workspaces.Get(ctx, req.WorkspaceID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"workspace": ws}, nil
	}

	list, err := d.state.Workspaces.ListByAccount(ctx, c.Account)
	if err != nil {
		return nil, err
	}
	return map[string]any{"workspaces": list}, nil
}

func (d *Dispatcher) handleCleanupWorkspace(ctx context.Context, _ *Client, params json.RawMessage) (any, error) {
	if err := d.requireFeature("workspaceWorktree", "Workspace worktree"); err != nil {
		return nil, err
	}
	req, err := decode[struct {
		WorkspaceID string `json:"workspaceId"`
	}](params)
	if err != nil {
		return nil, err
	}
	if req.WorkspaceID == "" {
		return nil, fmt.Errorf("%w: Invalid field: workspaceId", domain.ErrInvalid)
	}
	if err := d.state.Worktrees.Cleanup(ctx, req.WorkspaceID); err != nil {
		return nil, err
	}
	return map[string]any{"cleaned": true}, nil
}
