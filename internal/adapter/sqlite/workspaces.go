package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Strob0t/AgentHub/internal/domain"
	"github.com/Strob0t/AgentHub/internal/domain/workspace"
)

// WorkspaceStore implements store.Workspaces on workspaces.db. A partial
// unique index enforces that no two non-terminal rows share
// (repo_path, branch).
type WorkspaceStore struct {
	db *sql.DB
}

// NewWorkspaceStore wraps the workspaces database.
func NewWorkspaceStore(db *sql.DB) *WorkspaceStore {
	return &WorkspaceStore{db: db}
}

const workspaceColumns = `id, repo_path, branch, worktree_path, owner_account, handoff_id, status`

func scanWorkspace(row scannable) (workspace.Workspace, error) {
	var ws workspace.Workspace
	err := row.Scan(&ws.ID, &ws.RepoPath, &ws.Branch, &ws.WorktreePath,
		&ws.OwnerAccount, &ws.HandoffID, &ws.Status)
	return ws, err
}

// Create inserts a workspace row. A conflicting non-terminal row for the
// same (repoPath, branch) yields domain.ErrConflict.
func (s *WorkspaceStore) Create(ctx context.Context, ws *workspace.Workspace) error {
	if ws.ID == "" {
		ws.ID = domain.NewID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workspaces (`+workspaceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ws.ID, ws.RepoPath, ws.Branch, ws.WorktreePath, ws.OwnerAccount, ws.HandoffID, ws.Status)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("workspace for %s@%s already active: %w", ws.RepoPath, ws.Branch, domain.ErrConflict)
		}
		return fmt.Errorf("create workspace: %w", err)
	}
	return nil
}

// Get returns one workspace by id.
func (s *WorkspaceStore) Get(ctx context.Context, id string) (*workspace.Workspace, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+workspaceColumns+` FROM workspaces WHERE id = ?`, id)
	ws, err := scanWorkspace(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get workspace %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get workspace %s: %w", id, err)
	}
	return &ws, nil
}

// UpdateStatus moves a workspace through its lifecycle.
func (s *WorkspaceStore) UpdateStatus(ctx context.Context, id string, status workspace.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workspaces SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update workspace %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update workspace %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Delete removes a workspace row after a successful cleanup.
func (s *WorkspaceStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workspaces WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete workspace %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete workspace %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// FindActive returns the non-terminal workspace for (repoPath, branch),
// or domain.ErrNotFound.
func (s *WorkspaceStore) FindActive(ctx context.Context, repoPath, branch string) (*workspace.Workspace, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+workspaceColumns+` FROM workspaces
		 WHERE repo_path = ? AND branch = ? AND status != ?`,
		repoPath, branch, workspace.StatusFailed)
	ws, err := scanWorkspace(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("workspace %s@%s: %w", repoPath, branch, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("find workspace: %w", err)
	}
	return &ws, nil
}

// ListByAccount returns the account's workspaces.
func (s *WorkspaceStore) ListByAccount(ctx context.Context, account string) ([]workspace.Workspace, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+workspaceColumns+` FROM workspaces WHERE owner_account = ?`, account)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	var out []workspace.Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
