// Package git manages isolated worktrees for handoff tasks via the git
// CLI. A weighted semaphore bounds concurrent git operations so several
// handoffs preparing workspaces at once cannot exhaust the machine.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/Strob0t/AgentHub/internal/domain"
	"github.com/Strob0t/AgentHub/internal/domain/workspace"
	"github.com/Strob0t/AgentHub/internal/port/store"
)

// Pool limits concurrent git CLI operations using a weighted semaphore.
// All git exec calls go through a shared Pool.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool creates a Pool that allows at most limit concurrent git operations.
func NewPool(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(limit))}
}

// Run acquires a slot, runs fn, and releases the slot. A nil pool runs
// fn directly.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	if p == nil || p.sem == nil {
		return fn()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}

// Manager prepares and cleans up worktrees and keeps the workspace
// store in sync.
type Manager struct {
	pool      *Pool
	store     store.Workspaces
	worktrees string // directory new worktrees are created under
}

// NewManager creates a Manager writing worktrees under baseDir/worktrees.
func NewManager(pool *Pool, ws store.Workspaces, baseDir string) *Manager {
	return &Manager{pool: pool, store: ws, worktrees: filepath.Join(baseDir, "worktrees")}
}

// SanitizeBranch rejects branch names that could traverse the
// filesystem: empty names, absolute paths, NUL bytes, and ".." segments.
func SanitizeBranch(branch string) error {
	if branch == "" {
		return fmt.Errorf("branch is required")
	}
	if strings.ContainsRune(branch, 0) {
		return fmt.Errorf("branch contains NUL byte")
	}
	if filepath.IsAbs(branch) {
		return fmt.Errorf("branch must not be an absolute path")
	}
	for _, seg := range strings.Split(branch, "/") {
		if seg == ".." {
			return fmt.Errorf("branch must not contain '..' segments")
		}
	}
	return nil
}

// Prepare creates a worktree for (repoPath, branch) owned by the
// account and records it. The store row moves preparing → ready, or to
// failed when the git operation errors.
func (m *Manager) Prepare(ctx context.Context, repoPath, branch, ownerAccount, handoffID string) (*workspace.Workspace, error) {
	if err := SanitizeBranch(branch); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalid, err)
	}
	if repoPath == "" || strings.ContainsRune(repoPath, 0) {
		return nil, fmt.Errorf("%w: invalid repo path", domain.ErrInvalid)
	}
	absRepo, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve repo path: %s", domain.ErrInvalid, err)
	}
	if info, err := os.Stat(absRepo); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("repo %s does not exist", absRepo)
	}

	ws := &workspace.Workspace{
		ID:           domain.NewID(),
		RepoPath:     absRepo,
		Branch:       branch,
		OwnerAccount: ownerAccount,
		HandoffID:    handoffID,
		Status:       workspace.StatusPreparing,
	}
	ws.WorktreePath = filepath.Join(m.worktrees, ws.ID)

	if err := m.store.Create(ctx, ws); err != nil {
		return nil, err
	}

	err = m.pool.Run(ctx, func() error {
		if err := os.MkdirAll(m.worktrees, 0o755); err != nil {
			return fmt.Errorf("mkdir worktrees: %w", err)
		}
		// Reuse the branch if it exists; create it otherwise.
		if _, err := runGit(ctx, absRepo, "rev-parse", "--verify", "refs/heads/"+branch); err == nil {
			_, err = runGit(ctx, absRepo, "worktree", "add", ws.WorktreePath, branch)
			return err
		}
		_, err := runGit(ctx, absRepo, "worktree", "add", "-b", branch, ws.WorktreePath)
		return err
	})
	if err != nil {
		if serr := m.store.UpdateStatus(ctx, ws.ID, workspace.StatusFailed); serr != nil {
			return nil, fmt.Errorf("worktree add: %v (and mark failed: %w)", err, serr)
		}
		return nil, fmt.Errorf("worktree add: %w", err)
	}

	if err := m.store.UpdateStatus(ctx, ws.ID, workspace.StatusReady); err != nil {
		return nil, err
	}
	ws.Status = workspace.StatusReady
	return ws, nil
}

// Cleanup removes the worktree directory and, when git succeeds,
// deletes the store row.
func (m *Manager) Cleanup(ctx context.Context, id string) error {
	ws, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := m.store.UpdateStatus(ctx, id, workspace.StatusCleaning); err != nil {
		return err
	}

	err = m.pool.Run(ctx, func() error {
		_, err := runGit(ctx, ws.RepoPath, "worktree", "remove", "--force", ws.WorktreePath)
		return err
	})
	if err != nil {
		if serr := m.store.UpdateStatus(ctx, id, workspace.StatusFailed); serr != nil {
			return fmt.Errorf("worktree remove: %v (and mark failed: %w)", err, serr)
		}
		return fmt.Errorf("worktree remove: %w", err)
	}

	return m.store.Delete(ctx, id)
}

// ProjectContext collects branch, recent commits, diff stat, and changed
// files from a project directory, truncated to maxBytes.
func ProjectContext(ctx context.Context, dir string, maxBytes int) string {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return ""
	}
	var b strings.Builder
	if out, err := runGit(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
		b.WriteString("branch: " + strings.TrimSpace(out) + "\n")
	}
	if out, err := runGit(ctx, dir, "log", "--oneline", "-10"); err == nil {
		b.WriteString("recent commits:\n" + out)
	}
	if out, err := runGit(ctx, dir, "status", "--short"); err == nil {
		b.WriteString("changed files:\n" + out)
	}
	if out, err := runGit(ctx, dir, "diff", "--stat"); err == nil {
		b.WriteString("diff:\n" + out)
	}
	s := b.String()
	if len(s) > maxBytes {
		s = s[:maxBytes] + "\n[truncated]"
	}
	return s
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w", strings.TrimSpace(stderr.String()), err)
	}
	return stdout.String(), nil
}
