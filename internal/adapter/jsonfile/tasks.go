package jsonfile

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/Strob0t/AgentHub/internal/domain"
	"github.com/Strob0t/AgentHub/internal/domain/task"
)

// TaskStore keeps the task board in tasks.json. The whole board is
// rewritten on every mutation; a mutex makes each mutation atomic from
// the callers' point of view.
type TaskStore struct {
	mu    sync.Mutex
	path  string
	board map[string]*task.Task
}

// NewTaskStore loads (or initialises) the board under baseDir.
func NewTaskStore(baseDir string) (*TaskStore, error) {
	s := &TaskStore{
		path:  filepath.Join(baseDir, "tasks.json"),
		board: make(map[string]*task.Task),
	}
	if _, err := load(s.path, &s.board); err != nil {
		return nil, fmt.Errorf("load task board: %w", err)
	}
	return s, nil
}

// Get returns a copy of the task.
func (s *TaskStore) Get(_ context.Context, id string) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.board[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	cp := cloneTask(t)
	return &cp, nil
}

// Put persists the task and the whole board.
func (s *TaskStore) Put(_ context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneTask(t)
	prev, existed := s.board[t.ID]
	s.board[t.ID] = &cp
	if err := save(s.path, s.board); err != nil {
		// Roll back the in-memory board so no phantom state survives a
		// failed write.
		if existed {
			s.board[t.ID] = prev
		} else {
			delete(s.board, t.ID)
		}
		return fmt.Errorf("save task board: %w", err)
	}
	return nil
}

// List returns every task.
func (s *TaskStore) List(_ context.Context) ([]task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]task.Task, 0, len(s.board))
	for _, t := range s.board {
		out = append(out, cloneTask(t))
	}
	return out, nil
}

// ListByStatus returns tasks with the given status.
func (s *TaskStore) ListByStatus(_ context.Context, status task.Status) ([]task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []task.Task
	for _, t := range s.board {
		if t.Status == status {
			out = append(out, cloneTask(t))
		}
	}
	return out, nil
}

func cloneTask(t *task.Task) task.Task {
	cp := *t
	cp.Events = append([]task.Event(nil), t.Events...)
	if t.WorkspaceContext != nil {
		wc := *t.WorkspaceContext
		cp.WorkspaceContext = &wc
	}
	return cp
}
