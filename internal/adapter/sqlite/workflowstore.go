package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Strob0t/AgentHub/internal/domain"
	"github.com/Strob0t/AgentHub/internal/domain/workflow"
)

// WorkflowStore implements store.WorkflowRuns on workflow.db. Step
// results are stored as a JSON column; runs are read whole.
type WorkflowStore struct {
	db *sql.DB
}

// NewWorkflowStore wraps the workflow database.
func NewWorkflowStore(db *sql.DB) *WorkflowStore {
	return &WorkflowStore{db: db}
}

// Create inserts a new run.
func (s *WorkflowStore) Create(ctx context.Context, r *workflow.Run) error {
	if r.ID == "" {
		r.ID = domain.NewID()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	steps, err := marshalJSON(r.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_runs (id, workflow, account, status, steps, started_at, finished_at, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Workflow, r.Account, r.Status, steps,
		formatTime(r.StartedAt), nullTime(r.FinishedAt), nullString(r.Error))
	if err != nil {
		return fmt.Errorf("create workflow run: %w", err)
	}
	return nil
}

// Update rewrites a run's status, steps, and completion fields.
func (s *WorkflowStore) Update(ctx context.Context, r *workflow.Run) error {
	steps, err := marshalJSON(r.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_runs
		 SET status = ?, steps = ?, finished_at = ?, error = ?
		 WHERE id = ?`,
		r.Status, steps, nullTime(r.FinishedAt), nullString(r.Error), r.ID)
	if err != nil {
		return fmt.Errorf("update workflow run %s: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update workflow run %s: %w", r.ID, domain.ErrNotFound)
	}
	return nil
}

// Get returns one run by id.
func (s *WorkflowStore) Get(ctx context.Context, id string) (*workflow.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workflow, account, status, steps, started_at, finished_at, error
		 FROM workflow_runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("workflow run %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("workflow run %s: %w", id, err)
	}
	return &r, nil
}

// List returns runs, newest first.
func (s *WorkflowStore) List(ctx context.Context, limit int) ([]workflow.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow, account, status, steps, started_at, finished_at, error
		 FROM workflow_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list workflow runs: %w", err)
	}
	defer rows.Close()

	var out []workflow.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRun(row scannable) (workflow.Run, error) {
	var r workflow.Run
	var steps, started string
	var finished, errMsg sql.NullString
	if err := row.Scan(&r.ID, &r.Workflow, &r.Account, &r.Status, &steps, &started, &finished, &errMsg); err != nil {
		return r, err
	}
	_ = json.Unmarshal([]byte(steps), &r.Steps)
	r.StartedAt = parseTime(started)
	if finished.Valid {
		r.FinishedAt = parseTime(finished.String)
	}
	r.Error = fromNull(errMsg)
	return r, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}
