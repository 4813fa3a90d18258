package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Strob0t/AgentHub/internal/domain"
	"github.com/Strob0t/AgentHub/internal/domain/activity"
)

// ActivityStore implements store.Activity on activity.db with an FTS5
// side table over (type, account, metadata).
type ActivityStore struct {
	db *sql.DB
}

// NewActivityStore wraps the activity database.
func NewActivityStore(db *sql.DB) *ActivityStore {
	return &ActivityStore{db: db}
}

// Emit inserts the event, assigning id and timestamp when missing, and
// returns the stored event.
func (s *ActivityStore) Emit(ctx context.Context, ev *activity.Event) (*activity.Event, error) {
	if ev.ID == "" {
		ev.ID = domain.NewID()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	metaJSON, err := marshalJSON(ev.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal activity metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("emit activity: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO activity (id, type, timestamp, account, task_id, workflow_run_id, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Type, formatTime(ev.Timestamp), ev.Account,
		nullString(ev.TaskID), nullString(ev.WorkflowRunID), metaJSON)
	if err != nil {
		return nil, fmt.Errorf("emit activity: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO activity_fts (id, type, account, metadata) VALUES (?, ?, ?, ?)`,
		ev.ID, ev.Type, ev.Account, metaJSON)
	if err != nil {
		return nil, fmt.Errorf("index activity: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("emit activity: %w", err)
	}
	return ev, nil
}

const activityColumns = `id, type, timestamp, account, task_id, workflow_run_id, metadata`

func scanActivity(row scannable) (activity.Event, error) {
	var ev activity.Event
	var ts string
	var taskID, runID, meta sql.NullString
	if err := row.Scan(&ev.ID, &ev.Type, &ts, &ev.Account, &taskID, &runID, &meta); err != nil {
		return ev, err
	}
	ev.Timestamp = parseTime(ts)
	ev.TaskID = fromNull(taskID)
	ev.WorkflowRunID = fromNull(runID)
	ev.Metadata = unmarshalStringMap(fromNull(meta))
	return ev, nil
}

// Query returns events matching the filters, newest first.
func (s *ActivityStore) Query(ctx context.Context, q activity.Query) ([]activity.Event, error) {
	var conds []string
	var args []any
	if q.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, q.Type)
	}
	if q.Account != "" {
		conds = append(conds, "account = ?")
		args = append(args, q.Account)
	}
	if q.WorkflowRunID != "" {
		conds = append(conds, "workflow_run_id = ?")
		args = append(args, q.WorkflowRunID)
	}
	if !q.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, formatTime(q.Since))
	}

	query := `SELECT ` + activityColumns + ` FROM activity`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY timestamp DESC, rowid DESC`
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	defer rows.Close()
	return collectActivity(rows)
}

// Search matches the full-text index and joins back to the primary
// table, newest first.
func (s *ActivityStore) Search(ctx context.Context, text string, limit int) ([]activity.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+qualify(activityColumns, "a")+`
		 FROM activity_fts f
		 JOIN activity a ON a.id = f.id
		 WHERE activity_fts MATCH ?
		 ORDER BY a.timestamp DESC
		 LIMIT ?`, ftsQuery(text), limit)
	if err != nil {
		return nil, fmt.Errorf("search activity: %w", err)
	}
	defer rows.Close()
	return collectActivity(rows)
}

func collectActivity(rows *sql.Rows) ([]activity.Event, error) {
	var events []activity.Event
	for rows.Next() {
		ev, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// qualify prefixes each column in a comma-joined list with an alias.
func qualify(columns, alias string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}

// ftsQuery quotes user text so FTS5 treats it as terms, not syntax.
func ftsQuery(text string) string {
	terms := strings.Fields(text)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, ``) + `"`
	}
	return strings.Join(terms, " ")
}
