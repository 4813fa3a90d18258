package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Strob0t/AgentHub/internal/domain/receipt"
)

// ReceiptStore implements store.Receipts on receipts.db. Rows are
// insert-only; receipts are never updated or deleted.
type ReceiptStore struct {
	db *sql.DB
}

// NewReceiptStore wraps the receipts database.
func NewReceiptStore(db *sql.DB) *ReceiptStore {
	return &ReceiptStore{db: db}
}

// Add appends a receipt.
func (s *ReceiptStore) Add(ctx context.Context, r *receipt.Receipt) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO receipts (task_id, delegator, delegatee, spec_payload, verdict, method, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.TaskID, r.Delegator, r.Delegatee, r.SpecPayload, r.Verdict, r.Method, formatTime(r.Timestamp))
	if err != nil {
		return fmt.Errorf("add receipt: %w", err)
	}
	return nil
}

// ListByTask returns the task's receipts in emission order.
func (s *ReceiptStore) ListByTask(ctx context.Context, taskID string) ([]receipt.Receipt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, delegator, delegatee, spec_payload, verdict, method, timestamp
		 FROM receipts WHERE task_id = ? ORDER BY timestamp ASC, rowid ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	defer rows.Close()
	return collectReceipts(rows)
}

// ListByAccount returns receipts where the account was the delegatee,
// newest first.
func (s *ReceiptStore) ListByAccount(ctx context.Context, account string, limit int) ([]receipt.Receipt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, delegator, delegatee, spec_payload, verdict, method, timestamp
		 FROM receipts WHERE delegatee = ? ORDER BY timestamp DESC LIMIT ?`, account, limit)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	defer rows.Close()
	return collectReceipts(rows)
}

func collectReceipts(rows *sql.Rows) ([]receipt.Receipt, error) {
	var out []receipt.Receipt
	for rows.Next() {
		var r receipt.Receipt
		var ts string
		if err := rows.Scan(&r.TaskID, &r.Delegator, &r.Delegatee, &r.SpecPayload, &r.Verdict, &r.Method, &ts); err != nil {
			return nil, err
		}
		r.Timestamp = parseTime(ts)
		out = append(out, r)
	}
	return out, rows.Err()
}
