package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Strob0t/AgentHub/internal/domain/capability"
)

// TrustStore implements store.Trust on capabilities.db; trust shares the
// file with the capability counters it is derived alongside.
type TrustStore struct {
	db *sql.DB
}

// NewTrustStore wraps the capabilities database.
func NewTrustStore(db *sql.DB) *TrustStore {
	return &TrustStore{db: db}
}

// Get returns the account's trust record, or a default-score record for
// an account with no history.
func (s *TrustStore) Get(ctx context.Context, account string) (*capability.Trust, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT account, score, completed, failed, rejected, sla_compliant, updated_at
		 FROM trust WHERE account = ?`, account)
	var t capability.Trust
	var ts string
	err := row.Scan(&t.Account, &t.Score, &t.Completed, &t.Failed, &t.Rejected, &t.SLACompliant, &ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &capability.Trust{Account: account, Score: capability.DefaultScore}, nil
		}
		return nil, fmt.Errorf("get trust %s: %w", account, err)
	}
	t.UpdatedAt = parseTime(ts)
	return &t, nil
}

// Save upserts the trust record.
func (s *TrustStore) Save(ctx context.Context, t *capability.Trust) error {
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trust (account, score, completed, failed, rejected, sla_compliant, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(account) DO UPDATE SET
		   score = excluded.score,
		   completed = excluded.completed,
		   failed = excluded.failed,
		   rejected = excluded.rejected,
		   sla_compliant = excluded.sla_compliant,
		   updated_at = excluded.updated_at`,
		t.Account, t.Score, t.Completed, t.Failed, t.Rejected, t.SLACompliant, formatTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save trust: %w", err)
	}
	return nil
}

// List returns every trust record.
func (s *TrustStore) List(ctx context.Context) ([]capability.Trust, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT account, score, completed, failed, rejected, sla_compliant, updated_at
		 FROM trust ORDER BY account`)
	if err != nil {
		return nil, fmt.Errorf("list trust: %w", err)
	}
	defer rows.Close()

	var out []capability.Trust
	for rows.Next() {
		var t capability.Trust
		var ts string
		if err := rows.Scan(&t.Account, &t.Score, &t.Completed, &t.Failed, &t.Rejected, &t.SLACompliant, &ts); err != nil {
			return nil, err
		}
		t.UpdatedAt = parseTime(ts)
		out = append(out, t)
	}
	return out, rows.Err()
}
