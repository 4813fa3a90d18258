package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Strob0t/AgentHub/internal/domain"
	"github.com/Strob0t/AgentHub/internal/domain/capability"
)

// CapabilityStore implements store.Capabilities on capabilities.db.
type CapabilityStore struct {
	db *sql.DB
}

// NewCapabilityStore wraps the capabilities database.
func NewCapabilityStore(db *sql.DB) *CapabilityStore {
	return &CapabilityStore{db: db}
}

func scanCapability(row scannable) (capability.Capability, error) {
	var c capability.Capability
	var skills string
	var last sql.NullString
	if err := row.Scan(&c.Account, &skills, &c.Accepted, &c.Total, &c.AvgDurationMin, &last); err != nil {
		return c, err
	}
	c.Skills = unmarshalStrings(skills)
	if last.Valid {
		c.LastActivity = parseTime(last.String)
	}
	return c, nil
}

// Get returns the account's capability record.
func (s *CapabilityStore) Get(ctx context.Context, account string) (*capability.Capability, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT account, skills, accepted, total, avg_duration_min, last_activity
		 FROM capabilities WHERE account = ?`, account)
	c, err := scanCapability(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("capability %s: %w", account, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("capability %s: %w", account, err)
	}
	return &c, nil
}

// Upsert writes the account's skills, preserving derived counters.
func (s *CapabilityStore) Upsert(ctx context.Context, c *capability.Capability) error {
	skills, err := marshalJSON(c.Skills)
	if err != nil {
		return fmt.Errorf("marshal skills: %w", err)
	}
	var last any
	if !c.LastActivity.IsZero() {
		last = formatTime(c.LastActivity)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO capabilities (account, skills, accepted, total, avg_duration_min, last_activity)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(account) DO UPDATE SET skills = excluded.skills`,
		c.Account, skills, c.Accepted, c.Total, c.AvgDurationMin, last)
	if err != nil {
		return fmt.Errorf("upsert capability: %w", err)
	}
	return nil
}

// List returns every capability record.
func (s *CapabilityStore) List(ctx context.Context) ([]capability.Capability, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT account, skills, accepted, total, avg_duration_min, last_activity
		 FROM capabilities ORDER BY account`)
	if err != nil {
		return nil, fmt.Errorf("list capabilities: %w", err)
	}
	defer rows.Close()

	var out []capability.Capability
	for rows.Next() {
		c, err := scanCapability(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RecordOutcome rolls the derived counters after a task outcome. The
// average duration is a running mean over accepted tasks.
func (s *CapabilityStore) RecordOutcome(ctx context.Context, account string, accepted bool, durationMin float64, at time.Time) error {
	acceptedInc := 0
	avgDuration := 0.0
	if accepted {
		acceptedInc = 1
		avgDuration = durationMin
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO capabilities (account, skills, accepted, total, avg_duration_min, last_activity)
		 VALUES (?, '[]', ?, 1, ?, ?)
		 ON CONFLICT(account) DO UPDATE SET
		   accepted = accepted + excluded.accepted,
		   total = total + 1,
		   avg_duration_min = CASE
		     WHEN excluded.accepted = 1 AND accepted + excluded.accepted > 0
		     THEN (avg_duration_min * accepted + excluded.avg_duration_min) / (accepted + excluded.accepted)
		     ELSE avg_duration_min
		   END,
		   last_activity = excluded.last_activity`,
		account, acceptedInc, avgDuration, formatTime(at))
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

