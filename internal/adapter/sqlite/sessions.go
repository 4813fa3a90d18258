package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Strob0t/AgentHub/internal/domain/session"
)

// NamedSessionStore implements store.NamedSessions on sessions.db.
type NamedSessionStore struct {
	db *sql.DB
}

// NewNamedSessionStore wraps the sessions database.
func NewNamedSessionStore(db *sql.DB) *NamedSessionStore {
	return &NamedSessionStore{db: db}
}

// Name labels a session id; renaming overwrites the previous label.
func (s *NamedSessionStore) Name(ctx context.Context, n *session.Named) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO named_sessions (id, name, account, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		n.ID, n.Name, n.Account, formatTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("name session: %w", err)
	}
	return nil
}

// List returns the account's named sessions, newest first. An empty
// account lists every session.
func (s *NamedSessionStore) List(ctx context.Context, account string) ([]session.Named, error) {
	query := `SELECT id, name, account, created_at FROM named_sessions`
	var args []any
	if account != "" {
		query += ` WHERE account = ?`
		args = append(args, account)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	return collectNamed(rows)
}

// Search returns sessions whose name contains the text.
func (s *NamedSessionStore) Search(ctx context.Context, text string) ([]session.Named, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, account, created_at FROM named_sessions
		 WHERE name LIKE ? ESCAPE '\'
		 ORDER BY created_at DESC`, "%"+escapeLike(text)+"%")
	if err != nil {
		return nil, fmt.Errorf("search sessions: %w", err)
	}
	defer rows.Close()
	return collectNamed(rows)
}

func collectNamed(rows *sql.Rows) ([]session.Named, error) {
	var out []session.Named
	for rows.Next() {
		var n session.Named
		var ts string
		if err := rows.Scan(&n.ID, &n.Name, &n.Account, &ts); err != nil {
			return nil, err
		}
		n.CreatedAt = parseTime(ts)
		out = append(out, n)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
