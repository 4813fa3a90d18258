package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Strob0t/AgentHub/internal/domain"
	"github.com/Strob0t/AgentHub/internal/domain/message"
	"github.com/Strob0t/AgentHub/internal/domain/task"
)

// MessageStore implements store.Messages and store.TaskLinks on
// messages.db.
type MessageStore struct {
	db *sql.DB
}

// NewMessageStore wraps the messages database.
func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

const messageColumns = `id, from_account, to_account, type, content, timestamp, read, context`

func scanMessage(row scannable) (message.Message, error) {
	var m message.Message
	var ts string
	var read int
	var ctx sql.NullString
	if err := row.Scan(&m.ID, &m.From, &m.To, &m.Type, &m.Content, &ts, &read, &ctx); err != nil {
		return m, err
	}
	m.Timestamp = parseTime(ts)
	m.Read = read != 0
	m.Context = unmarshalStringMap(fromNull(ctx))
	return m, nil
}

// AddMessage stores the message, assigning an id and timestamp when
// missing, and returns the id.
func (s *MessageStore) AddMessage(ctx context.Context, m *message.Message) (string, error) {
	if m.ID == "" {
		m.ID = domain.NewID()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	ctxJSON, err := marshalJSON(m.Context)
	if err != nil {
		return "", fmt.Errorf("marshal message context: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.From, m.To, m.Type, m.Content, formatTime(m.Timestamp), boolInt(m.Read), ctxJSON)
	if err != nil {
		return "", fmt.Errorf("add message: %w", err)
	}
	return m.ID, nil
}

// GetMessage returns one message by id.
func (s *MessageStore) GetMessage(ctx context.Context, id string) (*message.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get message %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return &m, nil
}

// GetUnreadMessages returns unread messages for the account, ascending
// by timestamp then insertion order.
func (s *MessageStore) GetUnreadMessages(ctx context.Context, to string) ([]message.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE to_account = ? AND read = 0
		 ORDER BY timestamp ASC, rowid ASC`, to)
	if err != nil {
		return nil, fmt.Errorf("unread messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// GetMessages returns messages for the account, newest first.
func (s *MessageStore) GetMessages(ctx context.Context, to string, limit, offset int) ([]message.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE to_account = ?
		 ORDER BY timestamp DESC, rowid DESC
		 LIMIT ? OFFSET ?`, to, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// MarkAllRead marks every message for the account as read.
func (s *MessageStore) MarkAllRead(ctx context.Context, to string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE messages SET read = 1 WHERE to_account = ? AND read = 0`, to); err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}
	return nil
}

// CountUnread returns the unread count for the account.
func (s *MessageStore) CountUnread(ctx context.Context, to string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE to_account = ? AND read = 0`, to).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

// GetHandoffs returns handoff messages for the account, ascending.
func (s *MessageStore) GetHandoffs(ctx context.Context, to string) ([]message.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE to_account = ? AND type = ?
		 ORDER BY timestamp ASC, rowid ASC`, to, message.TypeHandoff)
	if err != nil {
		return nil, fmt.Errorf("get handoffs: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// ArchiveOld deletes read messages older than the cutoff and returns
// how many were removed.
func (s *MessageStore) ArchiveOld(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := formatTime(time.Now().UTC().Add(-olderThan))
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE read = 1 AND timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("archive messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("archive messages: %w", err)
	}
	return int(n), nil
}

func collectMessages(rows *sql.Rows) ([]message.Message, error) {
	var msgs []message.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- Task links ---

// Link records a directed relation between two tasks. Relinking the
// same triple is idempotent.
func (s *MessageStore) Link(ctx context.Context, l *task.Link) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO task_links (from_task, to_task, relation, created_at)
		 VALUES (?, ?, ?, ?)`,
		l.FromTask, l.ToTask, l.Relation, formatTime(l.CreatedAt))
	if err != nil {
		return fmt.Errorf("link task: %w", err)
	}
	return nil
}

// Links returns every link touching the task, in either direction.
func (s *MessageStore) Links(ctx context.Context, taskID string) ([]task.Link, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_task, to_task, relation, created_at FROM task_links
		 WHERE from_task = ? OR to_task = ?
		 ORDER BY created_at ASC`, taskID, taskID)
	if err != nil {
		return nil, fmt.Errorf("task links: %w", err)
	}
	defer rows.Close()

	var links []task.Link
	for rows.Next() {
		var l task.Link
		var ts string
		if err := rows.Scan(&l.FromTask, &l.ToTask, &l.Relation, &ts); err != nil {
			return nil, err
		}
		l.CreatedAt = parseTime(ts)
		links = append(links, l)
	}
	return links, rows.Err()
}
