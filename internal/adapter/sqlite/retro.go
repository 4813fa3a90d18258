package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Strob0t/AgentHub/internal/domain"
	"github.com/Strob0t/AgentHub/internal/domain/retro"
)

// RetroStore implements store.Retro on retro.db.
type RetroStore struct {
	db *sql.DB
}

// NewRetroStore wraps the retro database.
func NewRetroStore(db *sql.DB) *RetroStore {
	return &RetroStore{db: db}
}

// CreateSession opens a retrospective session.
func (s *RetroStore) CreateSession(ctx context.Context, sess *retro.Session) error {
	if sess.ID == "" {
		sess.ID = domain.NewID()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO retro_sessions (id, topic, task_id, started_by, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Topic, nullString(sess.TaskID), sess.StartedBy, sess.Status, formatTime(sess.CreatedAt))
	if err != nil {
		return fmt.Errorf("create retro session: %w", err)
	}
	return nil
}

// GetSession returns one session by id.
func (s *RetroStore) GetSession(ctx context.Context, id string) (*retro.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, topic, task_id, started_by, status, created_at
		 FROM retro_sessions WHERE id = ?`, id)
	var sess retro.Session
	var taskID sql.NullString
	var ts string
	err := row.Scan(&sess.ID, &sess.Topic, &taskID, &sess.StartedBy, &sess.Status, &ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("retro session %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("retro session %s: %w", id, err)
	}
	sess.TaskID = fromNull(taskID)
	sess.CreatedAt = parseTime(ts)
	return &sess, nil
}

// AddReview stores one account's review; resubmission overwrites.
func (s *RetroStore) AddReview(ctx context.Context, r *retro.Review) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO retro_reviews (session_id, account, went_well, went_wrong, learning, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, account) DO UPDATE SET
		   went_well = excluded.went_well,
		   went_wrong = excluded.went_wrong,
		   learning = excluded.learning`,
		r.SessionID, r.Account, r.WentWell, r.WentWrong, r.Learning, formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("add retro review: %w", err)
	}
	return nil
}

// ListReviews returns every review in a session.
func (s *RetroStore) ListReviews(ctx context.Context, sessionID string) ([]retro.Review, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, account, went_well, went_wrong, learning, created_at
		 FROM retro_reviews WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list retro reviews: %w", err)
	}
	defer rows.Close()

	var out []retro.Review
	for rows.Next() {
		var r retro.Review
		var ts string
		if err := rows.Scan(&r.SessionID, &r.Account, &r.WentWell, &r.WentWrong, &r.Learning, &ts); err != nil {
			return nil, err
		}
		r.CreatedAt = parseTime(ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveSynthesis closes the session with its distilled learnings.
func (s *RetroStore) SaveSynthesis(ctx context.Context, syn *retro.Synthesis) error {
	if syn.CreatedAt.IsZero() {
		syn.CreatedAt = time.Now().UTC()
	}
	learnings, err := marshalJSON(syn.Learnings)
	if err != nil {
		return fmt.Errorf("marshal learnings: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save synthesis: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO retro_synthesis (session_id, account, summary, learnings, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   account = excluded.account,
		   summary = excluded.summary,
		   learnings = excluded.learnings`,
		syn.SessionID, syn.Account, syn.Summary, learnings, formatTime(syn.CreatedAt))
	if err != nil {
		return fmt.Errorf("save synthesis: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE retro_sessions SET status = ? WHERE id = ?`,
		retro.SessionSynthesized, syn.SessionID)
	if err != nil {
		return fmt.Errorf("close retro session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save synthesis: %w", err)
	}
	return nil
}

// GetSynthesis returns the session's synthesis if submitted.
func (s *RetroStore) GetSynthesis(ctx context.Context, sessionID string) (*retro.Synthesis, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, account, summary, learnings, created_at
		 FROM retro_synthesis WHERE session_id = ?`, sessionID)
	var syn retro.Synthesis
	var learnings, ts string
	err := row.Scan(&syn.SessionID, &syn.Account, &syn.Summary, &learnings, &ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("synthesis %s: %w", sessionID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("synthesis %s: %w", sessionID, err)
	}
	syn.Learnings = unmarshalStrings(learnings)
	syn.CreatedAt = parseTime(ts)
	return &syn, nil
}

// PastLearnings flattens learnings from past syntheses, newest first.
func (s *RetroStore) PastLearnings(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT learnings FROM retro_synthesis ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("past learnings: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		out = append(out, unmarshalStrings(raw)...)
		if len(out) >= limit {
			out = out[:limit]
			break
		}
	}
	return out, rows.Err()
}
