package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Strob0t/AgentHub/internal/domain"
	"github.com/Strob0t/AgentHub/internal/domain/knowledge"
)

// KnowledgeStore implements store.Knowledge on knowledge.db with an
// FTS5 index over title and body.
type KnowledgeStore struct {
	db *sql.DB
}

// NewKnowledgeStore wraps the knowledge database.
func NewKnowledgeStore(db *sql.DB) *KnowledgeStore {
	return &KnowledgeStore{db: db}
}

// IndexNote stores and indexes a note, returning its id.
func (s *KnowledgeStore) IndexNote(ctx context.Context, n *knowledge.Note) (string, error) {
	if n.ID == "" {
		n.ID = domain.NewID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	tags, err := marshalJSON(n.Tags)
	if err != nil {
		return "", fmt.Errorf("marshal tags: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("index note: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO notes (id, account, title, body, tags, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.Account, n.Title, n.Body, tags, formatTime(n.CreatedAt))
	if err != nil {
		return "", fmt.Errorf("index note: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO notes_fts (id, title, body) VALUES (?, ?, ?)`,
		n.ID, n.Title, n.Body)
	if err != nil {
		return "", fmt.Errorf("index note fts: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("index note: %w", err)
	}
	return n.ID, nil
}

// Search matches the full-text index and returns notes ranked by match
// quality.
func (s *KnowledgeStore) Search(ctx context.Context, query string, limit int) ([]knowledge.Hit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT n.id, n.account, n.title, n.body, n.tags, n.created_at, rank
		 FROM notes_fts f
		 JOIN notes n ON n.id = f.id
		 WHERE notes_fts MATCH ?
		 ORDER BY rank
		 LIMIT ?`, ftsQuery(query), limit)
	if err != nil {
		return nil, fmt.Errorf("search knowledge: %w", err)
	}
	defer rows.Close()

	var hits []knowledge.Hit
	for rows.Next() {
		var h knowledge.Hit
		var tags, ts string
		if err := rows.Scan(&h.Note.ID, &h.Note.Account, &h.Note.Title, &h.Note.Body, &tags, &ts, &h.Rank); err != nil {
			return nil, err
		}
		h.Note.Tags = unmarshalStrings(tags)
		h.Note.CreatedAt = parseTime(ts)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
