package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Strob0t/AgentHub/internal/adapter/cache"
	"github.com/Strob0t/AgentHub/internal/domain/knowledge"
	"github.com/Strob0t/AgentHub/internal/port/store"
)

// knowledgeCacheTTL bounds the staleness of cached search results.
const knowledgeCacheTTL = 30 * time.Second

// KnowledgeService indexes notes and serves searches through a small
// read cache. Indexing a note invalidates nothing; the short TTL keeps
// results fresh enough.
type KnowledgeService struct {
	store store.Knowledge
	cache *cache.Cache // may be nil
}

// NewKnowledgeService creates a KnowledgeService.
func NewKnowledgeService(s store.Knowledge, c *cache.Cache) *KnowledgeService {
	return &KnowledgeService{store: s, cache: c}
}

// IndexNote stores and indexes a note, returning its id.
func (s *KnowledgeService) IndexNote(ctx context.Context, n *knowledge.Note) (string, error) {
	return s.store.IndexNote(ctx, n)
}

// Search returns ranked hits for the query.
func (s *KnowledgeService) Search(ctx context.Context, query string, limit int) ([]knowledge.Hit, error) {
	key := "kn:" + query
	if s.cache != nil {
		if data, ok := s.cache.Get(key); ok {
			var hits []knowledge.Hit
			if err := json.Unmarshal(data, &hits); err == nil {
				return hits, nil
			}
		}
	}

	hits, err := s.store.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if data, err := json.Marshal(hits); err == nil {
			s.cache.Set(key, data, knowledgeCacheTTL)
		}
	}
	return hits, nil
}
