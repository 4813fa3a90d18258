package daemon

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Strob0t/AgentHub/internal/domain"
	"github.com/Strob0t/AgentHub/internal/domain/knowledge"
	"github.com/Strob0t/AgentHub/internal/protocol"
)

func (d *Dispatcher) registerKnowledge() {
	d.handlers[protocol.TypeSearchKnowledge] = d.handleSearchKnowledge
	d.handlers[protocol.TypeIndexNote] = d.handleIndexNote
}

func (d *Dispatcher) handleSearchKnowledge(ctx context.Context, _ *Client, params json.RawMessage) (any, error) {
	if err := d.requireFeature("knowledgeIndex", "Knowledge index"); err != nil {
		return nil, err
	}
	req, err := decode[struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}](params)
	if err != nil {
		return nil, err
	}
	if req.Query == "" {
		return nil, fmt.Errorf("%w: Invalid field: query", domain.ErrInvalid)
	}
	hits, err := d.state.Knowledge.Search(ctx, req.Query, req.Limit)
	if err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []knowledge.Hit{}
	}
	return map[string]any{"hits": hits}, nil
}

func (d *Dispatcher) handleIndexNote(ctx context.Context, c *Client, params json.RawMessage) (any, error) {
	if err := d.requireFeature("knowledgeIndex", "Knowledge index"); err != nil {
		return nil, err
	}
	req, err := decode[struct {
		Title string   `json:"title"`
		Body  string   `json:"body"`
		Tags  []string `json:"tags"`
	}](params)
	if err != nil {
		return nil, err
	}
	if req.Title == "" {
		return nil, fmt.Errorf("%w: Invalid field: title", domain.ErrInvalid)
	}
	if req.Body == "" {
		return nil, fmt.Errorf("%w: Invalid field: body", domain.ErrInvalid)
	}
	id, err := d.state.Knowledge.IndexNote(ctx, &knowledge.Note{
		Account: c.Account, Title: req.Title, Body: req.Body, Tags: req.Tags,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"noteId": id}, nil
}
