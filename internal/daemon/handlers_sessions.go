package daemon

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Strob0t/AgentHub/internal/domain"
	"github.com/Strob0t/AgentHub/internal/domain/session"
	"github.com/Strob0t/AgentHub/internal/protocol"
)

func (d *Dispatcher) registerSessions() {
	d.handlers[protocol.TypeShareSession] = d.handleShareSession
	d.handlers[protocol.TypeJoinSession] = d.handleJoinSession
	d.handlers[protocol.TypeSessionBroadcast] = d.handleSessionBroadcast
	d.handlers[protocol.TypeSessionStatus] = d.handleSessionStatus
	d.handlers[protocol.TypeSessionHistory] = d.handleSessionHistory
	d.handlers[protocol.TypeLeaveSession] = d.handleLeaveSession
	d.handlers[protocol.TypeSessionPing] = d.handleSessionPing

	d.handlers[protocol.TypeNameSession] = d.handleNameSession
	d.handlers[protocol.TypeListSessions] = d.handleListSessions
	d.handlers[protocol.TypeSearchSessions] = d.handleSearchSessions
}

func (d *Dispatcher) requireSessions() error {
	return d.requireFeature("sessions", "Sessions")
}

func (d *Dispatcher) handleShareSession(_ context.Context, c *Client, params json.RawMessage) (any, error) {
	if err := d.requireSessions(); err != nil {
		return nil, err
	}
	req, err := decode[struct {
		Target    string `json:"target"`
		Workspace string `json:"workspace"`
	}](params)
	if err != nil {
		return nil, err
	}
	if req.Target == "" {
		return nil, fmt.Errorf("%w: Invalid field: target", domain.ErrInvalid)
	}

	s, err := d.state.Sessions.CreateSession(c.Account, req.Target, req.Workspace)
	if err != nil {
		return nil, err
	}
	return map[string]any{"session": s}, nil
}

func (d *Dispatcher) handleJoinSession(_ context.Context, c *Client, params json.RawMessage) (any, error) {
	if err := d.requireSessions(); err != nil {
		return nil, err
	}
	req, err := decode[struct {
		SessionID string `json:"sessionId"`
	}](params)
	if err != nil {
		return nil, err
	}
	s, err := d.state.Sessions.JoinSession(req.SessionID, c.Account)
	if err != nil {
		return nil, err
	}
	return map[string]any{"session": s}, nil
}

func (d *Dispatcher) handleSessionBroadcast(_ context.Context, c *Client, params json.RawMessage) (any, error) {
	if err := d.requireSessions(); err != nil {
		return nil, err
	}
	req, err := decode[struct {
		SessionID string `json:"sessionId"`
		Data      string `json:"data"`
	}](params)
	if err != nil {
		return nil, err
	}
	stored := d.state.Sessions.AddUpdate(req.SessionID, c.Account, req.Data)
	if !stored {
		return nil, fmt.Errorf("%w: not a member of an active session", domain.ErrUnauthorized)
	}
	return map[string]any{"stored": true}, nil
}

func (d *Dispatcher) handleSessionStatus(_ context.Context, c *Client, params json.RawMessage) (any, error) {
	if err := d.requireSessions(); err != nil {
		return nil, err
	}
	req, err := decode[struct {
		SessionID string `json:"sessionId"`
	}](params)
	if err != nil {
		return nil, err
	}
	s, err := d.state.Sessions.Get(req.SessionID, c.Account)
	if err != nil {
		return nil, err
	}
	return map[string]any{"session": s}, nil
}

func (d *Dispatcher) handleSessionHistory(_ context.Context, c *Client, params json.RawMessage) (any, error) {
	if err := d.requireSessions(); err != nil {
		return nil, err
	}
	req, err := decode[struct {
		SessionID string `json:"sessionId"`
	}](params)
	if err != nil {
		return nil, err
	}
	updates := d.state.Sessions.GetUpdates(req.SessionID, c.Account)
	if updates == nil {
		updates = []session.Update{}
	}
	return map[string]any{"updates": updates}, nil
}

func (d *Dispatcher) handleLeaveSession(_ context.Context, c *Client, params json.RawMessage) (any, error) {
	if err := d.requireSessions(); err != nil {
		return nil, err
	}
	req, err := decode[struct {
		SessionID string `json:"sessionId"`
	}](params)
	if err != nil {
		return nil, err
	}
	if err := d.state.Sessions.EndSession(req.SessionID, c.Account); err != nil {
		return nil, err
	}
	return map[string]any{"ended": true}, nil
}

func (d *Dispatcher) handleSessionPing(_ context.Context, c *Client, params json.RawMessage) (any, error) {
	if err := d.requireSessions(); err != nil {
		return nil, err
	}
	req, err := decode[struct {
		SessionID string `json:"sessionId"`
	}](params)
	if err != nil {
		return nil, err
	}
	ok := d.state.Sessions.RecordPing(req.SessionID, c.Account)
	return map[string]any{"recorded": ok}, nil
}

// --- Named sessions ---

func (d *Dispatcher) handleNameSession(ctx context.Context, c *Client, params json.RawMessage) (any, error) {
	req, err := decode[struct {
		SessionID string `json:"sessionId"`
		Name      string `json:"name"`
	}](params)
	if err != nil {
		return nil, err
	}
	if req.SessionID == "" {
		return nil, fmt.Errorf("%w: Invalid field: sessionId", domain.ErrInvalid)
	}
	if req.Name == "" {
		return nil, fmt.Errorf("%w: Invalid field: name", domain.ErrInvalid)
	}
	if err := d.state.NamedSessions.Name(ctx, &session.Named{ID: req.SessionID, Name: req.Name, Account: c.Account}); err != nil {
		return nil, err
	}
	return map[string]any{"named": true}, nil
}

func (d *Dispatcher) handleListSessions(ctx context.Context, c *Client, params json.RawMessage) (any, error) {
	req, err := decode[struct {
		All bool `json:"all"`
	}](params)
	if err != nil {
		return nil, err
	}
	account := c.Account
	if req.All {
		account = ""
	}
	list, err := d.state.NamedSessions.List(ctx, account)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []session.Named{}
	}
	return map[string]any{"sessions": list}, nil
}

func (d *Dispatcher) handleSearchSessions(ctx context.Context, _ *Client, params json.RawMessage) (any, error) {
	req, err := decode[struct {
		Query string `json:"query"`
	}](params)
	if err != nil {
		return nil, err
	}
	if req.Query == "" {
		return nil, fmt.Errorf("%w: Invalid field: query", domain.ErrInvalid)
	}
	list, err := d.state.NamedSessions.Search(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []session.Named{}
	}
	return map[string]any{"sessions": list}, nil
}
