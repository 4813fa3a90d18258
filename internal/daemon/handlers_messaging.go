package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Strob0t/AgentHub/internal/domain"
	"github.com/Strob0t/AgentHub/internal/domain/message"
	"github.com/Strob0t/AgentHub/internal/protocol"
)

func (d *Dispatcher) registerMessaging() {
	d.handlers[protocol.TypeSendMessage] = d.handleSendMessage
	d.handlers[protocol.TypeReadMessages] = d.handleReadMessages
	d.handlers[protocol.TypeCountUnread] = d.handleCountUnread
	d.handlers[protocol.TypeListAccounts] = d.handleListAccounts
	d.handlers[protocol.TypeArchiveMessages] = d.handleArchiveMessages
}

func (d *Dispatcher) handleSendMessage(ctx context.Context, c *Client, params json.RawMessage) (any, error) {
	req, err := decode[struct {
		To      string            `json:"to"`
		Content string            `json:"content"`
		Context map[string]string `json:"context"`
	}](params)
	if err != nil {
		return nil, err
	}
	if req.To == "" {
		return nil, fmt.Errorf("%w: Invalid field: to", domain.ErrInvalid)
	}
	if req.Content == "" {
		return nil, fmt.Errorf("%w: Invalid field: content", domain.ErrInvalid)
	}

	_, err = d.state.Messages.AddMessage(ctx, &message.Message{
		From:    c.Account,
		To:      req.To,
		Type:    message.TypeMessage,
		Content: req.Content,
		Context: req.Context,
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"delivered": d.state.conns.isConnected(req.To),
		"queued":    true,
	}, nil
}

func (d *Dispatcher) handleReadMessages(ctx context.Context, c *Client, params json.RawMessage) (any, error) {
	req, err := decode[struct {
		UnreadOnly bool `json:"unreadOnly"`
		Limit      int  `json:"limit"`
		Offset     int  `json:"offset"`
		MarkRead   bool `json:"markRead"`
	}](params)
	if err != nil {
		return nil, err
	}

	var msgs []message.Message
	if req.UnreadOnly {
		msgs, err = d.state.Messages.GetUnreadMessages(ctx, c.Account)
	} else {
		msgs, err = d.state.Messages.GetMessages(ctx, c.Account, req.Limit, req.Offset)
	}
	if err != nil {
		return nil, err
	}

	if req.MarkRead {
		if err := d.state.Messages.MarkAllRead(ctx, c.Account); err != nil {
			return nil, err
		}
	}
	if msgs == nil {
		msgs = []message.Message{}
	}
	return map[string]any{"messages": msgs}, nil
}

func (d *Dispatcher) handleCountUnread(ctx context.Context, c *Client, _ json.RawMessage) (any, error) {
	n, err := d.state.Messages.CountUnread(ctx, c.Account)
	if err != nil {
		return nil, err
	}
	return map[string]any{"count": n}, nil
}

func (d *Dispatcher) handleListAccounts(_ context.Context, _ *Client, _ json.RawMessage) (any, error) {
	cfg := d.state.Holder.Get()
	type entry struct {
		Name      string `json:"name"`
		Label     string `json:"label,omitempty"`
		Provider  string `json:"provider,omitempty"`
		Color     string `json:"color,omitempty"`
		Connected bool   `json:"connected"`
	}
	out := make([]entry, 0, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		out = append(out, entry{
			Name:      a.Name,
			Label:     a.Label,
			Provider:  string(a.Provider),
			Color:     a.Color,
			Connected: d.state.conns.isConnected(a.Name),
		})
	}
	return map[string]any{"accounts": out}, nil
}

func (d *Dispatcher) handleArchiveMessages(ctx context.Context, _ *Client, params json.RawMessage) (any, error) {
	req, err := decode[struct {
		Days int `json:"days"`
	}](params)
	if err != nil {
		return nil, err
	}
	if req.Days <= 0 {
		req.Days = 30
	}
	n, err := d.state.Messages.ArchiveOld(ctx, time.Duration(req.Days)*24*time.Hour)
	if err != nil {
		return nil, err
	}
	return map[string]any{"archived": n}, nil
}
