package daemon

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Strob0t/AgentHub/internal/domain"
	"github.com/Strob0t/AgentHub/internal/domain/message"
	"github.com/Strob0t/AgentHub/internal/protocol"
)

func (d *Dispatcher) registerHandoff() {
	d.handlers[protocol.TypeHandoffTask] = d.handleHandoffTask
	d.handlers[protocol.TypeHandoffAccept] = d.handleHandoffAccept
	d.handlers[protocol.TypeSuggestAssignee] = d.handleSuggestAssignee
	d.handlers[protocol.TypeReauthorizeDelegation] = d.handleReauthorize
}

func (d *Dispatcher) handleHandoffTask(ctx context.Context, c *Client, params json.RawMessage) (any, error) {
	req, err := decode[struct {
		To      string                  `json:"to"`
		Payload *message.HandoffPayload `json:"payload"`
		Context map[string]string       `json:"context"`
	}](params)
	if err != nil {
		return nil, err
	}
	if req.Payload == nil {
		return nil, fmt.Errorf("%w: Invalid field: payload", domain.ErrInvalid)
	}
	return d.state.Handoffs.HandoffTask(ctx, c.Account, req.To, req.Payload, req.Context)
}

func (d *Dispatcher) handleHandoffAccept(ctx context.Context, c *Client, params json.RawMessage) (any, error) {
	req, err := decode[struct {
		HandoffID string `json:"handoffId"`
	}](params)
	if err != nil {
		return nil, err
	}
	if req.HandoffID == "" {
		return nil, fmt.Errorf("%w: Invalid field: handoffId", domain.ErrInvalid)
	}
	return d.state.Handoffs.HandoffAccept(ctx, c.Account, req.HandoffID)
}

func (d *Dispatcher) handleSuggestAssignee(ctx context.Context, _ *Client, params json.RawMessage) (any, error) {
	if err := d.requireFeature("capabilityRouting", "Capability routing"); err != nil {
		return nil, err
	}
	req, err := decode[struct {
		Skills          []string           `json:"skills"`
		ExcludeAccounts []string           `json:"excludeAccounts"`
		Priority        string             `json:"priority"`
		Workload        map[string]float64 `json:"workload"`
	}](params)
	if err != nil {
		return nil, err
	}
	suggestions, err := d.state.Routing.SuggestAssignee(ctx, req.Skills, req.ExcludeAccounts, req.Workload)
	if err != nil {
		return nil, err
	}
	return map[string]any{"suggestions": suggestions, "priority": req.Priority}, nil
}

func (d *Dispatcher) handleReauthorize(ctx context.Context, c *Client, params json.RawMessage) (any, error) {
	req, err := decode[struct {
		To string `json:"to"`
	}](params)
	if err != nil {
		return nil, err
	}
	if req.To == "" {
		return nil, fmt.Errorf("%w: Invalid field: to", domain.ErrInvalid)
	}
	d.state.Handoffs.Reauthorize(ctx, c.Account, req.To)
	return map[string]any{"reauthorized": true, "from": c.Account, "to": req.To}, nil
}
