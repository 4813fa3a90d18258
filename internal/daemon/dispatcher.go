package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Strob0t/AgentHub/internal/domain"
	"github.com/Strob0t/AgentHub/internal/protocol"
	"github.com/Strob0t/AgentHub/internal/service"
)

// HandlerFunc processes one validated request and returns the result
// payload to merge into the reply frame.
type HandlerFunc func(ctx context.Context, c *Client, params json.RawMessage) (any, error)

// Dispatcher validates request frames, routes them by type, and writes
// correlated replies.
type Dispatcher struct {
	state    *State
	handlers map[string]HandlerFunc
}

// NewDispatcher builds the handler map over the daemon state.
func NewDispatcher(state *State) *Dispatcher {
	d := &Dispatcher{state: state, handlers: make(map[string]HandlerFunc)}
	d.registerMessaging()
	d.registerHandoff()
	d.registerTasks()
	d.registerWorkspace()
	d.registerSessions()
	d.registerKnowledge()
	d.registerWorkflow()
	d.registerMisc()
	return d
}

// Dispatch handles one frame from an authenticated client. The returned
// error is a socket write failure; request-level errors are written to
// the peer instead.
func (d *Dispatcher) Dispatch(ctx context.Context, c *Client, frame json.RawMessage) error {
	var env protocol.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return c.send(protocol.ErrorResponse{Type: protocol.TypeError, Error: "Invalid message"})
	}

	if env.Type == protocol.TypePing {
		return c.send(map[string]string{"type": protocol.TypePong, "requestId": env.RequestID})
	}

	handler, ok := d.handlers[env.Type]
	if !ok || !protocol.KnownTypes[env.Type] {
		return c.send(protocol.ErrorResponse{
			Type: protocol.TypeError, Error: "Invalid message", RequestID: env.RequestID,
		})
	}

	result, err := handler(ctx, c, frame)
	if err != nil {
		return c.send(d.errorResponse(env.RequestID, err))
	}
	return c.send(resultFrame(env.RequestID, result))
}

// errorResponse maps an error to its wire shape, preserving handoff
// depth-check details.
func (d *Dispatcher) errorResponse(requestID string, err error) any {
	var herr *service.HandoffError
	if errors.As(err, &herr) {
		resp := map[string]any{
			"type":      protocol.TypeError,
			"error":     herr.Msg,
			"requestId": requestID,
		}
		if len(herr.Details) > 0 {
			resp["details"] = herr.Details
		}
		if herr.DepthCheck != nil {
			resp["depthCheck"] = herr.DepthCheck
		}
		return resp
	}

	msg := err.Error()
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// keep the wrapped message; it names the missing entity
	case errors.Is(err, domain.ErrInvalid):
		msg = trimSentinel(msg, domain.ErrInvalid.Error())
	case errors.Is(err, domain.ErrFeatureDisabled):
		msg = trimSentinel(msg, domain.ErrFeatureDisabled.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		msg = "Not authorized"
	}
	return protocol.ErrorResponse{Type: protocol.TypeError, Error: msg, RequestID: requestID}
}

// trimSentinel drops the "invalid: " prefix wrapping adds so callers
// see the field-level message.
func trimSentinel(msg, sentinel string) string {
	prefix := sentinel + ": "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}

// resultFrame flattens the handler result into a {type:"result", ...}
// object with the request id attached.
func resultFrame(requestID string, result any) map[string]any {
	out := map[string]any{"type": protocol.TypeResult}
	if requestID != "" {
		out["requestId"] = requestID
	}
	if result == nil {
		return out
	}

	data, err := json.Marshal(result)
	if err != nil {
		slog.Error("result marshal failed", "error", err)
		return out
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		// Non-object results ride under a generic key.
		out["result"] = json.RawMessage(data)
		return out
	}
	for k, v := range fields {
		if k != "type" && k != "requestId" {
			out[k] = v
		}
	}
	return out
}

// decode unmarshals params into a typed request struct.
func decode[T any](params json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(params, &v); err != nil {
		return v, fmt.Errorf("%w: Invalid message", domain.ErrInvalid)
	}
	return v, nil
}

// requireFeature returns a feature-disabled error unless the flag is on.
func (d *Dispatcher) requireFeature(flag, label string) error {
	if !d.state.Holder.Get().FeatureEnabled(flag) {
		return fmt.Errorf("%w: %s not enabled", domain.ErrFeatureDisabled, label)
	}
	return nil
}
