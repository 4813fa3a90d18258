package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Strob0t/AgentHub/internal/adapter/git"
	"github.com/Strob0t/AgentHub/internal/bus"
	"github.com/Strob0t/AgentHub/internal/config"
	"github.com/Strob0t/AgentHub/internal/domain"
	"github.com/Strob0t/AgentHub/internal/domain/activity"
	"github.com/Strob0t/AgentHub/internal/domain/message"
	"github.com/Strob0t/AgentHub/internal/domain/task"
	"github.com/Strob0t/AgentHub/internal/domain/workspace"
	"github.com/Strob0t/AgentHub/internal/port/store"
)

// autoContextLimit bounds the collected project context attached to a
// handoff payload.
const autoContextLimit = 50 * 1024

// DepthCheck is the result of the delegation-depth rule.
type DepthCheck struct {
	Allowed                 bool   `json:"allowed"`
	CurrentDepth            int    `json:"currentDepth"`
	MaxDepth                int    `json:"maxDepth"`
	RequiresReauthorization bool   `json:"requiresReauthorization,omitempty"`
	Reason                  string `json:"reason,omitempty"`
}

// HandoffResult is the reply to handoff_task.
type HandoffResult struct {
	Delivered bool   `json:"delivered"`
	Queued    bool   `json:"queued"`
	HandoffID string `json:"handoffId"`
	TaskID    string `json:"taskId"`
	Warning   string `json:"warning,omitempty"`
}

// AcceptResult is the reply to handoff_accept.
type AcceptResult struct {
	Handoff     *message.HandoffPayload `json:"handoff"`
	AutoContext string                  `json:"autoContext,omitempty"`
	Workspace   *workspace.Workspace    `json:"workspace,omitempty"`
}

// HandoffError carries the depth check to the wire when a handoff is
// blocked.
type HandoffError struct {
	Msg        string
	Details    []string
	DepthCheck *DepthCheck
}

func (e *HandoffError) Error() string { return e.Msg }

// HandoffService implements the task-delegation engine: payload
// validation, delegation-depth enforcement, handoff storage, and task
// creation.
type HandoffService struct {
	messages  store.Messages
	tasks     store.Tasks
	bus       *bus.Bus
	holder    *config.Holder
	worktrees *git.Manager // may be nil; the workspaceWorktree flag is checked per accept
	connected func(account string) bool

	// MaxDepthOverride is the explicit handler config; it wins over the
	// config file and the built-in default.
	MaxDepthOverride int

	mu     sync.Mutex
	grants map[string]int // "from->to" → single-use reauthorization grants
}

// NewHandoffService creates a HandoffService. connected reports whether
// an account currently holds a live connection.
func NewHandoffService(messages store.Messages, tasks store.Tasks, b *bus.Bus, holder *config.Holder, worktrees *git.Manager, connected func(string) bool) *HandoffService {
	return &HandoffService{
		messages:  messages,
		tasks:     tasks,
		bus:       b,
		holder:    holder,
		worktrees: worktrees,
		connected: connected,
		grants:    make(map[string]int),
	}
}

// CheckDelegationDepth applies the depth rule for one payload.
func (s *HandoffService) CheckDelegationDepth(depth int) DepthCheck {
	maxDepth := s.holder.Get().MaxDelegationDepth(s.MaxDepthOverride)
	check := DepthCheck{CurrentDepth: depth, MaxDepth: maxDepth}
	switch {
	case depth >= maxDepth:
		check.Allowed = false
		check.RequiresReauthorization = true
		check.Reason = fmt.Sprintf("delegation depth %d reached the limit of %d", depth, maxDepth)
	case depth == maxDepth-1:
		check.Allowed = true
		check.Reason = "approaching delegation depth limit"
	default:
		check.Allowed = true
	}
	return check
}

// Reauthorize grants one follow-up handoff from → to at a blocked
// depth. The grant is in-memory and single-use.
func (s *HandoffService) Reauthorize(ctx context.Context, from, to string) {
	s.mu.Lock()
	s.grants[from+"->"+to]++
	s.mu.Unlock()

	s.bus.Emit(bus.Event{
		Kind:    activity.KindDelegationChain,
		Account: from,
		Payload: map[string]string{"chain": from + "," + to, "reauthorized": "true"},
	})
	slog.Info("delegation reauthorized", "from", from, "to", to)
}

// consumeGrant takes one grant if available.
func (s *HandoffService) consumeGrant(from, to string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := from + "->" + to
	if s.grants[key] > 0 {
		s.grants[key]--
		if s.grants[key] == 0 {
			delete(s.grants, key)
		}
		return true
	}
	return false
}

// HandoffTask validates and stores a handoff from → to, creates the
// task, and emits the lifecycle events. The returned message id is the
// task id.
func (s *HandoffService) HandoffTask(ctx context.Context, from, to string, payload *message.HandoffPayload, reqCtx map[string]string) (*HandoffResult, error) {
	if to == "" {
		return nil, fmt.Errorf("%w: Invalid field: to", domain.ErrInvalid)
	}
	if problems := payload.Validate(); len(problems) > 0 {
		return nil, &HandoffError{Msg: "Invalid handoff payload", Details: problems}
	}

	depth := payload.DelegationDepth
	check := s.CheckDelegationDepth(depth)
	var warning string
	if !check.Allowed {
		if s.consumeGrant(from, to) {
			check.Allowed = true
			check.RequiresReauthorization = false
			check.Reason = "reauthorized"
			warning = "delegation allowed by reauthorization"
		} else {
			s.emitChain(from, to, payload.ParentHandoffID, "", map[string]string{
				"blocked": "true",
				"depth":   strconv.Itoa(depth),
			})
			return nil, &HandoffError{
				Msg:        check.Reason,
				DepthCheck: &check,
			}
		}
	} else if check.Reason != "" {
		warning = check.Reason
	}

	// Optional project context, attached before the payload is stored.
	if dir := reqCtx["projectDir"]; dir != "" {
		if auto := git.ProjectContext(ctx, dir, autoContextLimit); auto != "" {
			payload.AutoContext = auto
		}
	}

	content, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal handoff payload: %w", err)
	}

	msg := &message.Message{
		From:    from,
		To:      to,
		Type:    message.TypeHandoff,
		Content: string(content),
		Context: reqCtx,
	}
	id, err := s.messages.AddMessage(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("store handoff: %w", err)
	}

	t := &task.Task{
		ID:        id,
		Title:     payload.Goal,
		Status:    task.StatusTodo,
		Assignee:  to,
		CreatedAt: time.Now().UTC(),
		Events:    []task.Event{},
	}
	if err := s.tasks.Put(ctx, t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	s.emitChain(from, to, payload.ParentHandoffID, id, map[string]string{
		"depth": strconv.Itoa(depth),
	})
	s.bus.Emit(bus.Event{
		Kind:    activity.KindTaskCreated,
		Account: to,
		TaskID:  id,
		Payload: characteristics(payload),
	})

	return &HandoffResult{
		Delivered: s.connected(to),
		Queued:    true,
		HandoffID: id,
		TaskID:    id,
		Warning:   warning,
	}, nil
}

func (s *HandoffService) emitChain(from, to, parentID, taskID string, extra map[string]string) {
	chain := []string{from, to}
	payload := map[string]string{"chain": strings.Join(chain, ",")}
	if parentID != "" {
		payload["parent_handoff_id"] = parentID
	}
	for k, v := range extra {
		payload[k] = v
	}
	s.bus.Emit(bus.Event{
		Kind:    activity.KindDelegationChain,
		Account: from,
		TaskID:  taskID,
		Payload: payload,
	})
}

func characteristics(p *message.HandoffPayload) map[string]string {
	out := map[string]string{"goal": p.Goal}
	if p.Complexity != "" {
		out["complexity"] = p.Complexity
	}
	if p.Criticality != "" {
		out["criticality"] = p.Criticality
	}
	if p.Uncertainty != "" {
		out["uncertainty"] = p.Uncertainty
	}
	if p.Verifiability != "" {
		out["verifiability"] = p.Verifiability
	}
	if p.Reversibility != "" {
		out["reversibility"] = p.Reversibility
	}
	if p.EstimatedMinutes > 0 {
		out["estimated_duration_minutes"] = strconv.Itoa(p.EstimatedMinutes)
	}
	return out
}

// HandoffAccept looks up the handoff addressed to caller, optionally
// prepares a worktree, and returns the parsed payload with its
// autoContext split out.
func (s *HandoffService) HandoffAccept(ctx context.Context, caller, handoffID string) (*AcceptResult, error) {
	msg, err := s.messages.GetMessage(ctx, handoffID)
	if err != nil {
		return nil, err
	}
	if msg.To != caller || msg.Type != message.TypeHandoff {
		return nil, fmt.Errorf("handoff %s: %w", handoffID, domain.ErrNotFound)
	}

	payload, err := message.ParsePayload(msg.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupted handoff content", domain.ErrInvalid)
	}

	res := &AcceptResult{Handoff: payload, AutoContext: payload.AutoContext}
	res.Handoff.AutoContext = ""

	// Workspace preparation is best-effort: a git failure degrades to a
	// workspace-less accept.
	projectDir := msg.Context["projectDir"]
	branch := msg.Context["branch"]
	if s.worktrees != nil && projectDir != "" && branch != "" && s.holder.Get().FeatureEnabled("workspaceWorktree") {
		ws, err := s.worktrees.Prepare(ctx, projectDir, branch, caller, handoffID)
		if err != nil {
			slog.Warn("worktree preparation failed, continuing without workspace",
				"handoff_id", handoffID, "error", err)
		} else {
			res.Workspace = ws
		}
	}

	s.bus.Emit(bus.Event{
		Kind:    activity.KindTaskAssigned,
		Account: caller,
		TaskID:  handoffID,
		Payload: map[string]string{
			"delegator": msg.From,
			"delegatee": caller,
			"reason":    "handoff_accepted",
		},
	})
	return res, nil
}
