package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/AgentHub/internal/bus"
	"github.com/Strob0t/AgentHub/internal/domain/activity"
	"github.com/Strob0t/AgentHub/internal/domain/message"
	"github.com/Strob0t/AgentHub/internal/domain/task"
	"github.com/Strob0t/AgentHub/internal/port/store"
)

// SLA thresholds for the graduated escalation rules.
const (
	slaScanInterval    = 60 * time.Second
	slaPingAge         = 30 * time.Minute
	slaPingProgressGap = 15 * time.Minute
	slaReassignAge     = 60 * time.Minute
	slaBlockedAge      = 15 * time.Minute
	slaReviewAge       = 10 * time.Minute
)

// SLAAction is one recommendation produced by a scan. The coordinator
// never mutates tasks itself.
type SLAAction struct {
	TaskID   string `json:"taskId"`
	Assignee string `json:"assignee"`
	Action   string `json:"action"` // ping | reassign | escalate | quarantine | ping_reviewer
	Reason   string `json:"reason"`
}

// SLACoordinator periodically scans open tasks and emits graduated
// escalation events.
type SLACoordinator struct {
	tasks    store.Tasks
	messages store.Messages
	progress *ProgressTracker
	bus      *bus.Bus
	now      func() time.Time
}

// NewSLACoordinator creates an SLACoordinator.
func NewSLACoordinator(tasks store.Tasks, messages store.Messages, progress *ProgressTracker, b *bus.Bus) *SLACoordinator {
	return &SLACoordinator{tasks: tasks, messages: messages, progress: progress, bus: b, now: time.Now}
}

// Run scans on a fixed interval until ctx is cancelled.
func (s *SLACoordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(slaScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Scan(ctx); err != nil {
				slog.Warn("sla scan failed", "error", err)
			}
		}
	}
}

// Scan computes recommendations for the current board and emits the
// matching SLA_WARNING / SLA_BREACH events.
func (s *SLACoordinator) Scan(ctx context.Context) ([]SLAAction, error) {
	now := s.now()
	var actions []SLAAction

	inProgress, err := s.tasks.ListByStatus(ctx, task.StatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("sla scan: %w", err)
	}
	for i := range inProgress {
		t := &inProgress[i]
		age := now.Sub(t.CreatedAt)
		payload := s.payloadFor(ctx, t.ID)

		switch {
		case age > slaReassignAge:
			actions = append(actions, s.breach(t, "reassign",
				fmt.Sprintf("in progress for %s with no completion", age.Round(time.Minute))))
		case age > slaPingAge && s.progressStale(t.ID, now):
			actions = append(actions, s.warn(t, "ping",
				"no progress reported within the last 15 minutes"))
		case age > slaBlockedAge && payload != nil && payload.Blocked():
			actions = append(actions, s.warn(t, "escalate",
				"task reports blockers and is past the escalation window"))
		}

		if payload != nil && payload.Criticality == message.LevelCritical && s.behindSchedule(t, payload, now) {
			actions = append(actions, s.breach(t, "quarantine",
				"critical task is behind schedule"))
		}
	}

	inReview, err := s.tasks.ListByStatus(ctx, task.StatusReadyForReview)
	if err != nil {
		return nil, fmt.Errorf("sla scan: %w", err)
	}
	for i := range inReview {
		t := &inReview[i]
		if reviewAge := now.Sub(lastTransition(t, task.StatusReadyForReview)); reviewAge > slaReviewAge {
			actions = append(actions, s.warn(t, "ping_reviewer",
				fmt.Sprintf("awaiting review for %s", reviewAge.Round(time.Minute))))
		}
	}

	return actions, nil
}

func (s *SLACoordinator) progressStale(taskID string, now time.Time) bool {
	p, ok := s.progress.Latest(taskID)
	return !ok || now.Sub(p.At) > slaPingProgressGap
}

func (s *SLACoordinator) behindSchedule(t *task.Task, p *message.HandoffPayload, now time.Time) bool {
	if p.EstimatedMinutes <= 0 {
		return false
	}
	return now.Sub(t.CreatedAt) > time.Duration(p.EstimatedMinutes)*time.Minute
}

func (s *SLACoordinator) payloadFor(ctx context.Context, taskID string) *message.HandoffPayload {
	msg, err := s.messages.GetMessage(ctx, taskID)
	if err != nil || msg.Type != message.TypeHandoff {
		return nil
	}
	p, err := message.ParsePayload(msg.Content)
	if err != nil {
		return nil
	}
	return p
}

func (s *SLACoordinator) warn(t *task.Task, action, reason string) SLAAction {
	s.bus.Emit(bus.Event{
		Kind: activity.KindSLAWarning, Account: t.Assignee, TaskID: t.ID,
		Payload: map[string]string{"action": action, "reason": reason},
	})
	return SLAAction{TaskID: t.ID, Assignee: t.Assignee, Action: action, Reason: reason}
}

func (s *SLACoordinator) breach(t *task.Task, action, reason string) SLAAction {
	s.bus.Emit(bus.Event{
		Kind: activity.KindSLABreach, Account: t.Assignee, TaskID: t.ID,
		Payload: map[string]string{"action": action, "reason": reason},
	})
	return SLAAction{TaskID: t.ID, Assignee: t.Assignee, Action: action, Reason: reason}
}

// lastTransition returns when the task last entered the status, falling
// back to its creation time.
func lastTransition(t *task.Task, status task.Status) time.Time {
	for i := len(t.Events) - 1; i >= 0; i-- {
		ev := t.Events[i]
		if ev.Type == "status_changed" && ev.To == string(status) {
			return ev.Timestamp
		}
	}
	return t.CreatedAt
}
