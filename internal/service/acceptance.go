package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Strob0t/AgentHub/internal/adapter/execrunner"
	"github.com/Strob0t/AgentHub/internal/domain/message"
	"github.com/Strob0t/AgentHub/internal/domain/receipt"
	"github.com/Strob0t/AgentHub/internal/domain/task"
	"github.com/Strob0t/AgentHub/internal/port/store"
)

// FrictionVerdict is the result of the cognitive-friction check.
type FrictionVerdict struct {
	Blocked bool
	Level   string // low | medium | high
	Reason  string
}

// frictionBlockThreshold is the score at which auto-acceptance is
// withheld even without a hard blocker.
const frictionBlockThreshold = 5

// CheckFriction scores a handoff's enriched characteristics. Critical,
// irreversible, or subjective work is never auto-accepted; a high
// combined score blocks it too.
func CheckFriction(p *message.HandoffPayload) FrictionVerdict {
	switch {
	case p.Criticality == message.LevelCritical:
		return FrictionVerdict{Blocked: true, Level: "high", Reason: "criticality is critical"}
	case p.Reversibility == message.ReversibilityIrreversible:
		return FrictionVerdict{Blocked: true, Level: "high", Reason: "work is irreversible"}
	case p.Verifiability == message.VerifiabilitySubjective:
		return FrictionVerdict{Blocked: true, Level: "high", Reason: "acceptance criteria are subjective"}
	}

	score := levelScore(p.Criticality) + levelScore(p.Uncertainty) + levelScore(p.Complexity)
	if p.Reversibility == message.ReversibilityPartial {
		score += 2
	}
	if p.Verifiability == message.VerifiabilityNeedsReview {
		score++
	}

	level := "low"
	switch {
	case score >= frictionBlockThreshold:
		level = "high"
	case score >= 3:
		level = "medium"
	}
	if score >= frictionBlockThreshold {
		return FrictionVerdict{Blocked: true, Level: level, Reason: "combined friction score too high for auto-acceptance"}
	}
	return FrictionVerdict{Level: level}
}

func levelScore(level string) int {
	switch level {
	case message.LevelMedium:
		return 1
	case message.LevelHigh:
		return 2
	case message.LevelCritical:
		return 3
	}
	return 0
}

// AcceptanceService runs a handoff's run_commands in the task's
// workspace and resolves ready_for_review into accepted or rejected.
type AcceptanceService struct {
	messages store.Messages
	runner   *execrunner.Runner
	tasks    *TaskService
}

// NewAcceptanceService creates an AcceptanceService; wire it back into
// the TaskService with SetAcceptance.
func NewAcceptanceService(messages store.Messages, runner *execrunner.Runner, tasks *TaskService) *AcceptanceService {
	return &AcceptanceService{messages: messages, runner: runner, tasks: tasks}
}

// findPayload locates the handoff payload for a task: by id first, then
// by matching the workspace branch or project dir among the assignee's
// handoffs. The fallback is ambiguous when two tasks share a branch; it
// returns the earliest match.
func (s *AcceptanceService) findPayload(ctx context.Context, t *task.Task) *message.HandoffPayload {
	if msg, err := s.messages.GetMessage(ctx, t.ID); err == nil && msg.Type == message.TypeHandoff {
		if p, err := message.ParsePayload(msg.Content); err == nil {
			return p
		}
	}
	if t.WorkspaceContext == nil {
		return nil
	}

	handoffs, err := s.messages.GetHandoffs(ctx, t.Assignee)
	if err != nil {
		return nil
	}
	for i := range handoffs {
		m := &handoffs[i]
		if m.Context["branch"] == t.WorkspaceContext.Branch ||
			(m.Context["projectDir"] != "" && strings.HasPrefix(t.WorkspaceContext.WorkspacePath, m.Context["projectDir"])) {
			if p, err := message.ParsePayload(m.Content); err == nil {
				return p
			}
		}
	}
	return nil
}

// RunAsync starts the acceptance run in the background. The caller's
// reply has already gone out with acceptance "running".
func (s *AcceptanceService) RunAsync(t *task.Task) {
	go s.run(t)
}

func (s *AcceptanceService) run(snapshot *task.Task) {
	ctx, cancel := context.WithTimeout(context.Background(), execrunner.DefaultOverallTimeout)
	defer cancel()

	payload := s.findPayload(ctx, snapshot)
	if payload == nil {
		slog.Warn("auto-acceptance found no handoff payload", "task_id", snapshot.ID)
		return
	}
	if len(payload.RunCommands) == 0 {
		return
	}

	results, err := s.runner.RunAll(ctx, snapshot.WorkspaceContext.WorkspacePath, payload.RunCommands)
	if err != nil {
		s.finish(ctx, snapshot.ID, false, fmt.Sprintf("acceptance run aborted: %v", err))
		return
	}

	passed := true
	var failing []string
	for _, r := range results {
		if !r.Passed() {
			passed = false
			failing = append(failing, fmt.Sprintf("%s (exit %d)", r.Command, r.ExitCode))
		}
	}
	if len(results) < len(payload.RunCommands) {
		passed = false
		failing = append(failing, "overall acceptance deadline exceeded")
	}

	reason := ""
	if !passed {
		reason = "failing commands: " + strings.Join(failing, "; ")
	}
	s.finish(ctx, snapshot.ID, passed, reason)
}

// finish persists the verdict and triggers the terminal side effects
// with the auto-acceptance method.
func (s *AcceptanceService) finish(ctx context.Context, taskID string, passed bool, reason string) {
	t, err := s.tasks.tasks.Get(ctx, taskID)
	if err != nil {
		slog.Warn("auto-acceptance lost its task", "task_id", taskID, "error", err)
		return
	}

	to := task.StatusRejected
	verdict := receipt.VerdictRejected
	if passed {
		to = task.StatusAccepted
		verdict = receipt.VerdictAccepted
		reason = ""
	}
	if !passed && reason == "" {
		reason = "acceptance commands failed"
	}

	if err := t.Transition(to, reason, time.Now().UTC()); err != nil {
		slog.Warn("auto-acceptance transition refused", "task_id", taskID, "error", err)
		return
	}
	if err := s.tasks.tasks.Put(ctx, t); err != nil {
		slog.Warn("auto-acceptance persist failed", "task_id", taskID, "error", err)
		return
	}

	s.tasks.finishTask(ctx, t, verdict, receipt.MethodAutoAcceptance, reason)
	slog.Info("auto-acceptance finished", "task_id", taskID, "passed", passed)
}
