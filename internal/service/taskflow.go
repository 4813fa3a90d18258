package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/Strob0t/AgentHub/internal/bus"
	"github.com/Strob0t/AgentHub/internal/config"
	"github.com/Strob0t/AgentHub/internal/domain"
	"github.com/Strob0t/AgentHub/internal/domain/activity"
	"github.com/Strob0t/AgentHub/internal/domain/capability"
	"github.com/Strob0t/AgentHub/internal/domain/message"
	"github.com/Strob0t/AgentHub/internal/domain/receipt"
	"github.com/Strob0t/AgentHub/internal/domain/task"
	"github.com/Strob0t/AgentHub/internal/port/store"
)

// defaultSLAWindow applies when a handoff carries no duration estimate.
const defaultSLAWindow = 60 * time.Minute

// OutcomeHook receives accepted/rejected outcomes after they commit;
// the GitHub integration implements it. Calls must not block the
// request path.
type OutcomeHook interface {
	NotifyTaskOutcome(taskID, assignee, status, reason string)
}

// Progress is the latest reported progress for a task.
type Progress struct {
	Percent int       `json:"percent"`
	Note    string    `json:"note,omitempty"`
	Account string    `json:"account"`
	At      time.Time `json:"at"`
}

// ProgressTracker keeps per-task progress in memory for the SLA scan.
type ProgressTracker struct {
	mu      sync.Mutex
	entries map[string]Progress
}

// NewProgressTracker creates an empty tracker.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{entries: make(map[string]Progress)}
}

// Record stores the latest progress for a task.
func (p *ProgressTracker) Record(taskID string, entry Progress) {
	p.mu.Lock()
	p.entries[taskID] = entry
	p.mu.Unlock()
}

// Latest returns the latest progress for a task.
func (p *ProgressTracker) Latest(taskID string) (Progress, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[taskID]
	return e, ok
}

// Forget drops a task's progress after it leaves in_progress.
func (p *ProgressTracker) Forget(taskID string) {
	p.mu.Lock()
	delete(p.entries, taskID)
	p.mu.Unlock()
}

// UpdateResult is the reply to update_task_status.
type UpdateResult struct {
	Task          *task.Task `json:"task"`
	Acceptance    string     `json:"acceptance,omitempty"` // "running" | "blocked"
	Reason        string     `json:"reason,omitempty"`
	FrictionLevel string     `json:"frictionLevel,omitempty"`
}

// TaskService drives the task lifecycle: transitions, receipts, trust
// updates, and the auto-acceptance kickoff.
type TaskService struct {
	tasks      store.Tasks
	messages   store.Messages
	receipts   store.Receipts
	caps       store.Capabilities
	trust      *TrustService
	bus        *bus.Bus
	holder     *config.Holder
	progress   *ProgressTracker
	acceptance *AcceptanceService // nil until SetAcceptance; the autoAcceptance flag is checked per call
	hook       OutcomeHook        // nil unless SetOutcomeHook; the githubIntegration flag is checked per call
}

// NewTaskService creates a TaskService.
func NewTaskService(tasks store.Tasks, messages store.Messages, receipts store.Receipts, caps store.Capabilities, trust *TrustService, b *bus.Bus, holder *config.Holder, progress *ProgressTracker) *TaskService {
	return &TaskService{
		tasks:    tasks,
		messages: messages,
		receipts: receipts,
		caps:     caps,
		trust:    trust,
		bus:      b,
		holder:   holder,
		progress: progress,
	}
}

// SetAcceptance wires the auto-acceptance runner.
func (s *TaskService) SetAcceptance(a *AcceptanceService) { s.acceptance = a }

// SetOutcomeHook wires the post-commit outcome hook.
func (s *TaskService) SetOutcomeHook(h OutcomeHook) { s.hook = h }

// Get returns a task by id.
func (s *TaskService) Get(ctx context.Context, id string) (*task.Task, error) {
	return s.tasks.Get(ctx, id)
}

// UpdateStatus applies a lifecycle transition requested by caller.
func (s *TaskService) UpdateStatus(ctx context.Context, caller, taskID string, newStatus task.Status, reason, wsPath, branch, wsID string) (*UpdateResult, error) {
	if !newStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalid, newStatus)
	}

	t, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := t.Transition(newStatus, reason, now); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalid, err)
	}
	if newStatus == task.StatusReadyForReview && wsPath != "" {
		t.AttachWorkspace(task.WorkspaceContext{WorkspacePath: wsPath, Branch: branch, WorkspaceID: wsID})
	}

	if err := s.tasks.Put(ctx, t); err != nil {
		return nil, err
	}

	// Events fire strictly after the board commits.
	switch newStatus {
	case task.StatusInProgress:
		s.bus.Emit(bus.Event{Kind: activity.KindTaskStarted, Account: t.Assignee, TaskID: t.ID})
	case task.StatusReadyForReview:
		s.progress.Forget(t.ID)
		s.bus.Emit(bus.Event{
			Kind: activity.KindCheckpointReached, Account: t.Assignee, TaskID: t.ID,
			Payload: map[string]string{"percent": "100"},
		})
		return s.maybeAutoAccept(ctx, t)
	case task.StatusAccepted:
		s.finishTask(ctx, t, receipt.VerdictAccepted, receipt.MethodHumanReview, reason)
	case task.StatusRejected:
		s.finishTask(ctx, t, receipt.VerdictRejected, receipt.MethodHumanReview, reason)
	}

	return &UpdateResult{Task: t}, nil
}

// finishTask runs the post-commit consequences of a terminal review:
// completion event, trust update, verification receipt, capability
// counters, and the async outcome hook.
func (s *TaskService) finishTask(ctx context.Context, t *task.Task, verdict receipt.Verdict, method receipt.Method, reason string) {
	passed := verdict == receipt.VerdictAccepted
	result := "failure"
	outcome := capability.OutcomeRejected
	if passed {
		result = "success"
		outcome = capability.OutcomeCompleted
	} else if method == receipt.MethodAutoAcceptance {
		outcome = capability.OutcomeFailed
	}

	s.bus.Emit(bus.Event{
		Kind: activity.KindTaskCompleted, Account: t.Assignee, TaskID: t.ID,
		Payload: map[string]string{"result": result},
	})

	if s.holder.Get().FeatureEnabled("trust") {
		if _, err := s.trust.ApplyOutcome(ctx, t.Assignee, outcome, s.withinSLA(ctx, t), t.ID); err != nil {
			slog.Warn("trust update failed", "task_id", t.ID, "error", err)
		}
	}

	delegator, specPayload := s.handoffOrigin(ctx, t.ID)
	if err := s.receipts.Add(ctx, &receipt.Receipt{
		TaskID:      t.ID,
		Delegator:   delegator,
		Delegatee:   t.Assignee,
		SpecPayload: specPayload,
		Verdict:     verdict,
		Method:      method,
	}); err != nil {
		slog.Warn("receipt write failed", "task_id", t.ID, "error", err)
	}

	s.bus.Emit(bus.Event{
		Kind: activity.KindTaskVerified, Account: t.Assignee, TaskID: t.ID,
		Payload: map[string]string{"passed": strconv.FormatBool(passed), "method": string(method)},
	})

	durationMin := time.Since(t.CreatedAt).Minutes()
	if err := s.caps.RecordOutcome(ctx, t.Assignee, passed, durationMin, time.Now().UTC()); err != nil {
		slog.Warn("capability counters update failed", "task_id", t.ID, "error", err)
	}

	if s.hook != nil && s.holder.Get().FeatureEnabled("githubIntegration") {
		s.hook.NotifyTaskOutcome(t.ID, t.Assignee, string(t.Status), reason)
	}
}

// withinSLA reports whether the task finished inside its estimate (or
// the default window when the handoff carries none).
func (s *TaskService) withinSLA(ctx context.Context, t *task.Task) bool {
	window := defaultSLAWindow
	if msg, err := s.messages.GetMessage(ctx, t.ID); err == nil {
		if p, err := message.ParsePayload(msg.Content); err == nil && p.EstimatedMinutes > 0 {
			window = time.Duration(p.EstimatedMinutes) * time.Minute
		}
	}
	return time.Since(t.CreatedAt) <= window
}

// handoffOrigin returns the delegator and verbatim payload of the
// handoff that created the task.
func (s *TaskService) handoffOrigin(ctx context.Context, taskID string) (string, string) {
	msg, err := s.messages.GetMessage(ctx, taskID)
	if err != nil {
		return "", ""
	}
	return msg.From, msg.Content
}

// maybeAutoAccept applies the cognitive-friction gate and, when clear,
// kicks off the asynchronous acceptance run.
func (s *TaskService) maybeAutoAccept(ctx context.Context, t *task.Task) (*UpdateResult, error) {
	res := &UpdateResult{Task: t}
	cfg := s.holder.Get()
	if s.acceptance == nil || !cfg.FeatureEnabled("autoAcceptance") || t.WorkspaceContext == nil {
		return res, nil
	}

	payload := s.acceptance.findPayload(ctx, t)
	if payload != nil && cfg.FeatureEnabled("cognitiveFriction") {
		if verdict := CheckFriction(payload); verdict.Blocked {
			res.Acceptance = "blocked"
			res.Reason = verdict.Reason
			res.FrictionLevel = verdict.Level
			return res, nil
		}
	}

	res.Acceptance = "running"
	s.acceptance.RunAsync(t)
	return res, nil
}

// ReportProgress records task progress and emits PROGRESS_UPDATE.
func (s *TaskService) ReportProgress(ctx context.Context, account, taskID string, percent int, note string) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: Invalid field: percent", domain.ErrInvalid)
	}
	if _, err := s.tasks.Get(ctx, taskID); err != nil {
		return err
	}
	s.progress.Record(taskID, Progress{Percent: percent, Note: note, Account: account, At: time.Now().UTC()})
	s.bus.Emit(bus.Event{
		Kind: activity.KindProgressUpdate, Account: account, TaskID: taskID,
		Payload: map[string]string{"percent": strconv.Itoa(percent), "note": note},
	})
	return nil
}
