package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Strob0t/AgentHub/internal/bus"
	"github.com/Strob0t/AgentHub/internal/config"
	"github.com/Strob0t/AgentHub/internal/domain/activity"
	"github.com/Strob0t/AgentHub/internal/domain/capability"
	"github.com/Strob0t/AgentHub/internal/domain/message"
	"github.com/Strob0t/AgentHub/internal/domain/receipt"
	"github.com/Strob0t/AgentHub/internal/domain/task"
)

type taskFixture struct {
	svc      *TaskService
	tasks    *mockTasks
	messages *mockMessages
	receipts *mockReceipts
	trust    *mockTrust
	bus      *bus.Bus
}

func newTaskFixture(features *config.Features) *taskFixture {
	f := &taskFixture{
		tasks:    newMockTasks(),
		messages: &mockMessages{},
		receipts: &mockReceipts{},
		trust:    newMockTrust(),
		bus:      bus.New(),
	}
	holder := testHolder(features)
	trustSvc := NewTrustService(f.trust, f.bus, nil)
	f.svc = NewTaskService(f.tasks, f.messages, f.receipts, newMockCaps(), trustSvc, f.bus, holder, NewProgressTracker())
	return f
}

// seedTask stores a handoff message and its task.
func (f *taskFixture) seedTask(t *testing.T, id string, status task.Status) *task.Task {
	t.Helper()
	content, _ := json.Marshal(validPayload())
	_, err := f.messages.AddMessage(context.Background(), &message.Message{
		ID: id, From: "alice", To: "bob", Type: message.TypeHandoff, Content: string(content),
	})
	if err != nil {
		t.Fatal(err)
	}
	tk := &task.Task{ID: id, Title: "seeded", Status: status, Assignee: "bob", CreatedAt: time.Now().UTC()}
	if err := f.tasks.Put(context.Background(), tk); err != nil {
		t.Fatal(err)
	}
	return tk
}

func TestUpdateStatusHappyPath(t *testing.T) {
	f := newTaskFixture(&config.Features{Trust: true})
	f.seedTask(t, "t1", task.StatusTodo)
	ctx := context.Background()

	for _, step := range []task.Status{task.StatusInProgress, task.StatusReadyForReview, task.StatusAccepted} {
		if _, err := f.svc.UpdateStatus(ctx, "bob", "t1", step, "", "", "", ""); err != nil {
			t.Fatalf("transition to %s: %v", step, err)
		}
	}

	got, _ := f.tasks.Get(ctx, "t1")
	if got.Status != task.StatusAccepted {
		t.Fatalf("expected accepted, got %s", got.Status)
	}

	// The event log must show ready_for_review strictly before accepted.
	var reviewIdx, acceptIdx int = -1, -1
	for i, ev := range got.Events {
		if ev.Type != "status_changed" {
			continue
		}
		switch ev.To {
		case string(task.StatusReadyForReview):
			reviewIdx = i
		case string(task.StatusAccepted):
			acceptIdx = i
		}
	}
	if reviewIdx < 0 || acceptIdx < 0 || acceptIdx <= reviewIdx {
		t.Fatalf("event ordering wrong: review=%d accept=%d", reviewIdx, acceptIdx)
	}
}

func TestUpdateStatusRejectsInvalidTransition(t *testing.T) {
	f := newTaskFixture(nil)
	f.seedTask(t, "t1", task.StatusTodo)

	if _, err := f.svc.UpdateStatus(context.Background(), "bob", "t1", task.StatusAccepted, "", "", "", ""); err == nil {
		t.Fatal("todo → accepted must be rejected")
	}
}

func TestUpdateStatusRejectedNeedsReason(t *testing.T) {
	f := newTaskFixture(nil)
	f.seedTask(t, "t1", task.StatusReadyForReview)

	if _, err := f.svc.UpdateStatus(context.Background(), "bob", "t1", task.StatusRejected, "", "", "", ""); err == nil {
		t.Fatal("rejection without reason must fail")
	}
	if _, err := f.svc.UpdateStatus(context.Background(), "bob", "t1", task.StatusRejected, "does not build", "", "", ""); err != nil {
		t.Fatalf("rejection with reason should pass: %v", err)
	}
}

func TestUpdateStatusUnknownStatus(t *testing.T) {
	f := newTaskFixture(nil)
	f.seedTask(t, "t1", task.StatusTodo)

	if _, err := f.svc.UpdateStatus(context.Background(), "bob", "t1", task.Status("bogus"), "", "", "", ""); err == nil {
		t.Fatal("unknown status must be rejected")
	}
}

func TestAcceptedCreatesReceiptAndRaisesTrust(t *testing.T) {
	f := newTaskFixture(&config.Features{Trust: true})
	f.seedTask(t, "t1", task.StatusReadyForReview)
	ctx := context.Background()

	before, _ := f.trust.Get(ctx, "bob")

	if _, err := f.svc.UpdateStatus(ctx, "alice", "t1", task.StatusAccepted, "", "", "", ""); err != nil {
		t.Fatal(err)
	}

	receipts, _ := f.receipts.ListByTask(ctx, "t1")
	if len(receipts) != 1 {
		t.Fatalf("expected 1 receipt, got %d", len(receipts))
	}
	r := receipts[0]
	if r.Method != receipt.MethodHumanReview || r.Verdict != receipt.VerdictAccepted {
		t.Fatalf("unexpected receipt: %+v", r)
	}
	if r.Delegator != "alice" || r.Delegatee != "bob" {
		t.Fatalf("unexpected receipt parties: %+v", r)
	}
	if r.SpecPayload == "" {
		t.Fatal("receipt must carry the verbatim handoff payload")
	}

	after, _ := f.trust.Get(ctx, "bob")
	if after.Score <= before.Score {
		t.Fatalf("trust should rise on acceptance: %d -> %d", before.Score, after.Score)
	}
}

func TestRejectedLowersTrust(t *testing.T) {
	f := newTaskFixture(&config.Features{Trust: true})
	f.seedTask(t, "t1", task.StatusReadyForReview)
	ctx := context.Background()

	before, _ := f.trust.Get(ctx, "bob")
	if _, err := f.svc.UpdateStatus(ctx, "alice", "t1", task.StatusRejected, "broken", "", "", ""); err != nil {
		t.Fatal(err)
	}
	after, _ := f.trust.Get(ctx, "bob")
	if after.Score >= before.Score {
		t.Fatalf("trust should fall on rejection: %d -> %d", before.Score, after.Score)
	}
}

func TestReadyForReviewAttachesWorkspaceOnce(t *testing.T) {
	f := newTaskFixture(nil)
	f.seedTask(t, "t1", task.StatusInProgress)
	ctx := context.Background()

	if _, err := f.svc.UpdateStatus(ctx, "bob", "t1", task.StatusReadyForReview, "", "/wt/1", "fix", "ws1"); err != nil {
		t.Fatal(err)
	}
	got, _ := f.tasks.Get(ctx, "t1")
	if got.WorkspaceContext == nil || got.WorkspaceContext.WorkspacePath != "/wt/1" {
		t.Fatalf("workspace context missing: %+v", got.WorkspaceContext)
	}

	// A later attempt must not overwrite it.
	got.AttachWorkspace(task.WorkspaceContext{WorkspacePath: "/other"})
	if got.WorkspaceContext.WorkspacePath != "/wt/1" {
		t.Fatal("workspace context must not be overwritten")
	}
}

func TestStatusEventsEmitted(t *testing.T) {
	f := newTaskFixture(nil)
	f.seedTask(t, "t1", task.StatusTodo)
	ctx := context.Background()

	var kinds []activity.Kind
	f.bus.SubscribeAll(func(ev bus.Event) { kinds = append(kinds, ev.Kind) })

	_, _ = f.svc.UpdateStatus(ctx, "bob", "t1", task.StatusInProgress, "", "", "", "")
	_, _ = f.svc.UpdateStatus(ctx, "bob", "t1", task.StatusReadyForReview, "", "", "", "")

	want := map[activity.Kind]bool{}
	for _, k := range kinds {
		want[k] = true
	}
	if !want[activity.KindTaskStarted] {
		t.Fatal("expected TASK_STARTED")
	}
	if !want[activity.KindCheckpointReached] {
		t.Fatal("expected CHECKPOINT_REACHED")
	}
}

func TestReportProgress(t *testing.T) {
	f := newTaskFixture(nil)
	f.seedTask(t, "t1", task.StatusInProgress)
	ctx := context.Background()

	if err := f.svc.ReportProgress(ctx, "bob", "t1", 120, ""); err == nil {
		t.Fatal("percent above 100 must be rejected")
	}
	if err := f.svc.ReportProgress(ctx, "bob", "missing", 10, ""); err == nil {
		t.Fatal("unknown task must be rejected")
	}
	if err := f.svc.ReportProgress(ctx, "bob", "t1", 40, "halfway there"); err != nil {
		t.Fatal(err)
	}
	p, ok := f.svc.progress.Latest("t1")
	if !ok || p.Percent != 40 {
		t.Fatalf("progress not recorded: %+v", p)
	}
}

func TestTrustApplyBounds(t *testing.T) {
	tr := &capability.Trust{Account: "a", Score: 99}
	tr.Apply(capability.OutcomeCompleted, true, time.Now())
	if tr.Score != 100 {
		t.Fatalf("score must clamp to 100, got %d", tr.Score)
	}

	tr.Score = 2
	tr.Apply(capability.OutcomeFailed, false, time.Now())
	if tr.Score != 0 {
		t.Fatalf("score must clamp to 0, got %d", tr.Score)
	}

	tr.Score = 50
	before := tr.Score
	tr.Apply(capability.OutcomeCompleted, false, time.Now())
	if tr.Score < before {
		t.Fatal("completed must never decrease trust")
	}
	before = tr.Score
	tr.Apply(capability.OutcomeRejected, false, time.Now())
	if tr.Score > before {
		t.Fatal("rejected must never increase trust")
	}
}
