package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Strob0t/AgentHub/internal/adapter/execrunner"
	"github.com/Strob0t/AgentHub/internal/config"
	"github.com/Strob0t/AgentHub/internal/domain/message"
	"github.com/Strob0t/AgentHub/internal/domain/receipt"
	"github.com/Strob0t/AgentHub/internal/domain/task"
)

func TestCheckFrictionBlockers(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*message.HandoffPayload)
		blocked bool
	}{
		{"plain", func(*message.HandoffPayload) {}, false},
		{"critical", func(p *message.HandoffPayload) { p.Criticality = message.LevelCritical }, true},
		{"irreversible", func(p *message.HandoffPayload) { p.Reversibility = message.ReversibilityIrreversible }, true},
		{"subjective", func(p *message.HandoffPayload) { p.Verifiability = message.VerifiabilitySubjective }, true},
		{"high everything", func(p *message.HandoffPayload) {
			p.Criticality = message.LevelHigh
			p.Uncertainty = message.LevelHigh
			p.Complexity = message.LevelHigh
		}, true},
		{"mild", func(p *message.HandoffPayload) { p.Complexity = message.LevelMedium }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPayload()
			tt.mutate(p)
			got := CheckFriction(p)
			if got.Blocked != tt.blocked {
				t.Fatalf("blocked = %v, want %v (level %s, reason %s)", got.Blocked, tt.blocked, got.Level, got.Reason)
			}
		})
	}
}

// acceptanceFixture wires a TaskService with auto-acceptance over a
// real command runner and a temp workspace.
func acceptanceFixture(t *testing.T, runCommands []string) (*taskFixture, string) {
	t.Helper()
	f := newTaskFixture(&config.Features{AutoAcceptance: true, Trust: true, CognitiveFriction: true})
	runner := execrunner.New()
	runner.CommandTimeout = 30 * time.Second
	f.svc.SetAcceptance(NewAcceptanceService(f.messages, runner, f.svc))

	dir := t.TempDir()
	payload := validPayload()
	payload.RunCommands = runCommands
	content, _ := payloadJSON(payload)
	_, _ = f.messages.AddMessage(context.Background(), &message.Message{
		ID: "t1", From: "alice", To: "bob", Type: message.TypeHandoff, Content: content,
	})
	_ = f.tasks.Put(context.Background(), &task.Task{
		ID: "t1", Status: task.StatusInProgress, Assignee: "bob", CreatedAt: time.Now().UTC(),
	})
	return f, dir
}

func payloadJSON(p *message.HandoffPayload) (string, error) {
	data, err := json.Marshal(p)
	return string(data), err
}

func TestAutoAcceptancePass(t *testing.T) {
	f, dir := acceptanceFixture(t, []string{"echo hello", "echo world"})
	ctx := context.Background()

	before, _ := f.trust.Get(ctx, "bob")

	res, err := f.svc.UpdateStatus(ctx, "bob", "t1", task.StatusReadyForReview, "", dir, "main", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Acceptance != "running" {
		t.Fatalf("first reply must be running, got %q", res.Acceptance)
	}

	waitForStatus(t, f.tasks, "t1", task.StatusAccepted)

	receipts, _ := f.receipts.ListByTask(ctx, "t1")
	if len(receipts) != 1 || receipts[0].Method != receipt.MethodAutoAcceptance {
		t.Fatalf("expected an auto-acceptance receipt, got %+v", receipts)
	}
	after, _ := f.trust.Get(ctx, "bob")
	if after.Score <= before.Score {
		t.Fatalf("trust must rise after a passing run: %d -> %d", before.Score, after.Score)
	}
}

func TestAutoAcceptanceFailingCommandRejects(t *testing.T) {
	f, dir := acceptanceFixture(t, []string{"echo ok", "false"})
	ctx := context.Background()

	res, err := f.svc.UpdateStatus(ctx, "bob", "t1", task.StatusReadyForReview, "", dir, "main", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Acceptance != "running" {
		t.Fatalf("expected running, got %q", res.Acceptance)
	}

	waitForStatus(t, f.tasks, "t1", task.StatusRejected)

	got, _ := f.tasks.Get(ctx, "t1")
	last := got.Events[len(got.Events)-1]
	if last.Reason == "" {
		t.Fatal("rejection reason must summarise the failing commands")
	}
}

func TestAutoAcceptanceBlockedByFriction(t *testing.T) {
	f := newTaskFixture(&config.Features{AutoAcceptance: true, CognitiveFriction: true})
	runner := execrunner.New()
	f.svc.SetAcceptance(NewAcceptanceService(f.messages, runner, f.svc))

	payload := validPayload()
	payload.Criticality = message.LevelCritical
	content, _ := payloadJSON(payload)
	_, _ = f.messages.AddMessage(context.Background(), &message.Message{
		ID: "t1", From: "alice", To: "bob", Type: message.TypeHandoff, Content: content,
	})
	_ = f.tasks.Put(context.Background(), &task.Task{
		ID: "t1", Status: task.StatusInProgress, Assignee: "bob", CreatedAt: time.Now().UTC(),
	})

	res, err := f.svc.UpdateStatus(context.Background(), "bob", "t1", task.StatusReadyForReview, "", t.TempDir(), "main", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Acceptance != "blocked" {
		t.Fatalf("critical work must block auto-acceptance, got %q", res.Acceptance)
	}
	if res.Reason == "" || res.FrictionLevel == "" {
		t.Fatalf("blocked reply must carry reason and friction level: %+v", res)
	}

	// The task stays in review for a human.
	got, _ := f.tasks.Get(context.Background(), "t1")
	if got.Status != task.StatusReadyForReview {
		t.Fatalf("task must stay ready_for_review, got %s", got.Status)
	}
}

func waitForStatus(t *testing.T, tasks *mockTasks, id string, want task.Status) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		got, err := tasks.Get(context.Background(), id)
		if err == nil && got.Status == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	got, _ := tasks.Get(context.Background(), id)
	t.Fatalf("task never reached %s, still %s", want, got.Status)
}
