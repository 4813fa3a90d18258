package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Strob0t/AgentHub/internal/bus"
	"github.com/Strob0t/AgentHub/internal/domain/activity"
	"github.com/Strob0t/AgentHub/internal/domain/message"
	"github.com/Strob0t/AgentHub/internal/domain/task"
)

type slaFixture struct {
	sla      *SLACoordinator
	tasks    *mockTasks
	messages *mockMessages
	progress *ProgressTracker
	events   *[]bus.Event
	now      time.Time
}

func newSLAFixture(t *testing.T) *slaFixture {
	t.Helper()
	f := &slaFixture{
		tasks:    newMockTasks(),
		messages: &mockMessages{},
		progress: NewProgressTracker(),
		now:      time.Now().UTC(),
	}
	b := bus.New()
	var events []bus.Event
	f.events = &events
	b.Subscribe(activity.KindSLAWarning, func(ev bus.Event) { events = append(events, ev) })
	b.Subscribe(activity.KindSLABreach, func(ev bus.Event) { events = append(events, ev) })
	f.sla = NewSLACoordinator(f.tasks, f.messages, f.progress, b)
	f.sla.now = func() time.Time { return f.now }
	return f
}

func (f *slaFixture) seed(t *testing.T, id string, status task.Status, age time.Duration, payload *message.HandoffPayload) {
	t.Helper()
	if payload != nil {
		content, _ := json.Marshal(payload)
		_, _ = f.messages.AddMessage(context.Background(), &message.Message{
			ID: id, From: "alice", To: "bob", Type: message.TypeHandoff, Content: string(content),
		})
	}
	created := f.now.Add(-age)
	tk := &task.Task{ID: id, Status: status, Assignee: "bob", CreatedAt: created}
	if status == task.StatusReadyForReview {
		tk.Events = []task.Event{{Type: "status_changed", To: string(status), Timestamp: created}}
	}
	_ = f.tasks.Put(context.Background(), tk)
}

func findAction(actions []SLAAction, taskID, action string) bool {
	for _, a := range actions {
		if a.TaskID == taskID && a.Action == action {
			return true
		}
	}
	return false
}

func TestScanPingsSilentTask(t *testing.T) {
	f := newSLAFixture(t)
	f.seed(t, "t1", task.StatusInProgress, 40*time.Minute, validPayload())

	actions, err := f.sla.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !findAction(actions, "t1", "ping") {
		t.Fatalf("expected ping, got %+v", actions)
	}
}

func TestScanSkipsTaskWithRecentProgress(t *testing.T) {
	f := newSLAFixture(t)
	f.seed(t, "t1", task.StatusInProgress, 40*time.Minute, validPayload())
	f.progress.Record("t1", Progress{Percent: 50, At: f.now.Add(-5 * time.Minute)})

	actions, _ := f.sla.Scan(context.Background())
	if findAction(actions, "t1", "ping") {
		t.Fatal("recent progress must suppress the ping")
	}
}

func TestScanReassignsVeryOldTask(t *testing.T) {
	f := newSLAFixture(t)
	f.seed(t, "t1", task.StatusInProgress, 90*time.Minute, validPayload())

	actions, _ := f.sla.Scan(context.Background())
	if !findAction(actions, "t1", "reassign") {
		t.Fatalf("expected reassign, got %+v", actions)
	}
}

func TestScanEscalatesBlockedTask(t *testing.T) {
	f := newSLAFixture(t)
	payload := validPayload()
	payload.BlockedBy = []string{"infra migration"}
	f.seed(t, "t1", task.StatusInProgress, 20*time.Minute, payload)

	actions, _ := f.sla.Scan(context.Background())
	if !findAction(actions, "t1", "escalate") {
		t.Fatalf("expected escalate, got %+v", actions)
	}
}

func TestScanQuarantinesCriticalBehindSchedule(t *testing.T) {
	f := newSLAFixture(t)
	payload := validPayload()
	payload.Criticality = message.LevelCritical
	payload.EstimatedMinutes = 10
	f.seed(t, "t1", task.StatusInProgress, 20*time.Minute, payload)

	actions, _ := f.sla.Scan(context.Background())
	if !findAction(actions, "t1", "quarantine") {
		t.Fatalf("expected quarantine, got %+v", actions)
	}
}

func TestScanPingsReviewer(t *testing.T) {
	f := newSLAFixture(t)
	f.seed(t, "t1", task.StatusReadyForReview, 15*time.Minute, validPayload())

	actions, _ := f.sla.Scan(context.Background())
	if !findAction(actions, "t1", "ping_reviewer") {
		t.Fatalf("expected ping_reviewer, got %+v", actions)
	}
}

func TestScanEmitsEventsButNeverMutates(t *testing.T) {
	f := newSLAFixture(t)
	f.seed(t, "t1", task.StatusInProgress, 90*time.Minute, validPayload())

	if _, err := f.sla.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(*f.events) == 0 {
		t.Fatal("expected SLA events")
	}

	got, _ := f.tasks.Get(context.Background(), "t1")
	if got.Status != task.StatusInProgress {
		t.Fatal("the coordinator must never mutate tasks")
	}
}

func TestScanQuietBoard(t *testing.T) {
	f := newSLAFixture(t)
	f.seed(t, "t1", task.StatusInProgress, 5*time.Minute, validPayload())

	actions, err := f.sla.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 0 {
		t.Fatalf("young healthy task must produce no actions, got %+v", actions)
	}
}
