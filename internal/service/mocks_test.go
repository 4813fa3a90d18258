package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Strob0t/AgentHub/internal/config"
	"github.com/Strob0t/AgentHub/internal/domain"
	"github.com/Strob0t/AgentHub/internal/domain/capability"
	"github.com/Strob0t/AgentHub/internal/domain/message"
	"github.com/Strob0t/AgentHub/internal/domain/receipt"
	"github.com/Strob0t/AgentHub/internal/domain/task"
	"github.com/Strob0t/AgentHub/internal/domain/workflow"
)

// mockMessages implements store.Messages in memory.
type mockMessages struct {
	mu   sync.Mutex
	msgs []message.Message
	seq  int
}

func (m *mockMessages) AddMessage(_ context.Context, msg *message.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.ID == "" {
		m.seq++
		msg.ID = fmt.Sprintf("m%d", m.seq)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	m.msgs = append(m.msgs, *msg)
	return msg.ID, nil
}

func (m *mockMessages) GetMessage(_ context.Context, id string) (*message.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.msgs {
		if m.msgs[i].ID == id {
			cp := m.msgs[i]
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
}

func (m *mockMessages) GetUnreadMessages(_ context.Context, to string) ([]message.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []message.Message
	for _, msg := range m.msgs {
		if msg.To == to && !msg.Read {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *mockMessages) GetMessages(_ context.Context, to string, _, _ int) ([]message.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []message.Message
	for i := len(m.msgs) - 1; i >= 0; i-- {
		if m.msgs[i].To == to {
			out = append(out, m.msgs[i])
		}
	}
	return out, nil
}

func (m *mockMessages) MarkAllRead(_ context.Context, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.msgs {
		if m.msgs[i].To == to {
			m.msgs[i].Read = true
		}
	}
	return nil
}

func (m *mockMessages) CountUnread(_ context.Context, to string) (int, error) {
	msgs, _ := m.GetUnreadMessages(context.Background(), to)
	return len(msgs), nil
}

func (m *mockMessages) GetHandoffs(_ context.Context, to string) ([]message.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []message.Message
	for _, msg := range m.msgs {
		if msg.To == to && msg.Type == message.TypeHandoff {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *mockMessages) ArchiveOld(_ context.Context, _ time.Duration) (int, error) { return 0, nil }

// mockTasks implements store.Tasks in memory.
type mockTasks struct {
	mu    sync.Mutex
	board map[string]*task.Task
}

func newMockTasks() *mockTasks {
	return &mockTasks{board: make(map[string]*task.Task)}
}

func (m *mockTasks) Get(_ context.Context, id string) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.board[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	cp := *t
	cp.Events = append([]task.Event(nil), t.Events...)
	if t.WorkspaceContext != nil {
		wc := *t.WorkspaceContext
		cp.WorkspaceContext = &wc
	}
	return &cp, nil
}

func (m *mockTasks) Put(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.board[t.ID] = &cp
	return nil
}

func (m *mockTasks) List(_ context.Context) ([]task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []task.Task
	for _, t := range m.board {
		out = append(out, *t)
	}
	return out, nil
}

func (m *mockTasks) ListByStatus(_ context.Context, status task.Status) ([]task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []task.Task
	for _, t := range m.board {
		if t.Status == status {
			out = append(out, *t)
		}
	}
	return out, nil
}

// mockTrust implements store.Trust in memory.
type mockTrust struct {
	mu      sync.Mutex
	records map[string]*capability.Trust
}

func newMockTrust() *mockTrust {
	return &mockTrust{records: make(map[string]*capability.Trust)}
}

func (m *mockTrust) Get(_ context.Context, account string) (*capability.Trust, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.records[account]; ok {
		cp := *t
		return &cp, nil
	}
	return &capability.Trust{Account: account, Score: capability.DefaultScore}, nil
}

func (m *mockTrust) Save(_ context.Context, t *capability.Trust) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.records[t.Account] = &cp
	return nil
}

func (m *mockTrust) List(_ context.Context) ([]capability.Trust, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []capability.Trust
	for _, t := range m.records {
		out = append(out, *t)
	}
	return out, nil
}

// mockCaps implements store.Capabilities in memory.
type mockCaps struct {
	mu   sync.Mutex
	caps map[string]*capability.Capability
}

func newMockCaps() *mockCaps {
	return &mockCaps{caps: make(map[string]*capability.Capability)}
}

func (m *mockCaps) Get(_ context.Context, account string) (*capability.Capability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.caps[account]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, fmt.Errorf("capability %s: %w", account, domain.ErrNotFound)
}

func (m *mockCaps) Upsert(_ context.Context, c *capability.Capability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.caps[c.Account] = &cp
	return nil
}

func (m *mockCaps) List(_ context.Context) ([]capability.Capability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []capability.Capability
	for _, c := range m.caps {
		out = append(out, *c)
	}
	return out, nil
}

func (m *mockCaps) RecordOutcome(_ context.Context, account string, accepted bool, durationMin float64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.caps[account]
	if !ok {
		c = &capability.Capability{Account: account}
		m.caps[account] = c
	}
	c.Total++
	if accepted {
		c.Accepted++
		c.AvgDurationMin = durationMin
	}
	c.LastActivity = at
	return nil
}

// mockReceipts implements store.Receipts in memory.
type mockReceipts struct {
	mu       sync.Mutex
	receipts []receipt.Receipt
}

func (m *mockReceipts) Add(_ context.Context, r *receipt.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	m.receipts = append(m.receipts, *r)
	return nil
}

func (m *mockReceipts) ListByTask(_ context.Context, taskID string) ([]receipt.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []receipt.Receipt
	for _, r := range m.receipts {
		if r.TaskID == taskID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockReceipts) ListByAccount(_ context.Context, account string, _ int) ([]receipt.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []receipt.Receipt
	for _, r := range m.receipts {
		if r.Delegatee == account {
			out = append(out, r)
		}
	}
	return out, nil
}

// testHolder returns a config holder with the given features enabled.
func testHolder(features *config.Features) *config.Holder {
	cfg := config.NewDefaults()
	cfg.Features = features
	return config.NewHolder(cfg, "")
}

func validPayload() *message.HandoffPayload {
	return &message.HandoffPayload{
		Goal:               "fix the flaky test",
		AcceptanceCriteria: []string{"test passes ten times"},
		RunCommands:        []string{"go test ./..."},
		BlockedBy:          []string{"none"},
	}
}

// mockWorkflowRuns implements store.WorkflowRuns in memory.
type mockWorkflowRuns struct {
	mu   sync.Mutex
	runs map[string]*workflow.Run
}

func newMockWorkflowRuns() *mockWorkflowRuns {
	return &mockWorkflowRuns{runs: make(map[string]*workflow.Run)}
}

func cloneRun(r *workflow.Run) *workflow.Run {
	cp := *r
	cp.Steps = append([]workflow.StepResult(nil), r.Steps...)
	return &cp
}

func (m *mockWorkflowRuns) Create(_ context.Context, r *workflow.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = fmt.Sprintf("run%d", len(m.runs)+1)
	}
	m.runs[r.ID] = cloneRun(r)
	return nil
}

func (m *mockWorkflowRuns) Update(_ context.Context, r *workflow.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[r.ID]; !ok {
		return fmt.Errorf("workflow run %s: %w", r.ID, domain.ErrNotFound)
	}
	m.runs[r.ID] = cloneRun(r)
	return nil
}

func (m *mockWorkflowRuns) Get(_ context.Context, id string) (*workflow.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("workflow run %s: %w", id, domain.ErrNotFound)
	}
	return cloneRun(r), nil
}

func (m *mockWorkflowRuns) List(_ context.Context, _ int) ([]workflow.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []workflow.Run
	for _, r := range m.runs {
		out = append(out, *cloneRun(r))
	}
	return out, nil
}
