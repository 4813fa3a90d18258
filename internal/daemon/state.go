// Package daemon wires the stores, services, and runtime structures
// together and serves the authenticated UNIX-socket protocol.
package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Strob0t/AgentHub/internal/adapter/cache"
	"github.com/Strob0t/AgentHub/internal/adapter/execrunner"
	"github.com/Strob0t/AgentHub/internal/adapter/git"
	"github.com/Strob0t/AgentHub/internal/adapter/github"
	"github.com/Strob0t/AgentHub/internal/adapter/jsonfile"
	"github.com/Strob0t/AgentHub/internal/adapter/sqlite"
	"github.com/Strob0t/AgentHub/internal/bus"
	"github.com/Strob0t/AgentHub/internal/config"
	"github.com/Strob0t/AgentHub/internal/domain/activity"
	"github.com/Strob0t/AgentHub/internal/resilience"
	"github.com/Strob0t/AgentHub/internal/service"
)

// breaker settings for the per-account circuit breaker.
const (
	breakerMaxFailures = 3
	breakerCooldown    = 10 * time.Minute
)

// connTable tracks which accounts hold live connections. A reconnect
// replaces the previous entry.
type connTable struct {
	mu    sync.RWMutex
	conns map[string]*Client
}

func newConnTable() *connTable {
	return &connTable{conns: make(map[string]*Client)}
}

func (t *connTable) add(c *Client) {
	t.mu.Lock()
	t.conns[c.Account] = c
	t.mu.Unlock()
}

func (t *connTable) remove(c *Client) {
	t.mu.Lock()
	if t.conns[c.Account] == c {
		delete(t.conns, c.Account)
	}
	t.mu.Unlock()
}

func (t *connTable) isConnected(account string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.conns[account]
	return ok
}

func (t *connTable) accounts() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.conns))
	for a := range t.conns {
		out = append(out, a)
	}
	return out
}

// State is the daemon's dependency graph: every store handle, service,
// and in-memory runtime structure.
type State struct {
	BaseDir string
	Holder  *config.Holder
	Bus     *bus.Bus

	DBs *sqlite.DBSet

	Messages      *sqlite.MessageStore
	Workspaces    *sqlite.WorkspaceStore
	Capabilities  *sqlite.CapabilityStore
	TrustStore    *sqlite.TrustStore
	KnowledgeDB   *sqlite.KnowledgeStore
	NamedSessions *sqlite.NamedSessionStore
	Activity      *sqlite.ActivityStore
	WorkflowRuns  *sqlite.WorkflowStore
	RetroStore    *sqlite.RetroStore
	Receipts      *sqlite.ReceiptStore
	TaskBoard     *jsonfile.TaskStore
	Prompts       *jsonfile.KVStore
	Clipboard     *jsonfile.KVStore
	Templates     *jsonfile.KVStore
	Bundles       *jsonfile.BundleStore

	Trust       *service.TrustService
	Handoffs    *service.HandoffService
	Tasks       *service.TaskService
	Acceptance  *service.AcceptanceService
	Routing     *service.RoutingService
	SLA         *service.SLACoordinator
	Sessions    *service.SessionManager
	Council     *service.CouncilService
	Knowledge   *service.KnowledgeService
	Workflows   *service.WorkflowService
	Analytics   *service.AnalyticsService
	Bundler     *service.ReviewBundleService
	Progress    *service.ProgressTracker
	Breakers    *resilience.Registry
	Worktrees   *git.Manager
	StartedAt   time.Time

	conns *connTable
	cache *cache.Cache
}

// NewState builds the full dependency graph under baseDir.
func NewState(ctx context.Context, holder *config.Holder, baseDir string) (*State, error) {
	dbs, err := sqlite.OpenAll(ctx, baseDir)
	if err != nil {
		return nil, fmt.Errorf("open stores: %w", err)
	}

	taskBoard, err := jsonfile.NewTaskStore(baseDir)
	if err != nil {
		dbs.Close()
		return nil, err
	}
	prompts, err := jsonfile.NewKVStore(baseDir, "prompts.json")
	if err != nil {
		dbs.Close()
		return nil, err
	}
	clipboard, err := jsonfile.NewKVStore(baseDir, "clipboard.json")
	if err != nil {
		dbs.Close()
		return nil, err
	}
	templates, err := jsonfile.NewKVStore(baseDir, "handoff-templates.json")
	if err != nil {
		dbs.Close()
		return nil, err
	}
	councilCache, err := jsonfile.NewKVStore(baseDir, "council-cache.json")
	if err != nil {
		dbs.Close()
		return nil, err
	}

	memCache, err := cache.New(32 << 20)
	if err != nil {
		dbs.Close()
		return nil, fmt.Errorf("cache: %w", err)
	}

	s := &State{
		BaseDir:       baseDir,
		Holder:        holder,
		Bus:           bus.New(),
		DBs:           dbs,
		Messages:      sqlite.NewMessageStore(dbs.Messages),
		Workspaces:    sqlite.NewWorkspaceStore(dbs.Workspaces),
		Capabilities:  sqlite.NewCapabilityStore(dbs.Capabilities),
		TrustStore:    sqlite.NewTrustStore(dbs.Capabilities),
		KnowledgeDB:   sqlite.NewKnowledgeStore(dbs.Knowledge),
		NamedSessions: sqlite.NewNamedSessionStore(dbs.Sessions),
		Activity:      sqlite.NewActivityStore(dbs.Activity),
		WorkflowRuns:  sqlite.NewWorkflowStore(dbs.Workflow),
		RetroStore:    sqlite.NewRetroStore(dbs.Retro),
		Receipts:      sqlite.NewReceiptStore(dbs.Receipts),
		TaskBoard:     taskBoard,
		Prompts:       prompts,
		Clipboard:     clipboard,
		Templates:     templates,
		Bundles:       jsonfile.NewBundleStore(baseDir),
		Progress:      service.NewProgressTracker(),
		Breakers:      resilience.NewRegistry(breakerMaxFailures, breakerCooldown),
		Sessions:      service.NewSessionManager(),
		StartedAt:     time.Now().UTC(),
		conns:         newConnTable(),
		cache:         memCache,
	}

	gitPool := git.NewPool(5)
	s.Worktrees = git.NewManager(gitPool, s.Workspaces, baseDir)

	s.Trust = service.NewTrustService(s.TrustStore, s.Bus, s.Breakers)
	s.Handoffs = service.NewHandoffService(s.Messages, s.TaskBoard, s.Bus, holder, s.Worktrees, s.conns.isConnected)
	s.Tasks = service.NewTaskService(s.TaskBoard, s.Messages, s.Receipts, s.Capabilities, s.Trust, s.Bus, holder, s.Progress)

	runner := execrunner.New()
	s.Acceptance = service.NewAcceptanceService(s.Messages, runner, s.Tasks)
	s.Tasks.SetAcceptance(s.Acceptance)
	if gh := holder.Get().GitHub; gh != nil {
		s.Tasks.SetOutcomeHook(github.NewHook(*gh))
	}

	s.Routing = service.NewRoutingService(s.Capabilities, s.TrustStore)
	s.SLA = service.NewSLACoordinator(s.TaskBoard, s.Messages, s.Progress, s.Bus)
	s.Council = service.NewCouncilService(holder, memCache, councilCache)
	s.Knowledge = service.NewKnowledgeService(s.KnowledgeDB, memCache)
	s.Workflows = service.NewWorkflowService(s.WorkflowRuns, s.Handoffs, runner, baseDir)
	s.Analytics = service.NewAnalyticsService(s.Capabilities, s.TrustStore, s.TaskBoard)
	s.Bundler = service.NewReviewBundleService(s.TaskBoard, s.Messages, s.Receipts, s.Bundles)

	s.wireActivityLog()
	return s, nil
}

// wireActivityLog mirrors every bus event into the activity store so
// UIs and analytics can replay the daemon's history.
func (s *State) wireActivityLog() {
	s.Bus.SubscribeAll(func(ev bus.Event) {
		_, err := s.Activity.Emit(context.Background(), &activity.Event{
			Type:      string(ev.Kind),
			Timestamp: ev.Timestamp,
			Account:   ev.Account,
			TaskID:    ev.TaskID,
			Metadata:  ev.Payload,
		})
		if err != nil {
			// Bus subscribers are isolated; a full disk must not break
			// the emitting handler.
			return
		}
	})
}

// Close releases every resource the state owns.
func (s *State) Close() {
	if s.cache != nil {
		s.cache.Close()
	}
	if s.DBs != nil {
		s.DBs.Close()
	}
}

// RecordConnectionEvent writes an account_connected/disconnected entry
// straight to the activity log (these are not lifecycle bus kinds).
func (s *State) RecordConnectionEvent(ctx context.Context, account, eventType string) {
	_, _ = s.Activity.Emit(ctx, &activity.Event{Type: eventType, Account: account})
}
