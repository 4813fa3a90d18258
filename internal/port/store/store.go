// Package store defines the persistence ports. Each entity store owns
// its rows exclusively; the daemon state owns the store handles.
package store

import (
	"context"
	"time"

	"github.com/Strob0t/AgentHub/internal/domain/activity"
	"github.com/Strob0t/AgentHub/internal/domain/capability"
	"github.com/Strob0t/AgentHub/internal/domain/knowledge"
	"github.com/Strob0t/AgentHub/internal/domain/message"
	"github.com/Strob0t/AgentHub/internal/domain/receipt"
	"github.com/Strob0t/AgentHub/internal/domain/retro"
	"github.com/Strob0t/AgentHub/internal/domain/session"
	"github.com/Strob0t/AgentHub/internal/domain/task"
	"github.com/Strob0t/AgentHub/internal/domain/workflow"
	"github.com/Strob0t/AgentHub/internal/domain/workspace"
)

// Messages persists account-to-account messages and handoffs.
type Messages interface {
	// AddMessage stores m (assigning an id when empty) and returns the id.
	AddMessage(ctx context.Context, m *message.Message) (string, error)
	// GetMessage returns a message by id.
	GetMessage(ctx context.Context, id string) (*message.Message, error)
	// GetUnreadMessages returns unread messages for to, ascending by timestamp.
	GetUnreadMessages(ctx context.Context, to string) ([]message.Message, error)
	// GetMessages returns messages for to, descending by timestamp.
	GetMessages(ctx context.Context, to string, limit, offset int) ([]message.Message, error)
	// MarkAllRead marks every message to the account as read.
	MarkAllRead(ctx context.Context, to string) error
	// CountUnread returns the unread count for the account.
	CountUnread(ctx context.Context, to string) (int, error)
	// GetHandoffs returns messages of type handoff for the account, ascending.
	GetHandoffs(ctx context.Context, to string) ([]message.Message, error)
	// ArchiveOld deletes read messages older than the cutoff and returns the count.
	ArchiveOld(ctx context.Context, olderThan time.Duration) (int, error)
}

// Tasks persists the task board.
type Tasks interface {
	Get(ctx context.Context, id string) (*task.Task, error)
	Put(ctx context.Context, t *task.Task) error
	List(ctx context.Context) ([]task.Task, error)
	ListByStatus(ctx context.Context, status task.Status) ([]task.Task, error)
}

// Workspaces persists worktree rows. Implementations must refuse a
// second non-terminal row sharing (repoPath, branch).
type Workspaces interface {
	Create(ctx context.Context, ws *workspace.Workspace) error
	Get(ctx context.Context, id string) (*workspace.Workspace, error)
	UpdateStatus(ctx context.Context, id string, status workspace.Status) error
	Delete(ctx context.Context, id string) error
	FindActive(ctx context.Context, repoPath, branch string) (*workspace.Workspace, error)
	ListByAccount(ctx context.Context, account string) ([]workspace.Workspace, error)
}

// Capabilities persists per-account skills and delivery counters.
type Capabilities interface {
	Get(ctx context.Context, account string) (*capability.Capability, error)
	Upsert(ctx context.Context, c *capability.Capability) error
	List(ctx context.Context) ([]capability.Capability, error)
	// RecordOutcome rolls the derived counters after a task outcome.
	RecordOutcome(ctx context.Context, account string, accepted bool, durationMin float64, at time.Time) error
}

// Trust persists per-account reputation.
type Trust interface {
	Get(ctx context.Context, account string) (*capability.Trust, error)
	Save(ctx context.Context, t *capability.Trust) error
	List(ctx context.Context) ([]capability.Trust, error)
}

// Knowledge persists indexed notes with full-text search.
type Knowledge interface {
	IndexNote(ctx context.Context, n *knowledge.Note) (string, error)
	Search(ctx context.Context, query string, limit int) ([]knowledge.Hit, error)
}

// NamedSessions persists session labels across restarts.
type NamedSessions interface {
	Name(ctx context.Context, n *session.Named) error
	List(ctx context.Context, account string) ([]session.Named, error)
	Search(ctx context.Context, text string) ([]session.Named, error)
}

// Activity is the append-only activity log.
type Activity interface {
	// Emit inserts the event and returns it with its assigned id.
	Emit(ctx context.Context, ev *activity.Event) (*activity.Event, error)
	Query(ctx context.Context, q activity.Query) ([]activity.Event, error)
	// Search matches against (type, account, metadata) via the full-text index.
	Search(ctx context.Context, text string, limit int) ([]activity.Event, error)
}

// WorkflowRuns persists workflow executions.
type WorkflowRuns interface {
	Create(ctx context.Context, r *workflow.Run) error
	Update(ctx context.Context, r *workflow.Run) error
	Get(ctx context.Context, id string) (*workflow.Run, error)
	List(ctx context.Context, limit int) ([]workflow.Run, error)
}

// Retro persists retrospective sessions, reviews, and syntheses.
type Retro interface {
	CreateSession(ctx context.Context, s *retro.Session) error
	GetSession(ctx context.Context, id string) (*retro.Session, error)
	AddReview(ctx context.Context, r *retro.Review) error
	ListReviews(ctx context.Context, sessionID string) ([]retro.Review, error)
	SaveSynthesis(ctx context.Context, s *retro.Synthesis) error
	GetSynthesis(ctx context.Context, sessionID string) (*retro.Synthesis, error)
	PastLearnings(ctx context.Context, limit int) ([]string, error)
}

// Receipts persists immutable verification receipts.
type Receipts interface {
	Add(ctx context.Context, r *receipt.Receipt) error
	ListByTask(ctx context.Context, taskID string) ([]receipt.Receipt, error)
	ListByAccount(ctx context.Context, account string, limit int) ([]receipt.Receipt, error)
}

// TaskLinks persists directed task-to-task relations.
type TaskLinks interface {
	Link(ctx context.Context, l *task.Link) error
	Links(ctx context.Context, taskID string) ([]task.Link, error)
}
