package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/AgentHub/internal/domain"
	"github.com/Strob0t/AgentHub/internal/domain/activity"
	"github.com/Strob0t/AgentHub/internal/domain/capability"
	"github.com/Strob0t/AgentHub/internal/domain/knowledge"
	"github.com/Strob0t/AgentHub/internal/domain/message"
	"github.com/Strob0t/AgentHub/internal/domain/workspace"
	"errors"
)

func openSet(t *testing.T) *DBSet {
	t.Helper()
	set, err := OpenAll(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("open stores: %v", err)
	}
	t.Cleanup(set.Close)
	return set
}

func TestMessageAddThenUnreadRoundTrip(t *testing.T) {
	set := openSet(t)
	s := NewMessageStore(set.Messages)
	ctx := context.Background()

	id, err := s.AddMessage(ctx, &message.Message{
		From: "alice", To: "bob", Type: message.TypeMessage, Content: "hi",
		Context: map[string]string{"k": "v"},
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if id == "" {
		t.Fatal("expected assigned id")
	}

	msgs, err := s.GetUnreadMessages(ctx, "bob")
	if err != nil {
		t.Fatalf("unread: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 unread, got %d", len(msgs))
	}
	m := msgs[0]
	if m.From != "alice" || m.Content != "hi" || m.Context["k"] != "v" {
		t.Fatalf("fields did not round-trip: %+v", m)
	}
}

func TestMessageMarkAllReadClearsUnread(t *testing.T) {
	set := openSet(t)
	s := NewMessageStore(set.Messages)
	ctx := context.Background()

	for range 3 {
		if _, err := s.AddMessage(ctx, &message.Message{From: "a", To: "bob", Type: message.TypeMessage, Content: "x"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.MarkAllRead(ctx, "bob"); err != nil {
		t.Fatal(err)
	}

	msgs, err := s.GetUnreadMessages(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no unread after markAllRead, got %d", len(msgs))
	}
	n, err := s.CountUnread(ctx, "bob")
	if err != nil || n != 0 {
		t.Fatalf("expected count 0, got %d (%v)", n, err)
	}
}

func TestMessageUnreadOrderingAscending(t *testing.T) {
	set := openSet(t)
	s := NewMessageStore(set.Messages)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, content := range []string{"first", "second", "third"} {
		_, err := s.AddMessage(ctx, &message.Message{
			From: "a", To: "bob", Type: message.TypeMessage,
			Content: content, Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := s.GetUnreadMessages(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if msgs[0].Content != "first" || msgs[2].Content != "third" {
		t.Fatalf("expected ascending order, got %v", []string{msgs[0].Content, msgs[1].Content, msgs[2].Content})
	}

	recent, err := s.GetMessages(ctx, "bob", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if recent[0].Content != "third" {
		t.Fatalf("expected descending order for GetMessages, got %s first", recent[0].Content)
	}
}

func TestArchiveOldIsIdempotent(t *testing.T) {
	set := openSet(t)
	s := NewMessageStore(set.Messages)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	if _, err := s.AddMessage(ctx, &message.Message{From: "a", To: "b", Type: message.TypeMessage, Content: "stale", Timestamp: old, Read: true}); err != nil {
		t.Fatal(err)
	}

	n, err := s.ArchiveOld(ctx, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 archived, got %d", n)
	}

	n, err = s.ArchiveOld(ctx, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("second archive should remove 0, got %d", n)
	}
}

func TestWorkspaceUniqueActiveBranch(t *testing.T) {
	set := openSet(t)
	s := NewWorkspaceStore(set.Workspaces)
	ctx := context.Background()

	first := &workspace.Workspace{RepoPath: "/repo", Branch: "fix", WorktreePath: "/wt/1", OwnerAccount: "alice", HandoffID: "h1", Status: workspace.StatusReady}
	if err := s.Create(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := &workspace.Workspace{RepoPath: "/repo", Branch: "fix", WorktreePath: "/wt/2", OwnerAccount: "bob", HandoffID: "h2", Status: workspace.StatusPreparing}
	err := s.Create(ctx, dup)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// A terminal row frees the key.
	if err := s.UpdateStatus(ctx, first.ID, workspace.StatusFailed); err != nil {
		t.Fatal(err)
	}
	if err := s.Create(ctx, dup); err != nil {
		t.Fatalf("create after terminal: %v", err)
	}
}

func TestActivityEmitAndSearch(t *testing.T) {
	set := openSet(t)
	s := NewActivityStore(set.Activity)
	ctx := context.Background()

	ev, err := s.Emit(ctx, &activity.Event{
		Type: string(activity.KindTaskCreated), Account: "alice",
		TaskID: "t1", Metadata: map[string]string{"goal": "refactor parser"},
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if ev.ID == "" {
		t.Fatal("expected assigned id")
	}

	got, err := s.Query(ctx, activity.Query{Account: "alice", Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].TaskID != "t1" {
		t.Fatalf("query mismatch: %+v", got)
	}

	hits, err := s.Search(ctx, "refactor", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 search hit, got %d", len(hits))
	}
}

func TestTrustDefaultAndSave(t *testing.T) {
	set := openSet(t)
	s := NewTrustStore(set.Capabilities)
	ctx := context.Background()

	tr, err := s.Get(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if tr.Score != capability.DefaultScore {
		t.Fatalf("expected default score %d, got %d", capability.DefaultScore, tr.Score)
	}

	tr.Apply(capability.OutcomeCompleted, true, time.Now())
	if err := s.Save(ctx, tr); err != nil {
		t.Fatal(err)
	}

	again, err := s.Get(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if again.Score <= capability.DefaultScore {
		t.Fatalf("expected score above default after completion, got %d", again.Score)
	}
}

func TestKnowledgeIndexAndSearch(t *testing.T) {
	set := openSet(t)
	s := NewKnowledgeStore(set.Knowledge)
	ctx := context.Background()

	if _, err := s.IndexNote(ctx, &knowledge.Note{Account: "alice", Title: "sqlite pragmas", Body: "WAL plus busy timeout"}); err != nil {
		t.Fatal(err)
	}
	hits, err := s.Search(ctx, "pragmas", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Note.Title != "sqlite pragmas" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}
