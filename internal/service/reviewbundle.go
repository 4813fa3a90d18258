package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Strob0t/AgentHub/internal/adapter/git"
	"github.com/Strob0t/AgentHub/internal/adapter/jsonfile"
	"github.com/Strob0t/AgentHub/internal/domain"
	"github.com/Strob0t/AgentHub/internal/domain/message"
	"github.com/Strob0t/AgentHub/internal/domain/receipt"
	"github.com/Strob0t/AgentHub/internal/domain/task"
	"github.com/Strob0t/AgentHub/internal/port/store"
)

// ReviewBundle packages everything a reviewer needs for one task.
type ReviewBundle struct {
	Task        *task.Task              `json:"task"`
	Handoff     *message.HandoffPayload `json:"handoff,omitempty"`
	Receipts    []receipt.Receipt       `json:"receipts,omitempty"`
	DiffSummary string                  `json:"diffSummary,omitempty"`
	GeneratedAt time.Time               `json:"generatedAt"`
}

// ReviewBundleService assembles and serves review bundles stored as
// review-bundles/<taskId>.json.
type ReviewBundleService struct {
	tasks    store.Tasks
	messages store.Messages
	receipts store.Receipts
	bundles  *jsonfile.BundleStore
}

// NewReviewBundleService creates a ReviewBundleService.
func NewReviewBundleService(tasks store.Tasks, messages store.Messages, receipts store.Receipts, bundles *jsonfile.BundleStore) *ReviewBundleService {
	return &ReviewBundleService{tasks: tasks, messages: messages, receipts: receipts, bundles: bundles}
}

// Generate builds and persists the bundle for a task.
func (s *ReviewBundleService) Generate(ctx context.Context, taskID string) (*ReviewBundle, error) {
	t, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	bundle := &ReviewBundle{Task: t, GeneratedAt: time.Now().UTC()}
	if msg, err := s.messages.GetMessage(ctx, taskID); err == nil && msg.Type == message.TypeHandoff {
		if p, err := message.ParsePayload(msg.Content); err == nil {
			bundle.Handoff = p
		}
	}
	if receipts, err := s.receipts.ListByTask(ctx, taskID); err == nil {
		bundle.Receipts = receipts
	}
	if t.WorkspaceContext != nil {
		bundle.DiffSummary = git.ProjectContext(ctx, t.WorkspaceContext.WorkspacePath, 16*1024)
	}

	if err := s.bundles.Save(taskID, bundle); err != nil {
		return nil, fmt.Errorf("persist review bundle: %w", err)
	}
	return bundle, nil
}

// Get loads a previously generated bundle.
func (s *ReviewBundleService) Get(taskID string) (*ReviewBundle, error) {
	var bundle ReviewBundle
	ok, err := s.bundles.Load(taskID, &bundle)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("review bundle %s: %w", taskID, domain.ErrNotFound)
	}
	return &bundle, nil
}
