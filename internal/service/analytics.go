package service

import (
	"context"
	"fmt"

	"github.com/Strob0t/AgentHub/internal/domain/task"
	"github.com/Strob0t/AgentHub/internal/port/store"
)

// AccountAnalytics aggregates one account's delivery history.
type AccountAnalytics struct {
	Account       string  `json:"account"`
	TasksAccepted int     `json:"tasksAccepted"`
	TasksTotal    int     `json:"tasksTotal"`
	SuccessRate   float64 `json:"successRate"`
	AvgDurationM  float64 `json:"avgDurationMinutes"`
	TrustScore    int     `json:"trustScore"`
	OpenTasks     int     `json:"openTasks"`
}

// Analytics is the get_analytics reply.
type Analytics struct {
	Accounts   []AccountAnalytics `json:"accounts"`
	TotalTasks int                `json:"totalTasks"`
	ByStatus   map[string]int     `json:"byStatus"`
}

// AnalyticsService derives aggregate numbers from capabilities, trust,
// and the task board.
type AnalyticsService struct {
	caps  store.Capabilities
	trust store.Trust
	tasks store.Tasks
}

// NewAnalyticsService creates an AnalyticsService.
func NewAnalyticsService(caps store.Capabilities, trust store.Trust, tasks store.Tasks) *AnalyticsService {
	return &AnalyticsService{caps: caps, trust: trust, tasks: tasks}
}

// Snapshot computes the current analytics.
func (s *AnalyticsService) Snapshot(ctx context.Context) (*Analytics, error) {
	caps, err := s.caps.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("analytics: %w", err)
	}
	all, err := s.tasks.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("analytics: %w", err)
	}

	open := make(map[string]int)
	byStatus := make(map[string]int)
	for _, t := range all {
		byStatus[string(t.Status)]++
		if t.Status != task.StatusAccepted && t.Status != task.StatusRejected {
			open[t.Assignee]++
		}
	}

	out := &Analytics{TotalTasks: len(all), ByStatus: byStatus}
	for _, c := range caps {
		a := AccountAnalytics{
			Account:       c.Account,
			TasksAccepted: c.Accepted,
			TasksTotal:    c.Total,
			AvgDurationM:  c.AvgDurationMin,
			OpenTasks:     open[c.Account],
		}
		if c.Total > 0 {
			a.SuccessRate = float64(c.Accepted) / float64(c.Total)
		}
		if t, err := s.trust.Get(ctx, c.Account); err == nil {
			a.TrustScore = t.Score
		}
		out.Accounts = append(out.Accounts, a)
	}
	return out, nil
}
