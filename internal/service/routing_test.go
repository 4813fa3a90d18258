package service

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/AgentHub/internal/domain/capability"
)

func routingFixture(now time.Time) (*RoutingService, *mockCaps) {
	caps := newMockCaps()
	svc := NewRoutingService(caps, nil)
	svc.now = func() time.Time { return now }
	return svc, caps
}

func TestSuggestAssigneeScoring(t *testing.T) {
	now := time.Now()
	svc, caps := routingFixture(now)
	ctx := context.Background()

	// Perfect candidate: full skill match, 100% success, fast, recent.
	_ = caps.Upsert(ctx, &capability.Capability{
		Account: "ace", Skills: []string{"go", "sql"},
		Accepted: 10, Total: 10, AvgDurationMin: 3, LastActivity: now.Add(-5 * time.Minute),
	})
	// Newcomer: no history.
	_ = caps.Upsert(ctx, &capability.Capability{
		Account: "newbie", Skills: []string{"go"},
		LastActivity: now.Add(-2 * time.Hour),
	})

	got, err := svc.SuggestAssignee(ctx, []string{"go", "sql"}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 suggestions, got %d", len(got))
	}
	if got[0].Account != "ace" {
		t.Fatalf("ace should rank first, got %s", got[0].Account)
	}
	if got[0].Score != 100 {
		t.Fatalf("ace should score 100, got %v (%+v)", got[0].Score, got[0].Breakdown)
	}

	nb := got[1].Breakdown
	if nb.Skills != 20 { // 1 of 2 skills
		t.Fatalf("newbie skills = %v, want 20", nb.Skills)
	}
	if nb.Success != 15 { // no history
		t.Fatalf("newbie success = %v, want 15", nb.Success)
	}
	if nb.Speed != 20 { // zero average lands in the fastest bucket
		t.Fatalf("newbie speed = %v, want 20", nb.Speed)
	}
	if nb.Recency != 1 {
		t.Fatalf("newbie recency = %v, want 1", nb.Recency)
	}
}

func TestSuggestAssigneeEmptySkillsFullPoints(t *testing.T) {
	now := time.Now()
	svc, caps := routingFixture(now)
	ctx := context.Background()

	_ = caps.Upsert(ctx, &capability.Capability{Account: "a", LastActivity: now})
	got, err := svc.SuggestAssignee(ctx, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Breakdown.Skills != 40 {
		t.Fatalf("empty required skills must grant 40, got %v", got[0].Breakdown.Skills)
	}
}

func TestSuggestAssigneeTiesBreakByName(t *testing.T) {
	now := time.Now()
	svc, caps := routingFixture(now)
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha"} {
		_ = caps.Upsert(ctx, &capability.Capability{Account: name, LastActivity: now})
	}

	got, err := svc.SuggestAssignee(ctx, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Account != "alpha" {
		t.Fatalf("ties must break by name ascending, got %s first", got[0].Account)
	}
}

func TestSuggestAssigneeExcludeAndWorkload(t *testing.T) {
	now := time.Now()
	svc, caps := routingFixture(now)
	ctx := context.Background()

	_ = caps.Upsert(ctx, &capability.Capability{Account: "busy", LastActivity: now})
	_ = caps.Upsert(ctx, &capability.Capability{Account: "free", LastActivity: now})
	_ = caps.Upsert(ctx, &capability.Capability{Account: "banned", LastActivity: now})

	got, err := svc.SuggestAssignee(ctx, nil, []string{"banned"}, map[string]float64{"busy": 30})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("excluded account must be absent, got %d", len(got))
	}
	if got[0].Account != "free" {
		t.Fatalf("workload modifier must demote busy, got %s first", got[0].Account)
	}
	if got[1].Breakdown.Workload != 30 {
		t.Fatalf("workload must appear in the breakdown, got %v", got[1].Breakdown.Workload)
	}
}
