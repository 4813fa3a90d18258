package service

import (
	"context"
	"strings"
	"testing"

	"github.com/Strob0t/AgentHub/internal/adapter/jsonfile"
	"github.com/Strob0t/AgentHub/internal/config"
)

func councilHolder(reviewers []config.CouncilReviewer, quorum int) *config.Holder {
	cfg := config.NewDefaults()
	cfg.Council = &config.Council{Reviewers: reviewers, Quorum: quorum, TimeoutSeconds: 30}
	return config.NewHolder(cfg, "")
}

func TestAnalyzeQuorum(t *testing.T) {
	holder := councilHolder([]config.CouncilReviewer{
		{Name: "yes-1", Command: []string{"true"}},
		{Name: "yes-2", Command: []string{"true"}},
		{Name: "no-1", Command: []string{"false"}},
	}, 2)
	svc := NewCouncilService(holder, nil, nil)

	res, err := svc.Analyze(context.Background(), "is this change sound?")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Approved {
		t.Fatalf("2 of 3 approvals should meet quorum 2: %+v", res.Verdicts)
	}
	if len(res.Verdicts) != 3 {
		t.Fatalf("expected 3 verdicts, got %d", len(res.Verdicts))
	}
	for _, v := range res.Verdicts {
		if strings.HasPrefix(v.Reviewer, "yes") && !v.Approve {
			t.Fatalf("reviewer %s should approve", v.Reviewer)
		}
		if strings.HasPrefix(v.Reviewer, "no") && v.Approve {
			t.Fatalf("reviewer %s should reject", v.Reviewer)
		}
	}
}

func TestAnalyzePromptReachesReviewerVerbatim(t *testing.T) {
	holder := councilHolder([]config.CouncilReviewer{
		{Name: "echo", Command: []string{"echo"}},
	}, 1)
	svc := NewCouncilService(holder, nil, nil)

	// Handoff content is attacker-ish data: quotes and backslashes must
	// survive as one argv element, not split or strip.
	prompt := `goal contains \" quoted "stuff" and a trailing backslash \`
	res, err := svc.Analyze(context.Background(), prompt)
	if err != nil {
		t.Fatal(err)
	}
	got := strings.TrimSuffix(res.Verdicts[0].Output, "\n")
	if got != prompt {
		t.Fatalf("prompt mangled in transit:\nwant %q\ngot  %q", prompt, got)
	}
}

func TestAnalyzeCachesByContentHash(t *testing.T) {
	dir := t.TempDir()
	file, err := jsonfile.NewKVStore(dir, "council-cache.json")
	if err != nil {
		t.Fatal(err)
	}
	holder := councilHolder([]config.CouncilReviewer{
		{Name: "yes", Command: []string{"true"}},
	}, 1)
	svc := NewCouncilService(holder, nil, file)
	ctx := context.Background()

	first, err := svc.Analyze(ctx, "same prompt")
	if err != nil {
		t.Fatal(err)
	}
	if first.Cached {
		t.Fatal("first round must not be cached")
	}

	second, err := svc.Analyze(ctx, "same prompt")
	if err != nil {
		t.Fatal(err)
	}
	if !second.Cached {
		t.Fatal("repeated prompt must be served from the cache")
	}

	other, err := svc.Analyze(ctx, "different prompt")
	if err != nil {
		t.Fatal(err)
	}
	if other.Cached {
		t.Fatal("a different prompt must run the council")
	}
}

func TestAnalyzeNoReviewersConfigured(t *testing.T) {
	svc := NewCouncilService(testHolder(nil), nil, nil)
	if _, err := svc.Analyze(context.Background(), "anything"); err == nil {
		t.Fatal("expected error without reviewers")
	}
	if _, err := NewCouncilService(councilHolder(nil, 0), nil, nil).Analyze(context.Background(), "  "); err == nil {
		t.Fatal("expected error for an empty prompt")
	}
}

func TestVerifyFramesTaskPayload(t *testing.T) {
	holder := councilHolder([]config.CouncilReviewer{
		{Name: "echo", Command: []string{"echo"}},
	}, 1)
	svc := NewCouncilService(holder, nil, nil)

	res, err := svc.Verify(context.Background(), "t1", `{"goal":"with \"quotes\""}`)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Verdicts[0].Output, `with \"quotes\"`) {
		t.Fatalf("spec payload mangled: %q", res.Verdicts[0].Output)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	holder := councilHolder([]config.CouncilReviewer{
		{Name: "yes", Command: []string{"true"}},
	}, 1)
	svc := NewCouncilService(holder, nil, nil)
	ctx := context.Background()

	if _, err := svc.Analyze(ctx, "first"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Analyze(ctx, "second"); err != nil {
		t.Fatal(err)
	}

	history := svc.History(10)
	if len(history) != 2 || history[0].Prompt != "second" {
		t.Fatalf("expected newest first, got %+v", history)
	}
	if got := svc.History(1); len(got) != 1 || got[0].Prompt != "second" {
		t.Fatalf("limit should keep the newest, got %+v", got)
	}
}
