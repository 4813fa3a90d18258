package supervisor

import (
	"context"
	"testing"
	"time"
)

func TestCleanExitStopsSupervision(t *testing.T) {
	s := New("true", nil, 3)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Run(ctx); err != nil {
		t.Fatalf("clean exit should end supervision without error, got %v", err)
	}
}

func TestCrashLoopGivesUp(t *testing.T) {
	s := New("false", nil, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := s.Run(ctx)
	if err == nil {
		t.Fatal("expected the supervisor to give up on a crash loop")
	}
}

func TestContextCancelStops(t *testing.T) {
	s := New("sleep", []string{"60"}, 3)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	if err := s.Run(ctx); err == nil {
		t.Fatal("expected a context error")
	}
}
