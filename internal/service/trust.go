// Package service contains the daemon's application services: the
// task/handoff engine, trust, routing, auto-acceptance, the SLA
// coordinator, live sessions, council, and workflow execution.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Strob0t/AgentHub/internal/bus"
	"github.com/Strob0t/AgentHub/internal/domain/activity"
	"github.com/Strob0t/AgentHub/internal/domain/capability"
	"github.com/Strob0t/AgentHub/internal/port/store"
	"github.com/Strob0t/AgentHub/internal/resilience"
)

// TrustService applies deterministic trust-score updates from task
// outcomes and feeds the per-account circuit breaker.
type TrustService struct {
	trust    store.Trust
	bus      *bus.Bus
	breakers *resilience.Registry
}

// NewTrustService creates a TrustService. breakers may be nil when the
// circuitBreaker feature is off.
func NewTrustService(trust store.Trust, b *bus.Bus, breakers *resilience.Registry) *TrustService {
	return &TrustService{trust: trust, bus: b, breakers: breakers}
}

// Get returns the account's trust record.
func (s *TrustService) Get(ctx context.Context, account string) (*capability.Trust, error) {
	return s.trust.Get(ctx, account)
}

// List returns every trust record.
func (s *TrustService) List(ctx context.Context) ([]capability.Trust, error) {
	return s.trust.List(ctx)
}

// ApplyOutcome updates the account's score for one outcome, persists
// it, and emits a TRUST_UPDATE event when the score changed.
func (s *TrustService) ApplyOutcome(ctx context.Context, account string, outcome capability.Outcome, withinSLA bool, taskID string) (*capability.Trust, error) {
	t, err := s.trust.Get(ctx, account)
	if err != nil {
		return nil, err
	}
	before := t.Score
	delta := t.Apply(outcome, withinSLA, time.Now().UTC())
	if err := s.trust.Save(ctx, t); err != nil {
		return nil, fmt.Errorf("apply trust outcome: %w", err)
	}

	if s.breakers != nil {
		b := s.breakers.For(account)
		if outcome == capability.OutcomeCompleted {
			b.RecordSuccess()
		} else {
			b.RecordFailure()
		}
	}

	if t.Score != before {
		s.bus.Emit(bus.Event{
			Kind:    activity.KindTrustUpdate,
			Account: account,
			TaskID:  taskID,
			Payload: map[string]string{
				"outcome": string(outcome),
				"before":  strconv.Itoa(before),
				"after":   strconv.Itoa(t.Score),
				"delta":   strconv.Itoa(delta),
			},
		})
	}
	slog.Debug("trust applied", "account", account, "outcome", outcome, "score", t.Score)
	return t, nil
}
