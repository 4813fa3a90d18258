package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Strob0t/AgentHub/internal/port/store"
)

// ScoreBreakdown itemises an assignee suggestion.
type ScoreBreakdown struct {
	Skills   float64 `json:"skills"`
	Success  float64 `json:"success"`
	Speed    float64 `json:"speed"`
	Recency  float64 `json:"recency"`
	Workload float64 `json:"workload,omitempty"` // subtracted
}

// Suggestion is one ranked candidate.
type Suggestion struct {
	Account    string         `json:"account"`
	Score      float64        `json:"score"`
	Breakdown  ScoreBreakdown `json:"breakdown"`
	TrustScore *int           `json:"trustScore,omitempty"`
}

// RoutingService ranks accounts for a skill set over 100 points:
// 40 skills, 30 historical success, 20 speed, 10 recency.
type RoutingService struct {
	caps  store.Capabilities
	trust store.Trust // may be nil; then no trust score is attached
	now   func() time.Time
}

// NewRoutingService creates a RoutingService. trust may be nil.
func NewRoutingService(caps store.Capabilities, trust store.Trust) *RoutingService {
	return &RoutingService{caps: caps, trust: trust, now: time.Now}
}

// SuggestAssignee scores every known account and returns them ranked
// descending, ties broken by account name ascending. workload maps an
// account to a modifier subtracted from its score before sorting.
func (s *RoutingService) SuggestAssignee(ctx context.Context, required []string, exclude []string, workload map[string]float64) ([]Suggestion, error) {
	caps, err := s.caps.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest assignee: %w", err)
	}

	excluded := make(map[string]bool, len(exclude))
	for _, a := range exclude {
		excluded[a] = true
	}

	now := s.now()
	var out []Suggestion
	for _, c := range caps {
		if excluded[c.Account] {
			continue
		}

		var b ScoreBreakdown

		if len(required) == 0 {
			b.Skills = 40
		} else {
			have := make(map[string]bool, len(c.Skills))
			for _, sk := range c.Skills {
				have[sk] = true
			}
			matched := 0
			for _, sk := range required {
				if have[sk] {
					matched++
				}
			}
			b.Skills = 40 * float64(matched) / float64(len(required))
		}

		if c.Total == 0 {
			b.Success = 15
		} else {
			b.Success = 30 * float64(c.Accepted) / float64(c.Total)
		}

		switch avg := c.AvgDurationMin; {
		case avg < 5:
			b.Speed = 20
		case avg < 15:
			b.Speed = 15
		case avg < 30:
			b.Speed = 10
		default:
			b.Speed = 5
		}

		switch idle := now.Sub(c.LastActivity); {
		case c.LastActivity.IsZero():
			b.Recency = 1
		case idle <= 10*time.Minute:
			b.Recency = 10
		case idle <= 30*time.Minute:
			b.Recency = 7
		case idle <= 60*time.Minute:
			b.Recency = 4
		default:
			b.Recency = 1
		}

		score := b.Skills + b.Success + b.Speed + b.Recency
		if w, ok := workload[c.Account]; ok {
			b.Workload = w
			score -= w
		}

		sug := Suggestion{Account: c.Account, Score: score, Breakdown: b}
		if s.trust != nil {
			if t, err := s.trust.Get(ctx, c.Account); err == nil {
				v := t.Score
				sug.TrustScore = &v
			}
		}
		out = append(out, sug)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Account < out[j].Account
	})
	return out, nil
}
