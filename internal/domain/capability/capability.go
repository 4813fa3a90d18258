// Package capability defines per-account skill and reputation records.
package capability

import "time"

// Capability tracks an account's declared skills and derived delivery
// counters used by assignee routing.
type Capability struct {
	Account          string    `json:"account"`
	Skills           []string  `json:"skills"`
	Accepted         int       `json:"accepted"`
	Total            int       `json:"total"`
	AvgDurationMin   float64   `json:"avgDurationMinutes"`
	LastActivity     time.Time `json:"lastActivity"`
	TrustScore       *int      `json:"trustScore,omitempty"`
}

// Trust is the per-account reputation record. Score is clamped to
// [0, 100]; counters roll forward with each outcome.
type Trust struct {
	Account      string    `json:"account"`
	Score        int       `json:"score"`
	Completed    int       `json:"completed"`
	Failed       int       `json:"failed"`
	Rejected     int       `json:"rejected"`
	SLACompliant int       `json:"slaCompliant"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// DefaultScore is the trust score assigned to an account with no history.
const DefaultScore = 50

// Outcome is a task result applied to a trust record.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
)

// Apply mutates the trust record for one outcome and returns the applied
// delta. Completed never decreases the score, rejected never increases
// it, and the score stays within [0, 100]. withinSLA grants the full
// completion bonus; late completions earn a reduced one.
func (t *Trust) Apply(outcome Outcome, withinSLA bool, now time.Time) int {
	var delta int
	switch outcome {
	case OutcomeCompleted:
		t.Completed++
		if withinSLA {
			t.SLACompliant++
			delta = 5
		} else {
			delta = 3
		}
	case OutcomeRejected:
		t.Rejected++
		delta = -4
	case OutcomeFailed:
		t.Failed++
		delta = -8
	}
	t.Score = clamp(t.Score + delta)
	t.UpdatedAt = now
	return delta
}

func clamp(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
