// Package message defines the Message entity and the handoff payload
// carried by messages of type "handoff".
package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Type distinguishes plain messages from task handoffs.
type Type string

const (
	TypeMessage Type = "message"
	TypeHandoff Type = "handoff"
)

// Message is an immutable account-to-account message. Only the Read flag
// may change after insertion. Self-messages are permitted.
type Message struct {
	ID        string            `json:"id"`
	From      string            `json:"from"`
	To        string            `json:"to"`
	Type      Type              `json:"type"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Read      bool              `json:"read"`
	Context   map[string]string `json:"context,omitempty"`
}

// Enriched handoff characteristic enums.
const (
	LevelLow      = "low"
	LevelMedium   = "medium"
	LevelHigh     = "high"
	LevelCritical = "critical"

	VerifiabilityAutoTestable = "auto-testable"
	VerifiabilityNeedsReview  = "needs-review"
	VerifiabilitySubjective   = "subjective"

	ReversibilityReversible   = "reversible"
	ReversibilityPartial      = "partial"
	ReversibilityIrreversible = "irreversible"
)

var levelValues = map[string]bool{LevelLow: true, LevelMedium: true, LevelHigh: true, LevelCritical: true}

// HandoffPayload is the structured content of a handoff message.
// BlockedBy uses the sentinel ["none"] to mean "no blockers".
type HandoffPayload struct {
	Goal               string            `json:"goal"`
	AcceptanceCriteria []string          `json:"acceptance_criteria"`
	RunCommands        []string          `json:"run_commands"`
	BlockedBy          []string          `json:"blocked_by"`
	Complexity         string            `json:"complexity,omitempty"`
	Criticality        string            `json:"criticality,omitempty"`
	Uncertainty        string            `json:"uncertainty,omitempty"`
	Verifiability      string            `json:"verifiability,omitempty"`
	Reversibility      string            `json:"reversibility,omitempty"`
	RequiredSkills     []string          `json:"required_skills,omitempty"`
	EstimatedMinutes   int               `json:"estimated_duration_minutes,omitempty"`
	DelegationDepth    int               `json:"delegation_depth,omitempty"`
	ParentHandoffID    string            `json:"parent_handoff_id,omitempty"`
	AutoContext        string            `json:"autoContext,omitempty"`
	Extra              map[string]string `json:"extra,omitempty"`
}

// Validate reports every schema violation in the payload. The returned
// slice is empty when the payload is valid.
func (p *HandoffPayload) Validate() []string {
	var problems []string
	if p.Goal == "" {
		problems = append(problems, "goal must be non-empty")
	}
	if len(p.AcceptanceCriteria) == 0 {
		problems = append(problems, "acceptance_criteria must be non-empty")
	}
	if len(p.RunCommands) == 0 {
		problems = append(problems, "run_commands must be non-empty")
	}
	if len(p.BlockedBy) == 0 {
		problems = append(problems, "blocked_by must be non-empty (use [\"none\"])")
	}
	if p.DelegationDepth < 0 {
		problems = append(problems, "delegation_depth must be non-negative")
	}
	for field, val := range map[string]string{
		"complexity":  p.Complexity,
		"criticality": p.Criticality,
		"uncertainty": p.Uncertainty,
	} {
		if val != "" && !levelValues[val] {
			problems = append(problems, fmt.Sprintf("%s must be one of low/medium/high/critical", field))
		}
	}
	switch p.Verifiability {
	case "", VerifiabilityAutoTestable, VerifiabilityNeedsReview, VerifiabilitySubjective:
	default:
		problems = append(problems, "verifiability must be one of auto-testable/needs-review/subjective")
	}
	switch p.Reversibility {
	case "", ReversibilityReversible, ReversibilityPartial, ReversibilityIrreversible:
	default:
		problems = append(problems, "reversibility must be one of reversible/partial/irreversible")
	}
	return problems
}

// Blocked reports whether the payload names real blockers.
func (p *HandoffPayload) Blocked() bool {
	for _, b := range p.BlockedBy {
		if b != "" && b != "none" {
			return true
		}
	}
	return false
}

// ParsePayload decodes a handoff message content.
func ParsePayload(content string) (*HandoffPayload, error) {
	var p HandoffPayload
	if err := json.Unmarshal([]byte(content), &p); err != nil {
		return nil, errors.New("corrupted handoff payload")
	}
	return &p, nil
}
