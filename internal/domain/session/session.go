// Package session defines live pair sessions and the persistent named
// session registry.
package session

import "time"

// Shared is a live in-memory pair session between two connected accounts.
// Membership is exactly {Initiator, Participant}.
type Shared struct {
	ID          string           `json:"id"`
	Initiator   string           `json:"initiator"`
	Participant string           `json:"participant"`
	Workspace   string           `json:"workspace,omitempty"`
	StartedAt   time.Time        `json:"startedAt"`
	Active      bool             `json:"active"`
	Joined      bool             `json:"joined"`
	LastPing    map[string]int64 `json:"lastPing"` // account → epoch millis
}

// Member reports whether account belongs to the session.
func (s *Shared) Member(account string) bool {
	return account == s.Initiator || account == s.Participant
}

// Update is one opaque payload exchanged inside a shared session.
type Update struct {
	From      string    `json:"from"`
	Data      string    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Named is a persistent label attached to a session id so it can be
// found again across daemon restarts.
type Named struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Account   string    `json:"account"`
	CreatedAt time.Time `json:"createdAt"`
}
