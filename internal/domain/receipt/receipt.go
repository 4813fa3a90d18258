// Package receipt defines immutable verification receipts.
package receipt

import "time"

// Verdict of a verification.
type Verdict string

const (
	VerdictAccepted Verdict = "accepted"
	VerdictRejected Verdict = "rejected"
)

// Method records how a task outcome was judged.
type Method string

const (
	MethodHumanReview    Method = "human-review"
	MethodAutoAcceptance Method = "auto-acceptance"
	MethodCouncil        Method = "council"
)

// Receipt is an immutable record of a task outcome. SpecPayload carries
// the verbatim handoff content the verdict was judged against.
type Receipt struct {
	TaskID      string    `json:"taskId"`
	Delegator   string    `json:"delegator"`
	Delegatee   string    `json:"delegatee"`
	SpecPayload string    `json:"specPayload"`
	Verdict     Verdict   `json:"verdict"`
	Method      Method    `json:"method"`
	Timestamp   time.Time `json:"timestamp"`
}
