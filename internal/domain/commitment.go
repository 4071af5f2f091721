package domain

import "time"

// ─── Timed Commitments ──────────────────────────────────────────────────────
// A timed commitment is a multi-party process with a real-world completion
// step and a delayed reward payout: appointment bookings and bring-a-friend
// referrals share this one state machine.
//
//	PENDING ──confirm──▶ CONFIRMED ──complete──▶ COMPLETED ──settle──▶ SETTLED
//	PENDING/CONFIRMED ──cancel──▶ CANCELLED
//	CONFIRMED ──noShow──▶ NO_SHOW

// CommitmentKind distinguishes the two commitment flavours.
type CommitmentKind string

const (
	KindAppointment CommitmentKind = "APPOINTMENT"
	KindReferral    CommitmentKind = "REFERRAL"
)

// Valid reports whether k is a known commitment kind.
func (k CommitmentKind) Valid() bool {
	return k == KindAppointment || k == KindReferral
}

// CommitmentStatus is a commitment's lifecycle state.
type CommitmentStatus string

const (
	CommitmentPending   CommitmentStatus = "PENDING"
	CommitmentConfirmed CommitmentStatus = "CONFIRMED"
	CommitmentCompleted CommitmentStatus = "COMPLETED"
	CommitmentCancelled CommitmentStatus = "CANCELLED"
	CommitmentNoShow    CommitmentStatus = "NO_SHOW"
	CommitmentSettled   CommitmentStatus = "SETTLED"
)

// Terminal reports whether no further transition is possible.
// COMPLETED still awaits settlement, so it is not terminal.
func (s CommitmentStatus) Terminal() bool {
	switch s {
	case CommitmentCancelled, CommitmentNoShow, CommitmentSettled:
		return true
	}
	return false
}

// TimedCommitment is one appointment or referral session.
type TimedCommitment struct {
	ID             string           `json:"id"`
	Kind           CommitmentKind   `json:"kind"`
	InitiatorID    string           `json:"initiator_id"`
	CounterpartyID string           `json:"counterparty_id,omitempty"` // empty until the second party joins
	Status         CommitmentStatus `json:"status"`
	RewardPoints   int64            `json:"reward_points"`
	JoinCode       string           `json:"join_code,omitempty"` // referral: shared code the second party presents
	Details        string           `json:"details,omitempty"`
	ScheduledAt    time.Time        `json:"scheduled_at,omitempty"` // appointment: proposed date
	CompletedAt    time.Time        `json:"completed_at,omitempty"`
	RewardUnlockAt time.Time        `json:"reward_unlock_at,omitempty"` // set exactly once, at COMPLETED
	Settled        bool             `json:"settled"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// CanTransition reports whether moving from the current status to next is a
// legal step of the state machine.
func (c *TimedCommitment) CanTransition(next CommitmentStatus) bool {
	switch next {
	case CommitmentConfirmed:
		return c.Status == CommitmentPending
	case CommitmentCompleted:
		return c.Status == CommitmentConfirmed
	case CommitmentCancelled:
		return c.Status == CommitmentPending || c.Status == CommitmentConfirmed
	case CommitmentNoShow:
		return c.Status == CommitmentConfirmed
	case CommitmentSettled:
		return c.Status == CommitmentCompleted && !c.Settled
	}
	return false
}

// PairScope is the duplicate-completion scope for a commitment: the same
// initiator/counterparty pairing may earn a one-time reward only once per
// kind, regardless of which side initiated.
func PairScope(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}
