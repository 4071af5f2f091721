package domain

import "time"

// ─── Mission Funding Pools ──────────────────────────────────────────────────
// A business funds a mission by reserving PointsPerSlot × MaxSlots up front.
// Slots are consumed as participants are approved; the unconsumed remainder
// is refunded if the mission is cancelled early.

// PoolStatus is the lifecycle state of a funding pool.
type PoolStatus string

const (
	PoolActive    PoolStatus = "ACTIVE"
	PoolCancelled PoolStatus = "CANCELLED"
	PoolExhausted PoolStatus = "EXHAUSTED"
)

// Terminal reports whether the pool can never change again. EXHAUSTED is
// not terminal: a fully consumed pool can still be cancelled, closing it
// with a refund of zero.
func (s PoolStatus) Terminal() bool {
	return s == PoolCancelled
}

// MissionFundingPool tracks the reserved points for one mission.
type MissionFundingPool struct {
	MissionID     string     `json:"mission_id"`
	BusinessID    string     `json:"business_id"`
	PointsPerSlot int64      `json:"points_per_slot"`
	MaxSlots      int        `json:"max_slots"`
	SlotsConsumed int        `json:"slots_consumed"`
	Status        PoolStatus `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// FundedAmount is the total the business paid to open the pool.
func (p *MissionFundingPool) FundedAmount() int64 {
	return p.PointsPerSlot * int64(p.MaxSlots)
}

// RefundableAmount is what the business gets back if the pool is cancelled
// right now: the value of every slot not yet consumed.
func (p *MissionFundingPool) RefundableAmount() int64 {
	remaining := p.MaxSlots - p.SlotsConsumed
	if remaining <= 0 {
		return 0
	}
	return p.PointsPerSlot * int64(remaining)
}

// ─── Participations ─────────────────────────────────────────────────────────

// ParticipationStatus is a customer's progress through one mission attempt.
type ParticipationStatus string

const (
	ParticipationPending  ParticipationStatus = "PENDING"
	ParticipationApproved ParticipationStatus = "APPROVED"
	ParticipationRejected ParticipationStatus = "REJECTED"
)

// Participation is one customer's attempt at one mission.
// PointsAwarded is non-nil iff the participation has passed through APPROVED.
// APPROVED may later become REJECTED (a reversal), never the inverse.
type Participation struct {
	ID            string              `json:"id"`
	MissionID     string              `json:"mission_id"`
	UserID        string              `json:"user_id"`
	Status        ParticipationStatus `json:"status"`
	PointsAwarded *int64              `json:"points_awarded,omitempty"`
	Feedback      string              `json:"feedback,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// CanReject reports whether a rejection is a valid next step.
// Both fresh (PENDING) and already-approved participations can be rejected;
// a second rejection is not.
func (p *Participation) CanReject() bool {
	return p.Status == ParticipationPending || p.Status == ParticipationApproved
}
