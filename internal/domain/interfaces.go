package domain

import "context"

// ─── Collaborator Interfaces ────────────────────────────────────────────────
// These interfaces define boundaries to the subsystems the core does not own.
// Infrastructure implements them; application services depend on them.

// NotificationKind labels a notification for the delivery layer.
type NotificationKind string

const (
	NotifyMissionCancelled      NotificationKind = "mission_cancelled"
	NotifyParticipationRejected NotificationKind = "participation_rejected"
	NotifyCommitmentConfirmed   NotificationKind = "commitment_confirmed"
	NotifyCommitmentCancelled   NotificationKind = "commitment_cancelled"
	NotifyRewardUnlocked        NotificationKind = "reward_unlocked"
)

// Notifier delivers fire-and-forget notifications after state transitions.
// A failed delivery must never roll back the transition it is attached to,
// so implementations return nothing.
type Notifier interface {
	Notify(recipientID string, kind NotificationKind, payload map[string]any)
}

// NoopNotifier discards every notification. The zero value is ready to use.
type NoopNotifier struct{}

func (NoopNotifier) Notify(string, NotificationKind, map[string]any) {}

// Identity supplies owner existence checks. Signup and auth live elsewhere;
// the core only ever asks "is this a real owner?".
type Identity interface {
	Exists(ctx context.Context, ownerID string) (bool, error)
}

// AllowAllIdentity accepts every non-empty owner ID. Used by the single-node
// daemon, where identity is established by the calling gateway.
type AllowAllIdentity struct{}

func (AllowAllIdentity) Exists(_ context.Context, ownerID string) (bool, error) {
	return ownerID != "", nil
}
