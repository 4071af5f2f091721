// Package ratelimit guards commitment creation against abuse: a sliding
// creation window per initiator and kind, and a one-time-reward check per
// initiator/counterparty pairing.
package ratelimit

import (
	"context"
	"time"

	"github.com/merit-works/merit/internal/domain"
	"github.com/merit-works/merit/internal/infra/observability"
	"github.com/merit-works/merit/internal/infra/sqlite"
)

// Guard answers rate-limit and duplicate-reward questions from the store.
// It holds no state of its own, so one Guard serves all callers.
type Guard struct {
	db  *sqlite.DB
	now func() time.Time
}

// New creates a guard.
func New(db *sqlite.DB) *Guard {
	return &Guard{db: db, now: time.Now}
}

// SetNowFunc overrides the clock. Tests use this for deterministic output.
func (g *Guard) SetNowFunc(f func() time.Time) { g.now = f }

// CheckWindow fails with ErrRateLimited when the initiator has already
// created max commitments of this kind inside the sliding window. Cancelled
// and rejected commitments still count; the limit is on creation.
func (g *Guard) CheckWindow(ctx context.Context, initiatorID string, kind domain.CommitmentKind, window time.Duration, max int) error {
	n, err := g.db.CountCommitmentsSince(initiatorID, kind, g.now().Add(-window))
	if err != nil {
		return err
	}
	if n >= max {
		observability.RateLimitRejections.Inc()
		return domain.ErrRateLimited
	}
	return nil
}

// HasPriorCompletion reports whether this initiator/counterparty pairing has
// already earned a settled reward of the given kind, in either direction.
func (g *Guard) HasPriorCompletion(ctx context.Context, initiatorID, counterpartyID string, kind domain.CommitmentKind) (bool, error) {
	return g.db.HasSettledPair(domain.PairScope(initiatorID, counterpartyID), kind)
}
