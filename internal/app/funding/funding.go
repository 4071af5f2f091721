// Package funding manages mission funding pools: businesses reserve points
// up front, approvals consume slots, and cancellation refunds whatever was
// never consumed.
package funding

import (
	"context"
	"log"
	"time"

	"github.com/merit-works/merit/internal/domain"
	"github.com/merit-works/merit/internal/infra/observability"
	"github.com/merit-works/merit/internal/infra/sqlite"
)

// Manager is the mission-funding application service.
type Manager struct {
	db       *sqlite.DB
	notifier domain.Notifier
	now      func() time.Time
}

// New creates a funding manager.
func New(db *sqlite.DB, notifier domain.Notifier) *Manager {
	if notifier == nil {
		notifier = domain.NoopNotifier{}
	}
	return &Manager{db: db, notifier: notifier, now: time.Now}
}

// SetNowFunc overrides the clock. Tests use this for deterministic output.
func (m *Manager) SetNowFunc(f func() time.Time) { m.now = f }

// Get returns the pool funding a mission.
func (m *Manager) Get(ctx context.Context, missionID string) (*domain.MissionFundingPool, error) {
	return m.db.GetPool(missionID)
}

// Fund reserves pointsPerSlot×maxSlots from the business as a single SPEND
// and opens an ACTIVE pool. Retrying an identical Fund is a no-op; funding
// an existing mission with different parameters fails.
func (m *Manager) Fund(ctx context.Context, businessID, missionID string, pointsPerSlot int64, maxSlots int) (*domain.MissionFundingPool, error) {
	if pointsPerSlot <= 0 || maxSlots <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	pool, tx, err := m.db.FundPool(businessID, missionID, pointsPerSlot, maxSlots, m.now())
	if err != nil {
		return nil, err
	}
	observability.PoolsFunded.Inc()
	log.Printf("[funding] mission %s funded by %s: %d points (%d × %d slots)",
		missionID, businessID, tx.Amount, pointsPerSlot, maxSlots)
	return pool, nil
}

// ConsumeSlot reserves one approval slot. The pool flips to EXHAUSTED when
// the last slot goes.
func (m *Manager) ConsumeSlot(ctx context.Context, missionID string) error {
	return m.db.ConsumeSlot(missionID, m.now())
}

// Cancel closes an ACTIVE or EXHAUSTED pool and refunds the unconsumed
// remainder to the business. A fully consumed pool refunds nothing; it
// still ends CANCELLED. Pending participants are notified best-effort
// after commit.
func (m *Manager) Cancel(ctx context.Context, missionID, reason string) (*domain.MissionFundingPool, int64, error) {
	pending, err := m.db.ListPendingParticipants(missionID)
	if err != nil {
		return nil, 0, err
	}

	pool, refund, err := m.db.CancelPool(missionID, reason, m.now())
	if err != nil {
		return nil, 0, err
	}
	observability.PoolsCancelled.Inc()
	observability.PointsRefunded.Add(float64(refund))
	log.Printf("[funding] mission %s cancelled (%s): refunded %d points, %d pending participants",
		missionID, reason, refund, len(pending))

	for _, userID := range pending {
		m.notifier.Notify(userID, domain.NotifyMissionCancelled, map[string]any{
			"mission_id": missionID,
			"reason":     reason,
		})
	}
	return pool, refund, nil
}
