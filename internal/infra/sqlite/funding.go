package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/merit-works/merit/internal/domain"
)

// ─── Funding Pool Operations ────────────────────────────────────────────────

// GetPool retrieves a funding pool by mission.
func (db *DB) GetPool(missionID string) (*domain.MissionFundingPool, error) {
	return getPool(db.db.QueryRow(`
		SELECT mission_id, business_id, points_per_slot, max_slots, slots_consumed, status, created_at, updated_at
		FROM funding_pools WHERE mission_id = ?
	`, missionID))
}

func getPool(row rowScanner) (*domain.MissionFundingPool, error) {
	var p domain.MissionFundingPool
	var created, updated int64
	err := row.Scan(&p.MissionID, &p.BusinessID, &p.PointsPerSlot, &p.MaxSlots,
		&p.SlotsConsumed, &p.Status, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, domain.ErrPoolNotFound
	}
	if err != nil {
		return nil, err
	}
	p.CreatedAt = fromNanos(created)
	p.UpdatedAt = fromNanos(updated)
	return &p, nil
}

// FundPool debits the business for pointsPerSlot × maxSlots and creates the
// pool, as one transaction. Replaying the same mission funding is a no-op
// that returns the existing pool.
func (db *DB) FundPool(businessID, missionID string, pointsPerSlot int64, maxSlots int, now time.Time) (*domain.MissionFundingPool, domain.LedgerTransaction, error) {
	var pool *domain.MissionFundingPool
	var ledgerTx domain.LedgerTransaction

	err := db.inTx(func(tx *sql.Tx) error {
		existing, err := getPool(tx.QueryRow(`
			SELECT mission_id, business_id, points_per_slot, max_slots, slots_consumed, status, created_at, updated_at
			FROM funding_pools WHERE mission_id = ?
		`, missionID))
		if err == nil {
			if existing.BusinessID == businessID &&
				existing.PointsPerSlot == pointsPerSlot && existing.MaxSlots == maxSlots {
				pool = existing // idempotent replay
				return nil
			}
			return domain.ErrPoolExists
		}
		if err != domain.ErrPoolNotFound {
			return err
		}

		total := pointsPerSlot * int64(maxSlots)
		res, err := applyTransaction(tx, txRequest{
			ownerID: businessID,
			typ:     domain.TxSpend,
			amount:  total,
			source:  "mission_funding_" + missionID,
			idemKey: "mission_funding_" + missionID,
			meta: map[string]string{
				"mission_id":      missionID,
				"points_per_slot": fmt.Sprintf("%d", pointsPerSlot),
				"max_slots":       fmt.Sprintf("%d", maxSlots),
			},
		}, now)
		if err != nil {
			return err
		}
		ledgerTx = res.tx

		if _, err := tx.Exec(`
			INSERT INTO funding_pools (mission_id, business_id, points_per_slot, max_slots, slots_consumed, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, 0, 'ACTIVE', ?, ?)
		`, missionID, businessID, pointsPerSlot, maxSlots, toNanos(now), toNanos(now)); err != nil {
			return fmt.Errorf("insert pool: %w", err)
		}

		pool = &domain.MissionFundingPool{
			MissionID:     missionID,
			BusinessID:    businessID,
			PointsPerSlot: pointsPerSlot,
			MaxSlots:      maxSlots,
			Status:        domain.PoolActive,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return nil
	})
	return pool, ledgerTx, err
}

// consumeSlotTx increments slots_consumed by one inside an open transaction,
// flipping the pool to EXHAUSTED when the last slot goes. The single
// conditional UPDATE is the concurrency guard: a pool that is terminal or
// missing changes zero rows.
func consumeSlotTx(tx *sql.Tx, missionID string, now time.Time) error {
	res, err := tx.Exec(`
		UPDATE funding_pools
		SET slots_consumed = slots_consumed + 1,
		    status = CASE WHEN slots_consumed + 1 >= max_slots THEN 'EXHAUSTED' ELSE status END,
		    updated_at = ?
		WHERE mission_id = ? AND status = 'ACTIVE' AND slots_consumed < max_slots
	`, toNanos(now), missionID)
	if err != nil {
		return fmt.Errorf("consume slot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := getPool(tx.QueryRow(`
			SELECT mission_id, business_id, points_per_slot, max_slots, slots_consumed, status, created_at, updated_at
			FROM funding_pools WHERE mission_id = ?
		`, missionID)); err != nil {
			return err // ErrPoolNotFound
		}
		return domain.ErrPoolNotActive
	}
	return nil
}

// ConsumeSlot consumes one slot from an ACTIVE pool.
func (db *DB) ConsumeSlot(missionID string, now time.Time) error {
	return db.inTx(func(tx *sql.Tx) error {
		return consumeSlotTx(tx, missionID, now)
	})
}

// CancelPool transitions an ACTIVE or EXHAUSTED pool to CANCELLED and
// refunds the unconsumed reserve to the business in the same transaction.
// A refund of zero (all slots consumed) is a no-op, not an error.
func (db *DB) CancelPool(missionID, reason string, now time.Time) (*domain.MissionFundingPool, int64, error) {
	var pool *domain.MissionFundingPool
	var refund int64

	err := db.inTx(func(tx *sql.Tx) error {
		var err error
		pool, err = getPool(tx.QueryRow(`
			SELECT mission_id, business_id, points_per_slot, max_slots, slots_consumed, status, created_at, updated_at
			FROM funding_pools WHERE mission_id = ?
		`, missionID))
		if err != nil {
			return err
		}
		if pool.Status == domain.PoolCancelled {
			return domain.ErrPoolNotActive
		}

		res, err := tx.Exec(`
			UPDATE funding_pools SET status = 'CANCELLED', updated_at = ?
			WHERE mission_id = ? AND status IN ('ACTIVE', 'EXHAUSTED')
		`, toNanos(now), missionID)
		if err != nil {
			return fmt.Errorf("cancel pool: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return domain.ErrPoolNotActive
		}

		refund = pool.RefundableAmount()
		if refund > 0 {
			if _, err := applyTransaction(tx, txRequest{
				ownerID: pool.BusinessID,
				typ:     domain.TxRefund,
				amount:  refund,
				source:  "mission_cancellation_" + missionID,
				idemKey: "mission_cancellation_" + missionID,
				meta: map[string]string{
					"reason":         reason,
					"slots_consumed": fmt.Sprintf("%d", pool.SlotsConsumed),
					"max_slots":      fmt.Sprintf("%d", pool.MaxSlots),
				},
			}, now); err != nil {
				return err
			}
		}

		pool.Status = domain.PoolCancelled
		pool.UpdatedAt = now
		return nil
	})
	return pool, refund, err
}
