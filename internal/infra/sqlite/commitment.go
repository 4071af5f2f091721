package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/merit-works/merit/internal/domain"
)

// ─── Commitment Operations ──────────────────────────────────────────────────

const commitmentColumns = `id, kind, initiator_id, counterparty_id, pair_scope, status,
	reward_points, join_code, details, scheduled_at, completed_at, reward_unlock_at,
	settled, created_at, updated_at`

func scanCommitment(row rowScanner) (*domain.TimedCommitment, error) {
	var c domain.TimedCommitment
	var scope string
	var scheduled, completed, unlock, created, updated int64
	var settled int
	err := row.Scan(&c.ID, &c.Kind, &c.InitiatorID, &c.CounterpartyID, &scope, &c.Status,
		&c.RewardPoints, &c.JoinCode, &c.Details, &scheduled, &completed, &unlock,
		&settled, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, domain.ErrCommitmentNotFound
	}
	if err != nil {
		return nil, err
	}
	c.ScheduledAt = fromNanos(scheduled)
	c.CompletedAt = fromNanos(completed)
	c.RewardUnlockAt = fromNanos(unlock)
	c.Settled = settled == 1
	c.CreatedAt = fromNanos(created)
	c.UpdatedAt = fromNanos(updated)
	return &c, nil
}

// GetCommitment retrieves a commitment by ID.
func (db *DB) GetCommitment(id string) (*domain.TimedCommitment, error) {
	return scanCommitment(db.db.QueryRow(
		`SELECT `+commitmentColumns+` FROM commitments WHERE id = ?`, id))
}

// InsertCommitment persists a freshly created PENDING commitment.
// pair_scope is stored when the counterparty is already known (appointments);
// referrals fill it in at join time.
func (db *DB) InsertCommitment(c *domain.TimedCommitment) error {
	scope := ""
	if c.CounterpartyID != "" {
		scope = domain.PairScope(c.InitiatorID, c.CounterpartyID)
	}
	settled := 0
	if c.Settled {
		settled = 1
	}
	_, err := db.db.Exec(`
		INSERT INTO commitments (`+commitmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, string(c.Kind), c.InitiatorID, c.CounterpartyID, scope, string(c.Status),
		c.RewardPoints, c.JoinCode, c.Details, toNanos(c.ScheduledAt),
		toNanos(c.CompletedAt), toNanos(c.RewardUnlockAt), settled,
		toNanos(c.CreatedAt), toNanos(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert commitment: %w", err)
	}
	return nil
}

// transition performs a conditional status update; zero rows affected means
// the caller lost a race or holds stale state.
func (db *DB) transition(id string, set string, args []any, fromStatuses string) error {
	args = append(args, id)
	res, err := db.db.Exec(`
		UPDATE commitments SET `+set+` WHERE id = ? AND status IN (`+fromStatuses+`)`, args...)
	if err != nil {
		return fmt.Errorf("commitment transition: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := db.GetCommitment(id); err != nil {
			return err // ErrCommitmentNotFound
		}
		return domain.ErrInvalidTransition
	}
	return nil
}

// ConfirmCommitment moves PENDING → CONFIRMED and records agreed details.
func (db *DB) ConfirmCommitment(id, agreedDetails string, now time.Time) error {
	return db.transition(id,
		`status = 'CONFIRMED', details = ?, updated_at = ?`,
		[]any{agreedDetails, toNanos(now)}, `'PENDING'`)
}

// CompleteCommitment moves CONFIRMED → COMPLETED, stamping completed_at and
// the reward unlock time exactly once.
func (db *DB) CompleteCommitment(id string, completedAt, unlockAt time.Time) error {
	return db.transition(id,
		`status = 'COMPLETED', completed_at = ?, reward_unlock_at = ?, updated_at = ?`,
		[]any{toNanos(completedAt), toNanos(unlockAt), toNanos(completedAt)}, `'CONFIRMED'`)
}

// CancelCommitment moves PENDING or CONFIRMED → CANCELLED.
func (db *DB) CancelCommitment(id, actor, reason string, now time.Time) error {
	details := fmt.Sprintf("cancelled by %s: %s", actor, reason)
	return db.transition(id,
		`status = 'CANCELLED', details = ?, updated_at = ?`,
		[]any{details, toNanos(now)}, `'PENDING','CONFIRMED'`)
}

// MarkNoShow moves CONFIRMED → NO_SHOW.
func (db *DB) MarkNoShow(id string, now time.Time) error {
	return db.transition(id,
		`status = 'NO_SHOW', updated_at = ?`,
		[]any{toNanos(now)}, `'CONFIRMED'`)
}

// BindCounterparty attaches the joining party to an open commitment that has
// no counterparty yet. The conditional update is the duplicate-join guard.
func (db *DB) BindCounterparty(id, counterpartyID string, now time.Time) error {
	var initiator string
	err := db.db.QueryRow(`SELECT initiator_id FROM commitments WHERE id = ?`, id).Scan(&initiator)
	if err == sql.ErrNoRows {
		return domain.ErrCommitmentNotFound
	}
	if err != nil {
		return err
	}
	scope := domain.PairScope(initiator, counterpartyID)

	res, err := db.db.Exec(`
		UPDATE commitments SET counterparty_id = ?, pair_scope = ?, updated_at = ?
		WHERE id = ? AND counterparty_id = '' AND status IN ('PENDING','CONFIRMED')
	`, counterpartyID, scope, toNanos(now), id)
	if err != nil {
		return fmt.Errorf("bind counterparty: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

// ─── Rate-Limit and Duplicate Queries ───────────────────────────────────────

// CountCommitmentsSince counts commitments of a kind created by the
// initiator at or after since (the sliding-window query).
func (db *DB) CountCommitmentsSince(initiatorID string, kind domain.CommitmentKind, since time.Time) (int, error) {
	var n int
	err := db.db.QueryRow(`
		SELECT COUNT(*) FROM commitments
		WHERE initiator_id = ? AND kind = ? AND created_at >= ?
	`, initiatorID, string(kind), toNanos(since)).Scan(&n)
	return n, err
}

// HasSettledPair reports whether the pairing has already earned a settled
// reward of this kind (the one-time-reward guard).
func (db *DB) HasSettledPair(scope string, kind domain.CommitmentKind) (bool, error) {
	var n int
	err := db.db.QueryRow(`
		SELECT COUNT(*) FROM commitments
		WHERE pair_scope = ? AND kind = ? AND status = 'SETTLED'
	`, scope, string(kind)).Scan(&n)
	return n > 0, err
}

// ─── Settlement ─────────────────────────────────────────────────────────────

// MatureCommitments returns commitments whose trust delay has elapsed and
// whose reward has not been released, oldest first.
func (db *DB) MatureCommitments(now time.Time, limit int) ([]domain.TimedCommitment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.db.Query(`
		SELECT `+commitmentColumns+` FROM commitments
		WHERE status = 'COMPLETED' AND settled = 0 AND reward_unlock_at > 0 AND reward_unlock_at <= ?
		ORDER BY reward_unlock_at LIMIT ?
	`, toNanos(now), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TimedCommitment
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

// SettleResult reports the outcome of one settlement attempt.
type SettleResult struct {
	Commitment *domain.TimedCommitment
	Already    bool     // someone else settled first; this call was a no-op
	Recipients []string // owners credited by the winning call
}

// SettleCommitment releases the reward exactly once. The credits are
// idempotent (keyed per commitment and recipient) and applied before the
// settled flag is set, so a crash between the two steps is repaired by the
// next retry; the conditional flag update decides the single winner under
// concurrent sweeps.
func (db *DB) SettleCommitment(id string, now time.Time) (*SettleResult, error) {
	var result *SettleResult

	err := db.inTx(func(tx *sql.Tx) error {
		c, err := scanCommitment(tx.QueryRow(
			`SELECT `+commitmentColumns+` FROM commitments WHERE id = ?`, id))
		if err != nil {
			return err
		}
		if c.Settled || c.Status == domain.CommitmentSettled {
			result = &SettleResult{Commitment: c, Already: true}
			return nil
		}
		if c.Status != domain.CommitmentCompleted {
			return domain.ErrInvalidTransition
		}

		recipients := []string{c.InitiatorID}
		if c.Kind == domain.KindReferral && c.CounterpartyID != "" {
			recipients = append(recipients, c.CounterpartyID)
		}

		for _, owner := range recipients {
			if _, err := applyTransaction(tx, txRequest{
				ownerID: owner,
				typ:     domain.TxEarn,
				amount:  c.RewardPoints,
				source:  "commitment_reward_" + c.ID,
				idemKey: "commitment_reward_" + c.ID + "_" + owner,
				meta:    map[string]string{"commitment_id": c.ID, "kind": string(c.Kind)},
			}, now); err != nil {
				return err
			}
		}

		res, err := tx.Exec(`
			UPDATE commitments SET settled = 1, status = 'SETTLED', updated_at = ?
			WHERE id = ? AND status = 'COMPLETED' AND settled = 0
		`, toNanos(now), id)
		if err != nil {
			return fmt.Errorf("mark settled: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			result = &SettleResult{Commitment: c, Already: true}
			return nil
		}

		c.Settled = true
		c.Status = domain.CommitmentSettled
		c.UpdatedAt = now
		result = &SettleResult{Commitment: c, Recipients: recipients}
		return nil
	})
	return result, err
}
