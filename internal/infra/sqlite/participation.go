package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/merit-works/merit/internal/domain"
)

// ─── Participation Operations ───────────────────────────────────────────────

const participationColumns = `id, mission_id, user_id, status, points_awarded, feedback, created_at, updated_at`

func scanParticipation(row rowScanner) (*domain.Participation, error) {
	var p domain.Participation
	var awarded sql.NullInt64
	var created, updated int64
	err := row.Scan(&p.ID, &p.MissionID, &p.UserID, &p.Status, &awarded, &p.Feedback, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, domain.ErrParticipationNotFound
	}
	if err != nil {
		return nil, err
	}
	if awarded.Valid {
		v := awarded.Int64
		p.PointsAwarded = &v
	}
	p.CreatedAt = fromNanos(created)
	p.UpdatedAt = fromNanos(updated)
	return &p, nil
}

// GetParticipation retrieves a participation by ID.
func (db *DB) GetParticipation(id string) (*domain.Participation, error) {
	return scanParticipation(db.db.QueryRow(
		`SELECT `+participationColumns+` FROM participations WHERE id = ?`, id))
}

// ListPendingParticipants returns the user IDs with a PENDING participation
// on the mission (the people to notify when the mission is cancelled).
func (db *DB) ListPendingParticipants(missionID string) ([]string, error) {
	rows, err := db.db.Query(`
		SELECT user_id FROM participations WHERE mission_id = ? AND status = 'PENDING' ORDER BY created_at
	`, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// InsertParticipation creates a PENDING participation, enforcing at most one
// non-REJECTED attempt per (mission, user).
func (db *DB) InsertParticipation(missionID, userID string, now time.Time) (*domain.Participation, error) {
	var p *domain.Participation
	err := db.inTx(func(tx *sql.Tx) error {
		pool, err := getPool(tx.QueryRow(`
			SELECT mission_id, business_id, points_per_slot, max_slots, slots_consumed, status, created_at, updated_at
			FROM funding_pools WHERE mission_id = ?
		`, missionID))
		if err != nil {
			return err
		}
		if pool.Status != domain.PoolActive {
			return domain.ErrPoolNotActive
		}

		id := uuid.NewString()
		_, err = tx.Exec(`
			INSERT INTO participations (id, mission_id, user_id, status, created_at, updated_at)
			VALUES (?, ?, ?, 'PENDING', ?, ?)
		`, id, missionID, userID, toNanos(now), toNanos(now))
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE") {
				return domain.ErrDuplicateParticipation
			}
			return fmt.Errorf("insert participation: %w", err)
		}

		p = &domain.Participation{
			ID: id, MissionID: missionID, UserID: userID,
			Status: domain.ParticipationPending, CreatedAt: now, UpdatedAt: now,
		}
		return nil
	})
	return p, err
}

// ApproveParticipation consumes a funding slot, credits the user, and moves
// the participation to APPROVED in one transaction, so a crash can never
// leave a credited user with an unapproved participation. Re-approving
// an already APPROVED participation with the same amount is a no-op success.
func (db *DB) ApproveParticipation(participationID string, points int64, now time.Time) (*domain.Participation, error) {
	if points <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	var approved *domain.Participation

	err := db.inTx(func(tx *sql.Tx) error {
		p, err := scanParticipation(tx.QueryRow(
			`SELECT `+participationColumns+` FROM participations WHERE id = ?`, participationID))
		if err != nil {
			return err
		}

		if p.Status == domain.ParticipationApproved {
			if p.PointsAwarded != nil && *p.PointsAwarded == points {
				approved = p // idempotent retry of a completed approval
				return nil
			}
			return domain.ErrInvalidTransition
		}
		if p.Status != domain.ParticipationPending {
			return domain.ErrInvalidTransition
		}

		if err := consumeSlotTx(tx, p.MissionID, now); err != nil {
			if err == domain.ErrPoolNotActive || err == domain.ErrPoolNotFound {
				return domain.ErrSlotUnavailable
			}
			return err
		}

		if _, err := applyTransaction(tx, txRequest{
			ownerID: p.UserID,
			typ:     domain.TxEarn,
			amount:  points,
			source:  "mission_reward_" + p.MissionID,
			idemKey: "participation_award_" + p.ID,
			meta:    map[string]string{"participation_id": p.ID, "mission_id": p.MissionID},
		}, now); err != nil {
			return err
		}

		res, err := tx.Exec(`
			UPDATE participations SET status = 'APPROVED', points_awarded = ?, updated_at = ?
			WHERE id = ? AND status = 'PENDING'
		`, points, toNanos(now), participationID)
		if err != nil {
			return fmt.Errorf("approve participation: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return domain.ErrInvalidTransition
		}

		p.Status = domain.ParticipationApproved
		p.PointsAwarded = &points
		p.UpdatedAt = now
		approved = p
		return nil
	})
	return approved, err
}

// RejectResult reports what a rejection did to the ledger.
type RejectResult struct {
	Participation *domain.Participation
	Reversed      int64 // points actually debited back from the user
	Shortfall     int64 // awarded points the user had already spent
}

// RejectParticipation moves a PENDING or APPROVED participation to REJECTED.
// When it reverses a prior approval it debits the user's balance down to at
// most zero; a shortfall never fails the rejection, it is recorded instead.
func (db *DB) RejectParticipation(participationID, feedback string, now time.Time) (*RejectResult, error) {
	var result *RejectResult

	err := db.inTx(func(tx *sql.Tx) error {
		p, err := scanParticipation(tx.QueryRow(
			`SELECT `+participationColumns+` FROM participations WHERE id = ?`, participationID))
		if err != nil {
			return err
		}
		if !p.CanReject() {
			return domain.ErrInvalidTransition
		}

		res := &RejectResult{Participation: p}
		if p.Status == domain.ParticipationApproved && p.PointsAwarded != nil {
			applied, err := applyTransaction(tx, txRequest{
				ownerID: p.UserID,
				typ:     domain.TxSpend,
				amount:  *p.PointsAwarded,
				source:  "mission_rejection_" + p.MissionID,
				idemKey: "participation_reversal_" + p.ID,
				meta:    map[string]string{"participation_id": p.ID, "mission_id": p.MissionID},
				clamp:   true,
			}, now)
			if err != nil {
				return err
			}
			if !applied.skipped {
				res.Reversed = applied.tx.Amount
			}
			res.Shortfall = applied.shortfall
		}

		upd, err := tx.Exec(`
			UPDATE participations SET status = 'REJECTED', feedback = ?, updated_at = ?
			WHERE id = ? AND status IN ('PENDING','APPROVED')
		`, feedback, toNanos(now), participationID)
		if err != nil {
			return fmt.Errorf("reject participation: %w", err)
		}
		if n, err := upd.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return domain.ErrInvalidTransition
		}

		p.Status = domain.ParticipationRejected
		p.Feedback = feedback
		p.UpdatedAt = now
		result = res
		return nil
	})
	return result, err
}
