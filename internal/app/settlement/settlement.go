// Package settlement releases matured commitment rewards. A sweep finds
// COMPLETED commitments whose trust delay has elapsed and settles each one
// exactly once; concurrent sweeps are safe because settling is idempotent.
package settlement

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/merit-works/merit/internal/domain"
	"github.com/merit-works/merit/internal/infra/observability"
	"github.com/merit-works/merit/internal/infra/sqlite"
)

// Sweeper is the settlement application service.
type Sweeper struct {
	db        *sqlite.DB
	notifier  domain.Notifier
	batchSize int
	now       func() time.Time
}

// New creates a sweeper.
func New(db *sqlite.DB, notifier domain.Notifier) *Sweeper {
	if notifier == nil {
		notifier = domain.NoopNotifier{}
	}
	return &Sweeper{db: db, notifier: notifier, batchSize: 100, now: time.Now}
}

// SetNowFunc overrides the clock. Tests use this for deterministic output.
func (s *Sweeper) SetNowFunc(f func() time.Time) { s.now = f }

// Settle releases the reward for one commitment. Exactly one caller wins;
// every other concurrent or repeated call is a no-op success. Recipients are
// notified on the winning path only.
func (s *Sweeper) Settle(ctx context.Context, id string) (*sqlite.SettleResult, error) {
	res, err := s.db.SettleCommitment(id, s.now())
	if err != nil {
		return nil, err
	}
	if res.Already {
		return res, nil
	}

	observability.CommitmentsSettled.Inc()
	observability.PointsReleased.Add(float64(res.Commitment.RewardPoints * int64(len(res.Recipients))))
	for _, owner := range res.Recipients {
		s.notifier.Notify(owner, domain.NotifyRewardUnlocked, map[string]any{
			"commitment_id": id,
			"kind":          string(res.Commitment.Kind),
			"points":        res.Commitment.RewardPoints,
		})
	}
	return res, nil
}

// Sweep settles every matured commitment. One failing item never aborts the
// batch; its error is collected and the sweep moves on. Returns how many
// commitments this sweep actually settled.
func (s *Sweeper) Sweep(ctx context.Context) (int, []error) {
	observability.SweepRuns.Inc()

	mature, err := s.db.MatureCommitments(s.now(), s.batchSize)
	if err != nil {
		return 0, []error{fmt.Errorf("query mature commitments: %w", err)}
	}

	var settled int
	var errs []error
	for _, c := range mature {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := s.Settle(ctx, c.ID)
		if err != nil {
			observability.SweepErrors.Inc()
			errs = append(errs, fmt.Errorf("settle %s: %w", c.ID, err))
			continue
		}
		if !res.Already {
			settled++
		}
	}
	if settled > 0 || len(errs) > 0 {
		log.Printf("[settlement] sweep: %d matured, %d settled, %d errors", len(mature), settled, len(errs))
	}
	return settled, errs
}
