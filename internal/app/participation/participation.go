// Package participation runs a customer's attempt at a mission through its
// review lifecycle: apply, then a business approval that pays out or a
// rejection that reverses any prior payout.
package participation

import (
	"context"
	"log"
	"time"

	"github.com/merit-works/merit/internal/domain"
	"github.com/merit-works/merit/internal/infra/observability"
	"github.com/merit-works/merit/internal/infra/sqlite"
)

// Service is the participation application service.
type Service struct {
	db       *sqlite.DB
	identity domain.Identity
	notifier domain.Notifier
	now      func() time.Time
}

// New creates a participation service.
func New(db *sqlite.DB, identity domain.Identity, notifier domain.Notifier) *Service {
	if identity == nil {
		identity = domain.AllowAllIdentity{}
	}
	if notifier == nil {
		notifier = domain.NoopNotifier{}
	}
	return &Service{db: db, identity: identity, notifier: notifier, now: time.Now}
}

// SetNowFunc overrides the clock. Tests use this for deterministic output.
func (s *Service) SetNowFunc(f func() time.Time) { s.now = f }

// Get returns a participation by ID.
func (s *Service) Get(ctx context.Context, id string) (*domain.Participation, error) {
	return s.db.GetParticipation(id)
}

// Apply records a PENDING participation for the user on an ACTIVE mission.
// The user's points account is created here if this is their first contact
// with the engine.
func (s *Service) Apply(ctx context.Context, missionID, userID string) (*domain.Participation, error) {
	ok, err := s.identity.Exists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	if err := s.db.EnsureAccount(userID, s.now()); err != nil {
		return nil, err
	}
	return s.db.InsertParticipation(missionID, userID, s.now())
}

// Approve consumes a funding slot and credits the user in one atomic step.
// Retrying an approval that already went through is a no-op success.
func (s *Service) Approve(ctx context.Context, participationID string, points int64) (*domain.Participation, error) {
	p, err := s.db.ApproveParticipation(participationID, points, s.now())
	if err != nil {
		return nil, err
	}
	observability.Participations.WithLabelValues("approved").Inc()
	observability.LedgerTransactions.WithLabelValues(string(domain.TxEarn)).Inc()
	observability.PointsMoved.WithLabelValues(string(domain.TxEarn)).Add(float64(points))
	return p, nil
}

// Reject moves the participation to REJECTED and, when it had been approved,
// claws the award back down to at most a zero balance. The user is told the
// outcome, including how much was reversed.
func (s *Service) Reject(ctx context.Context, participationID, feedback string) (*sqlite.RejectResult, error) {
	res, err := s.db.RejectParticipation(participationID, feedback, s.now())
	if err != nil {
		return nil, err
	}
	observability.Participations.WithLabelValues("rejected").Inc()
	if res.Shortfall > 0 {
		observability.ReversalShortfall.Add(float64(res.Shortfall))
		log.Printf("[participation] %s rejected with shortfall: reversed %d of %d points",
			participationID, res.Reversed, res.Reversed+res.Shortfall)
	}

	s.notifier.Notify(res.Participation.UserID, domain.NotifyParticipationRejected, map[string]any{
		"participation_id": participationID,
		"mission_id":       res.Participation.MissionID,
		"feedback":         feedback,
		"points_reversed":  res.Reversed,
		"shortfall":        res.Shortfall,
	})
	return res, nil
}
