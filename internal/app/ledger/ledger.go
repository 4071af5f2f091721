// Package ledger is the application service over the points ledger.
// It owns account bootstrap, the credit/debit entry points the other
// services and the API share, and point-to-value conversion.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/merit-works/merit/internal/domain"
	"github.com/merit-works/merit/internal/infra/observability"
	"github.com/merit-works/merit/internal/infra/sqlite"
)

// Service exposes ledger operations to the API and sibling services.
type Service struct {
	db  *sqlite.DB
	now func() time.Time
}

// New creates a ledger service.
func New(db *sqlite.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// SetNowFunc overrides the clock. Tests use this for deterministic output.
func (s *Service) SetNowFunc(f func() time.Time) { s.now = f }

// EnsureAccount creates the owner's account if it does not exist yet and
// returns it. Safe to call repeatedly.
func (s *Service) EnsureAccount(ctx context.Context, ownerID string) (*domain.PointsAccount, error) {
	if ownerID == "" {
		return nil, domain.ErrAccountNotFound
	}
	if err := s.db.EnsureAccount(ownerID, s.now()); err != nil {
		return nil, fmt.Errorf("ensure account: %w", err)
	}
	return s.db.GetAccount(ownerID)
}

// Balance returns the owner's account.
func (s *Service) Balance(ctx context.Context, ownerID string) (*domain.PointsAccount, error) {
	return s.db.GetAccount(ownerID)
}

// TotalPoints returns the sum of every account balance.
func (s *Service) TotalPoints(ctx context.Context) (int64, error) {
	return s.db.SumBalances()
}

// History returns the owner's most recent transactions, newest first.
func (s *Service) History(ctx context.Context, ownerID string, limit int) ([]domain.LedgerTransaction, error) {
	if _, err := s.db.GetAccount(ownerID); err != nil {
		return nil, err
	}
	return s.db.ListTransactions(ownerID, limit)
}

// Credit adds points to an account with an EARN or REFUND transaction.
func (s *Service) Credit(ctx context.Context, ownerID string, amount int64, typ domain.TransactionType, source string, meta map[string]string) (domain.LedgerTransaction, error) {
	tx, err := s.db.Credit(ownerID, amount, typ, source, "", meta, s.now())
	if err != nil {
		return tx, err
	}
	observability.LedgerTransactions.WithLabelValues(string(typ)).Inc()
	observability.PointsMoved.WithLabelValues(string(typ)).Add(float64(tx.Amount))
	return tx, nil
}

// Debit removes points from an account with a SPEND or CONVERT transaction.
func (s *Service) Debit(ctx context.Context, ownerID string, amount int64, typ domain.TransactionType, source string, meta map[string]string) (domain.LedgerTransaction, error) {
	tx, err := s.db.Debit(ownerID, amount, typ, source, "", meta, s.now())
	if err != nil {
		return tx, err
	}
	observability.LedgerTransactions.WithLabelValues(string(typ)).Inc()
	observability.PointsMoved.WithLabelValues(string(typ)).Add(float64(tx.Amount))
	return tx, nil
}

// Conversion is the result of turning points into subscription value.
type Conversion struct {
	Transaction domain.LedgerTransaction `json:"transaction"`
	Points      int64                    `json:"points"`
	Rate        float64                  `json:"rate"`
	Value       float64                  `json:"value"`
}

// Convert debits points as a CONVERT transaction and reports the value the
// caller should credit outside the ledger (for example against a
// subscription invoice). The rate is value per point and must be positive.
func (s *Service) Convert(ctx context.Context, ownerID string, points int64, rate float64) (*Conversion, error) {
	if points <= 0 || rate <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	source := "conversion_" + uuid.NewString()
	meta := map[string]string{"rate": fmt.Sprintf("%g", rate)}
	tx, err := s.Debit(ctx, ownerID, points, domain.TxConvert, source, meta)
	if err != nil {
		return nil, err
	}
	return &Conversion{
		Transaction: tx,
		Points:      points,
		Rate:        rate,
		Value:       float64(points) * rate,
	}, nil
}
