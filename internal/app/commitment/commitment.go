// Package commitment runs the timed-commitment workflow: appointment
// bookings and bring-a-friend referrals move through a shared state machine,
// and their rewards are released later by the settlement sweep once the
// trust delay has elapsed.
package commitment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/merit-works/merit/internal/app/ratelimit"
	"github.com/merit-works/merit/internal/domain"
	"github.com/merit-works/merit/internal/infra/observability"
	"github.com/merit-works/merit/internal/infra/sqlite"
)

// Config bounds commitment creation and joining.
type Config struct {
	Window       time.Duration // sliding creation window per initiator and kind
	MaxPerWindow int           // creations allowed inside the window
	JoinWindow   time.Duration // how long a referral stays joinable after creation
	TrustDelay   time.Duration // completion → reward unlock
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Window:       30 * 24 * time.Hour,
		MaxPerWindow: 5,
		JoinWindow:   30 * time.Minute,
		TrustDelay:   72 * time.Hour,
	}
}

// Workflow is the timed-commitment application service.
type Workflow struct {
	db       *sqlite.DB
	guard    *ratelimit.Guard
	identity domain.Identity
	notifier domain.Notifier
	cfg      Config
	now      func() time.Time
}

// New creates a commitment workflow.
func New(db *sqlite.DB, guard *ratelimit.Guard, identity domain.Identity, notifier domain.Notifier, cfg Config) *Workflow {
	if identity == nil {
		identity = domain.AllowAllIdentity{}
	}
	if notifier == nil {
		notifier = domain.NoopNotifier{}
	}
	return &Workflow{db: db, guard: guard, identity: identity, notifier: notifier, cfg: cfg, now: time.Now}
}

// SetNowFunc overrides the clock. Tests use this for deterministic output.
func (w *Workflow) SetNowFunc(f func() time.Time) { w.now = f }

// Get returns a commitment by ID.
func (w *Workflow) Get(ctx context.Context, id string) (*domain.TimedCommitment, error) {
	return w.db.GetCommitment(id)
}

// CreateParams describes a new commitment. Appointments name their
// counterparty up front; referrals leave it empty and hand out a join code.
type CreateParams struct {
	Kind           domain.CommitmentKind
	InitiatorID    string
	CounterpartyID string
	RewardPoints   int64
	Details        string
	ScheduledAt    time.Time
}

// Create validates the rate-limit window, the one-time-reward guard and the
// proposed schedule, then records a PENDING commitment.
func (w *Workflow) Create(ctx context.Context, params CreateParams) (*domain.TimedCommitment, error) {
	if !params.Kind.Valid() {
		return nil, fmt.Errorf("unknown commitment kind %q", params.Kind)
	}
	if params.RewardPoints <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	ok, err := w.identity.Exists(ctx, params.InitiatorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrAccountNotFound
	}

	now := w.now()
	if params.Kind == domain.KindAppointment && params.ScheduledAt.IsZero() {
		return nil, domain.ErrInvalidSchedule
	}
	if !params.ScheduledAt.IsZero() && !params.ScheduledAt.After(now) {
		return nil, domain.ErrInvalidSchedule
	}

	if err := w.guard.CheckWindow(ctx, params.InitiatorID, params.Kind, w.cfg.Window, w.cfg.MaxPerWindow); err != nil {
		return nil, err
	}
	if params.CounterpartyID != "" {
		prior, err := w.guard.HasPriorCompletion(ctx, params.InitiatorID, params.CounterpartyID, params.Kind)
		if err != nil {
			return nil, err
		}
		if prior {
			return nil, domain.ErrAlreadyCompleted
		}
	}

	if err := w.db.EnsureAccount(params.InitiatorID, now); err != nil {
		return nil, err
	}
	if params.CounterpartyID != "" {
		if err := w.db.EnsureAccount(params.CounterpartyID, now); err != nil {
			return nil, err
		}
	}

	c := &domain.TimedCommitment{
		ID:             uuid.NewString(),
		Kind:           params.Kind,
		InitiatorID:    params.InitiatorID,
		CounterpartyID: params.CounterpartyID,
		Status:         domain.CommitmentPending,
		RewardPoints:   params.RewardPoints,
		Details:        params.Details,
		ScheduledAt:    params.ScheduledAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if params.Kind == domain.KindReferral {
		c.JoinCode = newJoinCode()
	}
	if err := w.db.InsertCommitment(c); err != nil {
		return nil, err
	}
	observability.CommitmentsCreated.WithLabelValues(string(params.Kind)).Inc()
	return c, nil
}

// Confirm moves PENDING → CONFIRMED and tells the initiator.
func (w *Workflow) Confirm(ctx context.Context, id, agreedDetails string) (*domain.TimedCommitment, error) {
	if err := w.db.ConfirmCommitment(id, agreedDetails, w.now()); err != nil {
		return nil, err
	}
	observability.CommitmentTransitions.WithLabelValues(string(domain.CommitmentConfirmed)).Inc()

	c, err := w.db.GetCommitment(id)
	if err != nil {
		return nil, err
	}
	w.notifier.Notify(c.InitiatorID, domain.NotifyCommitmentConfirmed, map[string]any{
		"commitment_id": id,
		"details":       agreedDetails,
	})
	return c, nil
}

// Complete moves CONFIRMED → COMPLETED and stamps the reward unlock time.
// No points move here; the settlement sweep pays once the trust delay
// elapses.
func (w *Workflow) Complete(ctx context.Context, id string) (*domain.TimedCommitment, error) {
	now := w.now()
	if err := w.db.CompleteCommitment(id, now, now.Add(w.cfg.TrustDelay)); err != nil {
		return nil, err
	}
	observability.CommitmentTransitions.WithLabelValues(string(domain.CommitmentCompleted)).Inc()
	return w.db.GetCommitment(id)
}

// Cancel moves PENDING or CONFIRMED → CANCELLED and tells the other party.
func (w *Workflow) Cancel(ctx context.Context, id, actor, reason string) (*domain.TimedCommitment, error) {
	before, err := w.db.GetCommitment(id)
	if err != nil {
		return nil, err
	}
	if err := w.db.CancelCommitment(id, actor, reason, w.now()); err != nil {
		return nil, err
	}
	observability.CommitmentTransitions.WithLabelValues(string(domain.CommitmentCancelled)).Inc()

	other := before.CounterpartyID
	if actor != before.InitiatorID {
		other = before.InitiatorID
	}
	if other != "" {
		w.notifier.Notify(other, domain.NotifyCommitmentCancelled, map[string]any{
			"commitment_id": id,
			"actor":         actor,
			"reason":        reason,
		})
	}
	return w.db.GetCommitment(id)
}

// MarkNoShow moves CONFIRMED → NO_SHOW. The reward is forfeited.
func (w *Workflow) MarkNoShow(ctx context.Context, id string) (*domain.TimedCommitment, error) {
	if err := w.db.MarkNoShow(id, w.now()); err != nil {
		return nil, err
	}
	observability.CommitmentTransitions.WithLabelValues(string(domain.CommitmentNoShow)).Inc()
	return w.db.GetCommitment(id)
}

// Join binds the second party to an open referral. The join code must match
// and the join window, measured from creation, must still be open.
func (w *Workflow) Join(ctx context.Context, id, counterpartyID, code string) (*domain.TimedCommitment, error) {
	c, err := w.db.GetCommitment(id)
	if err != nil {
		return nil, err
	}
	if c.Kind != domain.KindReferral {
		return nil, domain.ErrInvalidTransition
	}
	if counterpartyID == "" || counterpartyID == c.InitiatorID {
		return nil, domain.ErrInvalidTransition
	}
	now := w.now()
	if now.After(c.CreatedAt.Add(w.cfg.JoinWindow)) {
		return nil, domain.ErrWindowExpired
	}
	if !strings.EqualFold(code, c.JoinCode) {
		return nil, domain.ErrJoinCodeMismatch
	}

	ok, err := w.identity.Exists(ctx, counterpartyID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	prior, err := w.guard.HasPriorCompletion(ctx, c.InitiatorID, counterpartyID, c.Kind)
	if err != nil {
		return nil, err
	}
	if prior {
		return nil, domain.ErrAlreadyCompleted
	}

	if err := w.db.EnsureAccount(counterpartyID, now); err != nil {
		return nil, err
	}
	if err := w.db.BindCounterparty(id, counterpartyID, now); err != nil {
		return nil, err
	}
	return w.db.GetCommitment(id)
}

// newJoinCode returns a short shareable code. Codes are compared
// case-insensitively at join time.
func newJoinCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
