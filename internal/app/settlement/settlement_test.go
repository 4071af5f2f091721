package settlement

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/merit-works/merit/internal/domain"
	"github.com/merit-works/merit/internal/infra/sqlite"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []struct {
		Recipient string
		Kind      domain.NotificationKind
	}
}

func (r *recordingNotifier) Notify(recipient string, kind domain.NotificationKind, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, struct {
		Recipient string
		Kind      domain.NotificationKind
	}{recipient, kind})
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func newTestSweeper(t *testing.T) (*Sweeper, *sqlite.DB, *recordingNotifier) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "merit.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	notifier := &recordingNotifier{}
	s := New(db, notifier)
	s.SetNowFunc(func() time.Time { return testNow })
	return s, db, notifier
}

// seedCompleted inserts a commitment already completed with the given unlock
// time.
func seedCompleted(t *testing.T, db *sqlite.DB, initiator string, kind domain.CommitmentKind, counterparty string, unlockAt time.Time) *domain.TimedCommitment {
	t.Helper()
	db.EnsureAccount(initiator, testNow)
	if counterparty != "" {
		db.EnsureAccount(counterparty, testNow)
	}
	c := &domain.TimedCommitment{
		ID:           uuid.NewString(),
		Kind:         kind,
		InitiatorID:  initiator,
		Status:       domain.CommitmentPending,
		RewardPoints: 50,
		CreatedAt:    testNow.Add(-100 * time.Hour),
		UpdatedAt:    testNow.Add(-100 * time.Hour),
	}
	if kind != domain.KindReferral {
		c.CounterpartyID = counterparty
	}
	if err := db.InsertCommitment(c); err != nil {
		t.Fatalf("InsertCommitment() error: %v", err)
	}
	if counterparty != "" && kind == domain.KindReferral {
		// referral counterparties bind before confirmation
		if err := db.BindCounterparty(c.ID, counterparty, testNow); err != nil {
			t.Fatalf("BindCounterparty() error: %v", err)
		}
		c.CounterpartyID = counterparty
	}
	if err := db.ConfirmCommitment(c.ID, "agreed", testNow.Add(-90*time.Hour)); err != nil {
		t.Fatalf("ConfirmCommitment() error: %v", err)
	}
	if err := db.CompleteCommitment(c.ID, unlockAt.Add(-72*time.Hour), unlockAt); err != nil {
		t.Fatalf("CompleteCommitment() error: %v", err)
	}
	return c
}

func TestSweepSettlesMatured(t *testing.T) {
	s, db, notifier := newTestSweeper(t)
	ctx := context.Background()

	mature := seedCompleted(t, db, "cust-1", domain.KindAppointment, "biz-1", testNow.Add(-time.Hour))
	seedCompleted(t, db, "cust-2", domain.KindAppointment, "biz-1", testNow.Add(10*time.Hour))

	settled, errs := s.Sweep(ctx)
	if len(errs) != 0 {
		t.Fatalf("Sweep() errors: %v", errs)
	}
	if settled != 1 {
		t.Fatalf("settled = %d, want 1 (only the matured one)", settled)
	}

	acc, _ := db.GetAccount("cust-1")
	if acc.Balance != 50 {
		t.Errorf("cust-1 Balance = %d, want 50", acc.Balance)
	}
	got, _ := db.GetCommitment(mature.ID)
	if got.Status != domain.CommitmentSettled {
		t.Errorf("Status = %s, want SETTLED", got.Status)
	}
	if notifier.count() != 1 {
		t.Errorf("notifications = %d, want 1 reward_unlocked", notifier.count())
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	s, db, notifier := newTestSweeper(t)
	ctx := context.Background()
	seedCompleted(t, db, "cust-1", domain.KindAppointment, "biz-1", testNow.Add(-time.Hour))

	for i := 0; i < 3; i++ {
		if _, errs := s.Sweep(ctx); len(errs) != 0 {
			t.Fatalf("Sweep() %d errors: %v", i, errs)
		}
	}

	acc, _ := db.GetAccount("cust-1")
	if acc.Balance != 50 {
		t.Errorf("Balance = %d, want 50 after repeated sweeps", acc.Balance)
	}
	if notifier.count() != 1 {
		t.Errorf("notifications = %d, want exactly 1", notifier.count())
	}
}

func TestConcurrentSweeps(t *testing.T) {
	s, db, notifier := newTestSweeper(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		seedCompleted(t, db, "cust-1", domain.KindAppointment, "biz-1", testNow.Add(-time.Hour))
	}

	var wg sync.WaitGroup
	results := make([]int, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			settled, _ := s.Sweep(ctx)
			results[slot] = settled
		}(i)
	}
	wg.Wait()

	total := 0
	for _, n := range results {
		total += n
	}
	if total != 5 {
		t.Errorf("total settled across sweeps = %d, want 5 (each exactly once)", total)
	}
	acc, _ := db.GetAccount("cust-1")
	if acc.Balance != 250 {
		t.Errorf("Balance = %d, want 250 (5 × 50, no double credit)", acc.Balance)
	}
	if notifier.count() != 5 {
		t.Errorf("notifications = %d, want 5", notifier.count())
	}
}

func TestSettleReferralNotifiesBothParties(t *testing.T) {
	s, db, notifier := newTestSweeper(t)
	ctx := context.Background()
	c := seedCompleted(t, db, "cust-1", domain.KindReferral, "cust-2", testNow.Add(-time.Hour))

	res, err := s.Settle(ctx, c.ID)
	if err != nil {
		t.Fatalf("Settle() error: %v", err)
	}
	if len(res.Recipients) != 2 {
		t.Fatalf("Recipients = %v, want both parties", res.Recipients)
	}
	if notifier.count() != 2 {
		t.Errorf("notifications = %d, want 2", notifier.count())
	}
	for _, owner := range []string{"cust-1", "cust-2"} {
		acc, _ := db.GetAccount(owner)
		if acc.Balance != 50 {
			t.Errorf("%s Balance = %d, want 50", owner, acc.Balance)
		}
	}
}

func TestSweepCollectsErrorsAndContinues(t *testing.T) {
	s, db, _ := newTestSweeper(t)
	ctx := context.Background()

	// A matured commitment whose initiator never got an account forces a
	// per-item failure; the healthy one must still settle.
	broken := &domain.TimedCommitment{
		ID:           uuid.NewString(),
		Kind:         domain.KindAppointment,
		InitiatorID:  "ghost",
		Status:       domain.CommitmentPending,
		RewardPoints: 50,
		CreatedAt:    testNow.Add(-100 * time.Hour),
		UpdatedAt:    testNow.Add(-100 * time.Hour),
	}
	if err := db.InsertCommitment(broken); err != nil {
		t.Fatalf("InsertCommitment() error: %v", err)
	}
	db.ConfirmCommitment(broken.ID, "agreed", testNow.Add(-90*time.Hour))
	db.CompleteCommitment(broken.ID, testNow.Add(-74*time.Hour), testNow.Add(-2*time.Hour))

	seedCompleted(t, db, "cust-1", domain.KindAppointment, "biz-1", testNow.Add(-time.Hour))

	settled, errs := s.Sweep(ctx)
	if settled != 1 {
		t.Errorf("settled = %d, want 1", settled)
	}
	if len(errs) != 1 {
		t.Errorf("errors = %v, want exactly 1", errs)
	}
	acc, _ := db.GetAccount("cust-1")
	if acc.Balance != 50 {
		t.Errorf("healthy commitment not settled: Balance = %d", acc.Balance)
	}
}
