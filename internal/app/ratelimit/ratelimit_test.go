package ratelimit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/merit-works/merit/internal/domain"
	"github.com/merit-works/merit/internal/infra/sqlite"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestGuard(t *testing.T) (*Guard, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "merit.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	g := New(db)
	g.SetNowFunc(func() time.Time { return testNow })
	return g, db
}

func insertCommitment(t *testing.T, db *sqlite.DB, initiator string, kind domain.CommitmentKind, createdAt time.Time) *domain.TimedCommitment {
	t.Helper()
	c := &domain.TimedCommitment{
		ID:           uuid.NewString(),
		Kind:         kind,
		InitiatorID:  initiator,
		Status:       domain.CommitmentPending,
		RewardPoints: 25,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
	if err := db.InsertCommitment(c); err != nil {
		t.Fatalf("InsertCommitment() error: %v", err)
	}
	return c
}

func TestCheckWindow(t *testing.T) {
	g, db := newTestGuard(t)
	ctx := context.Background()
	window := 30 * 24 * time.Hour

	// Four creations inside the window: the fifth slot is still open.
	for i := 0; i < 4; i++ {
		insertCommitment(t, db, "cust-1", domain.KindReferral, testNow.AddDate(0, 0, -i))
	}
	if err := g.CheckWindow(ctx, "cust-1", domain.KindReferral, window, 5); err != nil {
		t.Fatalf("CheckWindow() at 4/5 error: %v", err)
	}

	insertCommitment(t, db, "cust-1", domain.KindReferral, testNow)
	if err := g.CheckWindow(ctx, "cust-1", domain.KindReferral, window, 5); !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("CheckWindow() at 5/5 error = %v, want ErrRateLimited", err)
	}

	// A different kind and a different initiator have their own windows.
	if err := g.CheckWindow(ctx, "cust-1", domain.KindAppointment, window, 5); err != nil {
		t.Errorf("CheckWindow() other kind error: %v", err)
	}
	if err := g.CheckWindow(ctx, "cust-2", domain.KindReferral, window, 5); err != nil {
		t.Errorf("CheckWindow() other initiator error: %v", err)
	}
}

func TestCheckWindow_OldCommitmentsExpire(t *testing.T) {
	g, db := newTestGuard(t)
	ctx := context.Background()
	window := 30 * 24 * time.Hour

	for i := 0; i < 5; i++ {
		insertCommitment(t, db, "cust-1", domain.KindReferral, testNow.AddDate(0, 0, -31))
	}
	if err := g.CheckWindow(ctx, "cust-1", domain.KindReferral, window, 5); err != nil {
		t.Errorf("CheckWindow() with only expired entries error: %v", err)
	}
}

func TestHasPriorCompletion(t *testing.T) {
	g, db := newTestGuard(t)
	ctx := context.Background()
	db.EnsureAccount("cust-1", testNow)
	db.EnsureAccount("cust-2", testNow)

	c := insertCommitment(t, db, "cust-1", domain.KindReferral, testNow)
	db.BindCounterparty(c.ID, "cust-2", testNow)
	db.ConfirmCommitment(c.ID, "joined", testNow)
	db.CompleteCommitment(c.ID, testNow, testNow.Add(time.Hour))

	prior, err := g.HasPriorCompletion(ctx, "cust-1", "cust-2", domain.KindReferral)
	if err != nil {
		t.Fatalf("HasPriorCompletion() error: %v", err)
	}
	if prior {
		t.Error("completion reported before settlement")
	}

	if _, err := db.SettleCommitment(c.ID, testNow.Add(2*time.Hour)); err != nil {
		t.Fatalf("SettleCommitment() error: %v", err)
	}

	// The guard is direction-independent.
	if prior, _ = g.HasPriorCompletion(ctx, "cust-1", "cust-2", domain.KindReferral); !prior {
		t.Error("no completion reported after settlement")
	}
	if prior, _ = g.HasPriorCompletion(ctx, "cust-2", "cust-1", domain.KindReferral); !prior {
		t.Error("reversed direction not reported")
	}
	if prior, _ = g.HasPriorCompletion(ctx, "cust-1", "cust-3", domain.KindReferral); prior {
		t.Error("unrelated pairing reported completed")
	}
}
