package sqlite

import (
	"testing"
	"time"
)

// ─── Conservation Helpers ───────────────────────────────────────────────────

// pointsInSystem is the sum of every account balance plus the unconsumed
// reserve of every pool that has not been cancelled.
func pointsInSystem(t *testing.T, db *DB) int64 {
	t.Helper()
	balances, err := db.SumBalances()
	if err != nil {
		t.Fatalf("SumBalances() error: %v", err)
	}
	var reserves int64
	err = db.db.QueryRow(`
		SELECT COALESCE(SUM(points_per_slot * (max_slots - slots_consumed)), 0)
		FROM funding_pools WHERE status != 'CANCELLED'
	`).Scan(&reserves)
	if err != nil {
		t.Fatalf("sum reserves: %v", err)
	}
	return balances + reserves
}

// ledgerNet is the signed sum of the whole transaction log. It must equal
// the sum of balances at all times: no balance ever changes outside the
// ledger.
func ledgerNet(t *testing.T, db *DB) int64 {
	t.Helper()
	var net int64
	err := db.db.QueryRow(`
		SELECT COALESCE(SUM(CASE WHEN type IN ('EARN','REFUND') THEN amount ELSE -amount END), 0)
		FROM ledger_transactions
	`).Scan(&net)
	if err != nil {
		t.Fatalf("sum ledger: %v", err)
	}
	return net
}

// ─── Conservation Scenario ──────────────────────────────────────────────────

// Walks fund → approve → reject → cancel → settle and checks after every
// step that balances plus outstanding reserves match the expected total and
// that the transaction log fully accounts for every balance. A rejection
// reversal extinguishes the awarded points (the consumed slot is not
// released), so the expected total drops by the reversed amount at that
// step; a commitment settlement mints its reward, so the total rises.
func TestConservation_EndToEnd(t *testing.T) {
	db := openTestDB(t)

	checkConserved := func(step string, want int64) {
		t.Helper()
		if got := pointsInSystem(t, db); got != want {
			t.Errorf("%s: points in system = %d, want %d", step, got, want)
		}
		balances, err := db.SumBalances()
		if err != nil {
			t.Fatalf("%s: SumBalances() error: %v", step, err)
		}
		if net := ledgerNet(t, db); net != balances {
			t.Errorf("%s: ledger net = %d, balances = %d; a balance moved outside the ledger", step, net, balances)
		}
	}

	seedBusiness(t, db, "biz-1", 1000)
	if err := db.EnsureAccount("cust-1", testNow); err != nil {
		t.Fatalf("EnsureAccount() error: %v", err)
	}
	checkConserved("seed", 1000)

	if _, _, err := db.FundPool("biz-1", "m1", 100, 10, testNow); err != nil {
		t.Fatalf("FundPool() error: %v", err)
	}
	checkConserved("fund", 1000)

	p, err := db.InsertParticipation("m1", "cust-1", testNow)
	if err != nil {
		t.Fatalf("InsertParticipation() error: %v", err)
	}
	if _, err := db.ApproveParticipation(p.ID, 100, testNow); err != nil {
		t.Fatalf("ApproveParticipation() error: %v", err)
	}
	checkConserved("approve", 1000)

	if _, err := db.RejectParticipation(p.ID, "submission rejected", testNow); err != nil {
		t.Fatalf("RejectParticipation() error: %v", err)
	}
	checkConserved("reject", 900)

	_, refund, err := db.CancelPool("m1", "wrapping up", testNow)
	if err != nil {
		t.Fatalf("CancelPool() error: %v", err)
	}
	if refund != 900 {
		t.Errorf("refund = %d, want 900 (9 unconsumed slots)", refund)
	}
	checkConserved("cancel", 900)

	c := seedCommitment(t, db, nil)
	if err := db.ConfirmCommitment(c.ID, "tuesday works", testNow); err != nil {
		t.Fatalf("ConfirmCommitment() error: %v", err)
	}
	if err := db.CompleteCommitment(c.ID, testNow, testNow.Add(72*time.Hour)); err != nil {
		t.Fatalf("CompleteCommitment() error: %v", err)
	}
	if _, err := db.SettleCommitment(c.ID, testNow.Add(73*time.Hour)); err != nil {
		t.Fatalf("SettleCommitment() error: %v", err)
	}
	checkConserved("settle", 950)
}
