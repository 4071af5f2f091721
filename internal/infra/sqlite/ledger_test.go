package sqlite

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/merit-works/merit/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "merit.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// ─── Account Tests ──────────────────────────────────────────────────────────

func TestEnsureAccount_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := db.EnsureAccount("biz-1", testNow); err != nil {
		t.Fatalf("EnsureAccount() error: %v", err)
	}
	if _, err := db.Credit("biz-1", 500, domain.TxEarn, "seed", "", nil, testNow); err != nil {
		t.Fatalf("Credit() error: %v", err)
	}
	// A second ensure must not reset the balance.
	if err := db.EnsureAccount("biz-1", testNow.Add(time.Hour)); err != nil {
		t.Fatalf("EnsureAccount() repeat error: %v", err)
	}

	acc, err := db.GetAccount("biz-1")
	if err != nil {
		t.Fatalf("GetAccount() error: %v", err)
	}
	if acc.Balance != 500 {
		t.Errorf("Balance = %d, want 500", acc.Balance)
	}
}

func TestGetAccount_NotFound(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.GetAccount("nobody"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("GetAccount() error = %v, want ErrAccountNotFound", err)
	}
}

// ─── Credit / Debit Tests ───────────────────────────────────────────────────

func TestCredit_AppendsTransaction(t *testing.T) {
	db := openTestDB(t)
	db.EnsureAccount("user-1", testNow)

	tx, err := db.Credit("user-1", 100, domain.TxEarn, "mission_reward_m1", "", map[string]string{"mission_id": "m1"}, testNow)
	if err != nil {
		t.Fatalf("Credit() error: %v", err)
	}
	if tx.BalanceBefore != 0 || tx.BalanceAfter != 100 {
		t.Errorf("balances = (%d, %d), want (0, 100)", tx.BalanceBefore, tx.BalanceAfter)
	}
	if tx.Type != domain.TxEarn {
		t.Errorf("Type = %s, want EARN", tx.Type)
	}

	history, err := db.ListTransactions("user-1", 10)
	if err != nil {
		t.Fatalf("ListTransactions() error: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("len(history) = %d, want 1", len(history))
	}
	if history[0].Source != "mission_reward_m1" {
		t.Errorf("Source = %q, want %q", history[0].Source, "mission_reward_m1")
	}
	if history[0].Metadata["mission_id"] != "m1" {
		t.Errorf("Metadata[mission_id] = %q, want %q", history[0].Metadata["mission_id"], "m1")
	}
}

func TestCredit_Validation(t *testing.T) {
	db := openTestDB(t)
	db.EnsureAccount("user-1", testNow)

	tests := []struct {
		name    string
		owner   string
		amount  int64
		wantErr error
	}{
		{"zero amount", "user-1", 0, domain.ErrInvalidAmount},
		{"negative amount", "user-1", -5, domain.ErrInvalidAmount},
		{"unknown owner", "ghost", 10, domain.ErrAccountNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.Credit(tt.owner, tt.amount, domain.TxEarn, "src", "", nil, testNow)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Credit() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDebit_InsufficientBalance(t *testing.T) {
	db := openTestDB(t)
	db.EnsureAccount("biz-1", testNow)
	db.Credit("biz-1", 50, domain.TxEarn, "seed", "", nil, testNow)

	if _, err := db.Debit("biz-1", 51, domain.TxSpend, "overdraw", "", nil, testNow); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("Debit() error = %v, want ErrInsufficientBalance", err)
	}

	// Failed debit must leave no trace.
	acc, _ := db.GetAccount("biz-1")
	if acc.Balance != 50 {
		t.Errorf("Balance after failed debit = %d, want 50", acc.Balance)
	}
	history, _ := db.ListTransactions("biz-1", 10)
	if len(history) != 1 {
		t.Errorf("len(history) = %d, want 1", len(history))
	}
}

func TestDebit_ExactBalance(t *testing.T) {
	db := openTestDB(t)
	db.EnsureAccount("biz-1", testNow)
	db.Credit("biz-1", 50, domain.TxEarn, "seed", "", nil, testNow)

	tx, err := db.Debit("biz-1", 50, domain.TxSpend, "all_in", "", nil, testNow)
	if err != nil {
		t.Fatalf("Debit() error: %v", err)
	}
	if tx.BalanceAfter != 0 {
		t.Errorf("BalanceAfter = %d, want 0", tx.BalanceAfter)
	}
}

// ─── Idempotency Tests ──────────────────────────────────────────────────────

func TestCredit_IdempotentReplay(t *testing.T) {
	db := openTestDB(t)
	db.EnsureAccount("user-1", testNow)

	first, err := db.Credit("user-1", 100, domain.TxEarn, "mission_reward_m1", "award-p1", nil, testNow)
	if err != nil {
		t.Fatalf("Credit() error: %v", err)
	}
	// Same idempotency key: value must move exactly once.
	second, err := db.Credit("user-1", 100, domain.TxEarn, "mission_reward_m1", "award-p1", nil, testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("replayed Credit() error: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("replay returned new transaction %s, want original %s", second.ID, first.ID)
	}

	acc, _ := db.GetAccount("user-1")
	if acc.Balance != 100 {
		t.Errorf("Balance = %d, want 100 (credited once)", acc.Balance)
	}
	history, _ := db.ListTransactions("user-1", 10)
	if len(history) != 1 {
		t.Errorf("len(history) = %d, want 1", len(history))
	}
}

func TestDebit_IdempotentReplay(t *testing.T) {
	db := openTestDB(t)
	db.EnsureAccount("biz-1", testNow)
	db.Credit("biz-1", 1000, domain.TxEarn, "seed", "", nil, testNow)

	for i := 0; i < 3; i++ {
		if _, err := db.Debit("biz-1", 400, domain.TxSpend, "mission_funding_m1", "fund-m1", nil, testNow); err != nil {
			t.Fatalf("Debit() attempt %d error: %v", i, err)
		}
	}

	acc, _ := db.GetAccount("biz-1")
	if acc.Balance != 600 {
		t.Errorf("Balance = %d, want 600 (debited once)", acc.Balance)
	}
}

// ─── Conservation ───────────────────────────────────────────────────────────

func TestSumBalances(t *testing.T) {
	db := openTestDB(t)
	db.EnsureAccount("a", testNow)
	db.EnsureAccount("b", testNow)
	db.Credit("a", 300, domain.TxEarn, "seed_a", "", nil, testNow)
	db.Credit("b", 200, domain.TxEarn, "seed_b", "", nil, testNow)
	db.Debit("a", 100, domain.TxSpend, "spend_a", "", nil, testNow)

	total, err := db.SumBalances()
	if err != nil {
		t.Fatalf("SumBalances() error: %v", err)
	}
	if total != 400 {
		t.Errorf("SumBalances() = %d, want 400", total)
	}
}
