// Package domain contains the points-economy types, state machines, and
// sentinel errors. It imports no infrastructure.
package domain

import "time"

// ─── Points Account ─────────────────────────────────────────────────────────

// PointsAccount is a single owner's balance. Owners are businesses or
// customers; the ledger does not care which.
type PointsAccount struct {
	OwnerID   string    `json:"owner_id"`
	Balance   int64     `json:"balance"` // unit = 1 point, never negative
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ─── Ledger Transactions ────────────────────────────────────────────────────

// TransactionType is the business reason a balance moved.
type TransactionType string

const (
	TxEarn    TransactionType = "EARN"
	TxSpend   TransactionType = "SPEND"
	TxRefund  TransactionType = "REFUND"
	TxConvert TransactionType = "CONVERT"
)

// Direction returns +1 for types that increase the balance and -1 for types
// that decrease it.
func (t TransactionType) Direction() int64 {
	switch t {
	case TxEarn, TxRefund:
		return 1
	case TxSpend, TxConvert:
		return -1
	}
	return 0
}

// Valid reports whether t is one of the four known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TxEarn, TxSpend, TxRefund, TxConvert:
		return true
	}
	return false
}

// LedgerTransaction is one immutable row in the append-only transaction log.
// BalanceAfter = BalanceBefore ± Amount according to Type; rows are never
// updated or deleted once written.
type LedgerTransaction struct {
	ID            string            `json:"id"`
	OwnerID       string            `json:"owner_id"`
	Type          TransactionType   `json:"type"`
	Amount        int64             `json:"amount"` // always positive
	Source        string            `json:"source"` // causing entity, e.g. "mission_funding_<id>"
	BalanceBefore int64             `json:"balance_before"`
	BalanceAfter  int64             `json:"balance_after"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}
