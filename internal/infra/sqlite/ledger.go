package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/merit-works/merit/internal/domain"
)

// ─── Account Operations ─────────────────────────────────────────────────────

// EnsureAccount creates the owner's account with a zero balance if it does
// not exist yet. Callers use this for upsert-on-first-use before crediting.
func (db *DB) EnsureAccount(ownerID string, now time.Time) error {
	_, err := db.db.Exec(`
		INSERT INTO accounts (owner_id, balance, created_at, updated_at)
		VALUES (?, 0, ?, ?)
		ON CONFLICT(owner_id) DO NOTHING
	`, ownerID, toNanos(now), toNanos(now))
	return err
}

// GetAccount retrieves an account by owner.
func (db *DB) GetAccount(ownerID string) (*domain.PointsAccount, error) {
	var acc domain.PointsAccount
	var created, updated int64
	err := db.db.QueryRow(`
		SELECT owner_id, balance, created_at, updated_at FROM accounts WHERE owner_id = ?
	`, ownerID).Scan(&acc.OwnerID, &acc.Balance, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	acc.CreatedAt = fromNanos(created)
	acc.UpdatedAt = fromNanos(updated)
	return &acc, nil
}

// SumBalances returns the sum of every account balance (conservation checks).
func (db *DB) SumBalances() (int64, error) {
	var total sql.NullInt64
	err := db.db.QueryRow(`SELECT SUM(balance) FROM accounts`).Scan(&total)
	return total.Int64, err
}

// ─── Transaction Log ────────────────────────────────────────────────────────

// ListTransactions returns an owner's ledger transactions, newest first.
func (db *DB) ListTransactions(ownerID string, limit int) ([]domain.LedgerTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.db.Query(`
		SELECT id, owner_id, type, amount, source, balance_before, balance_after, metadata, created_at
		FROM ledger_transactions WHERE owner_id = ?
		ORDER BY created_at DESC, id LIMIT ?
	`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.LedgerTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (domain.LedgerTransaction, error) {
	var tx domain.LedgerTransaction
	var metaJSON string
	var created int64
	err := row.Scan(&tx.ID, &tx.OwnerID, &tx.Type, &tx.Amount, &tx.Source,
		&tx.BalanceBefore, &tx.BalanceAfter, &metaJSON, &created)
	if err != nil {
		return tx, err
	}
	tx.CreatedAt = fromNanos(created)
	if metaJSON != "" && metaJSON != "{}" {
		if err := json.Unmarshal([]byte(metaJSON), &tx.Metadata); err != nil {
			return tx, fmt.Errorf("decode transaction metadata: %w", err)
		}
	}
	return tx, nil
}

// ─── Atomic Balance Mutation ────────────────────────────────────────────────

// txRequest describes one ledger leg to apply inside a transaction.
type txRequest struct {
	ownerID string
	typ     domain.TransactionType
	amount  int64
	source  string
	idemKey string // empty = no idempotency guard
	meta    map[string]string
	clamp   bool // debit at most the current balance, recording the shortfall
}

// txResult is the outcome of one applied (or replayed) ledger leg.
type txResult struct {
	tx        domain.LedgerTransaction
	replayed  bool  // an identical idem_key already existed; nothing moved
	shortfall int64 // clamped debits: requested − actually debited
	skipped   bool  // clamped debit against a zero balance; no row written
}

// applyTransaction is the only writer of account balances in the entire
// repository. It must be called inside an open SQL transaction. The sequence
// is read balance → validate → append log row → update balance, so the log
// and the balance can never disagree.
func applyTransaction(tx *sql.Tx, req txRequest, now time.Time) (txResult, error) {
	var res txResult

	if req.amount <= 0 {
		return res, domain.ErrInvalidAmount
	}
	if !req.typ.Valid() {
		return res, fmt.Errorf("unknown transaction type %q", req.typ)
	}

	// Idempotent replay: the same logical operation was already applied.
	if req.idemKey != "" {
		row := tx.QueryRow(`
			SELECT id, owner_id, type, amount, source, balance_before, balance_after, metadata, created_at
			FROM ledger_transactions WHERE idem_key = ?
		`, req.idemKey)
		prior, err := scanTransaction(row)
		if err == nil {
			res.tx = prior
			res.replayed = true
			return res, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return res, err
		}
	}

	var balance int64
	err := tx.QueryRow(`SELECT balance FROM accounts WHERE owner_id = ?`, req.ownerID).Scan(&balance)
	if err == sql.ErrNoRows {
		return res, domain.ErrAccountNotFound
	}
	if err != nil {
		return res, err
	}

	amount := req.amount
	meta := req.meta
	if req.typ.Direction() < 0 && balance < amount {
		if !req.clamp {
			return res, domain.ErrInsufficientBalance
		}
		res.shortfall = amount - balance
		amount = balance
		if meta == nil {
			meta = make(map[string]string)
		}
		meta["shortfall"] = fmt.Sprintf("%d", res.shortfall)
		meta["requested"] = fmt.Sprintf("%d", req.amount)
		if amount == 0 {
			// Nothing left to debit: amount rows must stay positive, so the
			// shortfall is reported to the caller instead of logged here.
			res.skipped = true
			return res, nil
		}
	}

	newBalance := balance + req.typ.Direction()*amount

	metaJSON := "{}"
	if len(meta) > 0 {
		b, err := json.Marshal(meta)
		if err != nil {
			return res, fmt.Errorf("encode transaction metadata: %w", err)
		}
		metaJSON = string(b)
	}

	res.tx = domain.LedgerTransaction{
		ID:            uuid.NewString(),
		OwnerID:       req.ownerID,
		Type:          req.typ,
		Amount:        amount,
		Source:        req.source,
		BalanceBefore: balance,
		BalanceAfter:  newBalance,
		Metadata:      meta,
		CreatedAt:     now,
	}

	idemKey := sql.NullString{String: req.idemKey, Valid: req.idemKey != ""}
	if _, err := tx.Exec(`
		INSERT INTO ledger_transactions
			(id, owner_id, type, amount, source, idem_key, balance_before, balance_after, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, res.tx.ID, req.ownerID, string(req.typ), amount, req.source, idemKey,
		balance, newBalance, metaJSON, toNanos(now)); err != nil {
		return res, fmt.Errorf("append transaction: %w", err)
	}

	if _, err := tx.Exec(`
		UPDATE accounts SET balance = ?, updated_at = ? WHERE owner_id = ?
	`, newBalance, toNanos(now), req.ownerID); err != nil {
		return res, fmt.Errorf("update balance: %w", err)
	}

	return res, nil
}

// inTx runs fn inside a transaction, committing on nil and rolling back on
// error.
func (db *DB) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := db.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ─── Ledger Entry Points ────────────────────────────────────────────────────

// Credit atomically increases the owner's balance and appends a log row.
// typ must be EARN or REFUND. An empty idemKey disables replay protection.
func (db *DB) Credit(ownerID string, amount int64, typ domain.TransactionType, source, idemKey string, meta map[string]string, now time.Time) (domain.LedgerTransaction, error) {
	if typ != domain.TxEarn && typ != domain.TxRefund {
		return domain.LedgerTransaction{}, fmt.Errorf("credit requires EARN or REFUND, got %q", typ)
	}
	var res txResult
	err := db.inTx(func(tx *sql.Tx) error {
		var err error
		res, err = applyTransaction(tx, txRequest{
			ownerID: ownerID, typ: typ, amount: amount,
			source: source, idemKey: idemKey, meta: meta,
		}, now)
		return err
	})
	return res.tx, err
}

// Debit atomically decreases the owner's balance and appends a log row.
// typ must be SPEND or CONVERT. Fails with ErrInsufficientBalance when the
// balance does not cover the amount.
func (db *DB) Debit(ownerID string, amount int64, typ domain.TransactionType, source, idemKey string, meta map[string]string, now time.Time) (domain.LedgerTransaction, error) {
	if typ != domain.TxSpend && typ != domain.TxConvert {
		return domain.LedgerTransaction{}, fmt.Errorf("debit requires SPEND or CONVERT, got %q", typ)
	}
	var res txResult
	err := db.inTx(func(tx *sql.Tx) error {
		var err error
		res, err = applyTransaction(tx, txRequest{
			ownerID: ownerID, typ: typ, amount: amount,
			source: source, idemKey: idemKey, meta: meta,
		}, now)
		return err
	})
	return res.tx, err
}
