// Package sqlite is the persistence layer for the points economy.
// One DB handle owns the schema; every mutating operation runs as a single
// SQLite transaction so no intermediate state is observable to concurrent
// readers. Balance changes all funnel through applyTransaction in ledger.go.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection and exposes typed operations.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies all migrations.
// Use ":memory:" for an in-process throwaway store in tests.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single writer keeps transactions linearized; WAL lets readers
	// proceed while a write transaction is open.
	conn.SetMaxOpenConns(1)
	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
		`PRAGMA foreign_keys = ON`,
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("apply pragma: %w", err)
		}
	}

	db := &DB{db: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.db.Close()
}

// migrate applies the schema. Each string is a single SQL statement
// (SQLite executes one at a time).
func (db *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Migrations returns the schema migration statements.
func Migrations() []string {
	return []string{
		// Points accounts. balance is only ever written by applyTransaction.
		`CREATE TABLE IF NOT EXISTS accounts (
			owner_id   TEXT PRIMARY KEY,
			balance    INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		// Append-only transaction log. idem_key makes replays of the same
		// logical operation return the original row instead of moving value
		// twice (NULL keys are exempt).
		`CREATE TABLE IF NOT EXISTS ledger_transactions (
			id             TEXT PRIMARY KEY,
			owner_id       TEXT NOT NULL,
			type           TEXT NOT NULL CHECK (type IN ('EARN','SPEND','REFUND','CONVERT')),
			amount         INTEGER NOT NULL CHECK (amount > 0),
			source         TEXT NOT NULL,
			idem_key       TEXT UNIQUE,
			balance_before INTEGER NOT NULL,
			balance_after  INTEGER NOT NULL,
			metadata       TEXT NOT NULL DEFAULT '{}',
			created_at     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_owner ON ledger_transactions(owner_id, created_at DESC)`,

		// Mission funding pools
		`CREATE TABLE IF NOT EXISTS funding_pools (
			mission_id      TEXT PRIMARY KEY,
			business_id     TEXT NOT NULL,
			points_per_slot INTEGER NOT NULL CHECK (points_per_slot > 0),
			max_slots       INTEGER NOT NULL CHECK (max_slots > 0),
			slots_consumed  INTEGER NOT NULL DEFAULT 0,
			status          TEXT NOT NULL DEFAULT 'ACTIVE' CHECK (status IN ('ACTIVE','CANCELLED','EXHAUSTED')),
			created_at      INTEGER NOT NULL,
			updated_at      INTEGER NOT NULL,
			CHECK (slots_consumed <= max_slots)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pool_business ON funding_pools(business_id)`,

		// Participations. At most one non-REJECTED attempt per (mission, user).
		`CREATE TABLE IF NOT EXISTS participations (
			id             TEXT PRIMARY KEY,
			mission_id     TEXT NOT NULL,
			user_id        TEXT NOT NULL,
			status         TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING','APPROVED','REJECTED')),
			points_awarded INTEGER,
			feedback       TEXT NOT NULL DEFAULT '',
			created_at     INTEGER NOT NULL,
			updated_at     INTEGER NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_participation_active
			ON participations(mission_id, user_id) WHERE status != 'REJECTED'`,
		`CREATE INDEX IF NOT EXISTS idx_participation_mission ON participations(mission_id, status)`,

		// Timed commitments (appointments and referrals)
		`CREATE TABLE IF NOT EXISTS commitments (
			id               TEXT PRIMARY KEY,
			kind             TEXT NOT NULL CHECK (kind IN ('APPOINTMENT','REFERRAL')),
			initiator_id     TEXT NOT NULL,
			counterparty_id  TEXT NOT NULL DEFAULT '',
			pair_scope       TEXT NOT NULL DEFAULT '',
			status           TEXT NOT NULL DEFAULT 'PENDING'
				CHECK (status IN ('PENDING','CONFIRMED','COMPLETED','CANCELLED','NO_SHOW','SETTLED')),
			reward_points    INTEGER NOT NULL CHECK (reward_points > 0),
			join_code        TEXT NOT NULL DEFAULT '',
			details          TEXT NOT NULL DEFAULT '',
			scheduled_at     INTEGER NOT NULL DEFAULT 0,
			completed_at     INTEGER NOT NULL DEFAULT 0,
			reward_unlock_at INTEGER NOT NULL DEFAULT 0,
			settled          INTEGER NOT NULL DEFAULT 0,
			created_at       INTEGER NOT NULL,
			updated_at       INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_commitment_window ON commitments(initiator_id, kind, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_commitment_sweep ON commitments(status, settled, reward_unlock_at)`,
		`CREATE INDEX IF NOT EXISTS idx_commitment_pair ON commitments(pair_scope, kind, status)`,
	}
}

// ─── Time Helpers ───────────────────────────────────────────────────────────
// All timestamps are stored as integer Unix nanoseconds so range queries
// order correctly without string parsing.

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
