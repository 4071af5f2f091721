package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Validation errors are surfaced to the caller as a rejected operation;
// state-conflict errors indicate a race or stale client state.

var (
	// Ledger errors
	ErrInvalidAmount       = errors.New("amount must be a positive number of points")
	ErrAccountNotFound     = errors.New("points account not found")
	ErrInsufficientBalance = errors.New("insufficient points balance")

	// Funding pool errors
	ErrPoolNotFound    = errors.New("funding pool not found")
	ErrPoolExists      = errors.New("mission already has a funding pool")
	ErrPoolNotActive   = errors.New("funding pool is no longer active")
	ErrSlotUnavailable = errors.New("no funding slot available")

	// Participation errors
	ErrParticipationNotFound  = errors.New("participation not found")
	ErrDuplicateParticipation = errors.New("an active participation already exists for this mission")

	// Commitment errors
	ErrCommitmentNotFound = errors.New("commitment not found")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrRateLimited        = errors.New("too many commitments in the current window")
	ErrAlreadyCompleted   = errors.New("this pairing has already earned its one-time reward")
	ErrWindowExpired      = errors.New("join window has expired")
	ErrInvalidSchedule    = errors.New("proposed date must be in the future")
	ErrJoinCodeMismatch   = errors.New("join code does not match")
)
