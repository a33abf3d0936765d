// Package store is the Job/Run Store (C1): durable jobs, runs, and LLM
// request/response audit rows, plus the repositories other components use
// to read/write episodes, claims, questions, and feedback. It replaces the
// teacher's ent-generated client with hand-written repositories over
// jackc/pgx/v5 — see DESIGN.md for why.
package store

import "errors"

// Sentinel errors per spec.md §7.
var (
	// ErrConcurrentModification is returned when an update-with-version call
	// supplies an updated_at that no longer matches the stored row.
	ErrConcurrentModification = errors.New("concurrent modification: stale updated_at")
	// ErrNotFound is returned when a lookup by id finds no row.
	ErrNotFound = errors.New("not found")
	// ErrRunAlreadyRunning is returned by StartRun when the job already has
	// a run in the running state (spec.md invariant: at most one per job).
	ErrRunAlreadyRunning = errors.New("job already has a running run")
	// ErrTerminalRun is returned when a caller tries to transition a run
	// that is already in a terminal state.
	ErrTerminalRun = errors.New("run is already in a terminal state")
)
