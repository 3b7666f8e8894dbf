package state

import (
	"context"
	"time"
)

// State identifies a finite-state-machine step used in conversations.
type State string

const (
	// StateIdle indicates there is no active conversation with the user.
	StateIdle State = "idle"
)

// Session stores conversation state and bot-defined data for a user.
// Data is a snapshot: backends hand out copies, so callers persist changes
// through Manager.Update rather than by mutating a previously read value.
type Session[T any] struct {
	State     State     `json:"state"`
	Data      T         `json:"data"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Manager orchestrates user sessions and FSM state transitions.
type Manager[T any] interface {
	// Get returns the user's session or an idle session with zero Data.
	Get(ctx context.Context, userID int64) (Session[T], error)
	// Update applies fn to the stored session (or a fresh idle one) and saves the result.
	Update(ctx context.Context, userID int64, fn func(*Session[T])) error
	// SetState changes only the FSM state.
	SetState(ctx context.Context, userID int64, st State) error
	// CurrentState returns the FSM state, StateIdle when no session exists.
	CurrentState(ctx context.Context, userID int64) (State, error)
	// Clear removes the session entirely.
	Clear(ctx context.Context, userID int64) error
	// Lock serializes read-modify-write sequences for one user and returns the unlock func.
	Lock(userID int64) (unlock func())
	// Ping reports backend health.
	Ping(ctx context.Context) error
}
