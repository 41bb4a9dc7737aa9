package ports

import (
	"context"

	"github.com/symgym/symgym/pkg/domain"
)

// EngineConn is one logical request/response stream with a symbolic-execution
// engine. It is a capability, not a hierarchy: each concrete engine (V# or
// any other) supplies one implementation, and the session stays
// engine-agnostic.
//
// A connection is strictly alternating: one snapshot in flight, one command
// reply. Implementations are not required to be safe for concurrent use; the
// session guarantees single-caller access.
type EngineConn interface {
	// Register selects a map and returns the initial snapshot. Fails with
	// domain.ErrMapNotFound when the engine cannot load the map.
	Register(ctx context.Context, reg domain.Registration) (domain.GraphState, error)

	// Step asks the engine to advance one live state and blocks for the
	// resulting snapshot. The side effect happens engine-side before the
	// response arrives, so a failed Step must never be replayed.
	Step(ctx context.Context, cmd domain.StepCommand) (domain.GraphState, error)

	// Close releases the underlying connection and any engine process tied
	// to it. Safe to call more than once.
	Close() error
}

// ConnFactory opens a fresh engine connection for one map. The driver calls
// it once per session (and once more per retry).
type ConnFactory func(ctx context.Context, mapID string) (EngineConn, error)
