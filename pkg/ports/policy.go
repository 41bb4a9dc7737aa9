package ports

import (
	"context"

	"github.com/symgym/symgym/pkg/domain"
)

// StepPolicy is the boundary the agent implements: given a snapshot, choose
// one live state to advance. Implementations may be stochastic but must be
// referentially transparent with respect to the given snapshot: any model
// state or randomness source is passed in explicitly at construction, never
// picked up ambiently, so a fixed seed replays a fixed trajectory.
type StepPolicy interface {
	Select(ctx context.Context, gs domain.GraphState) (domain.StateID, error)
}

// Scorer computes the reward for one transition. The session invokes it
// exactly once per successful step with an ordered (prev, next) pair; the
// scoring formula is policy, not contract.
type Scorer func(prev domain.GraphState, cmd domain.StepCommand, next domain.GraphState) domain.Reward
