// Package policy holds reference step-policy implementations sufficient to
// validate the environment without a trained model.
package policy

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/symgym/symgym/pkg/domain"
)

// Random selects uniformly among the live states of the given snapshot.
// The random source is injected at construction so a fixed seed replays a
// fixed trajectory; there is no ambient global randomness.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom creates a uniform-random policy seeded deterministically.
func NewRandom(seed int64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

// Select picks one eligible state identifier uniformly at random.
func (p *Random) Select(ctx context.Context, gs domain.GraphState) (domain.StateID, error) {
	ids := gs.EligibleStateIDs()
	if len(ids) == 0 {
		return "", fmt.Errorf("no live states to select from")
	}
	p.mu.Lock()
	i := p.rng.Intn(len(ids))
	p.mu.Unlock()
	return ids[i], nil
}

// First always selects the first live state in wire order. Deterministic
// baseline for tests and sanity runs.
type First struct{}

// Select returns the first eligible state identifier.
func (First) Select(ctx context.Context, gs domain.GraphState) (domain.StateID, error) {
	ids := gs.EligibleStateIDs()
	if len(ids) == 0 {
		return "", fmt.Errorf("no live states to select from")
	}
	return ids[0], nil
}
