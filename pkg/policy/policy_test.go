package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symgym/symgym/pkg/domain"
)

func snapshot(t *testing.T, liveIDs ...domain.StateID) domain.GraphState {
	t.Helper()
	nodes := []domain.Node{{ID: "n"}}
	live := make([]domain.LiveState, 0, len(liveIDs))
	for _, id := range liveIDs {
		live = append(live, domain.LiveState{ID: id, Node: "n"})
	}
	gs, err := domain.NewGraphState(nodes, live, 0, false)
	require.NoError(t, err)
	return gs
}

func TestRandom_SelectsOnlyEligibleStates(t *testing.T) {
	ctx := context.Background()
	gs := snapshot(t, "a", "b", "c")
	p := NewRandom(1)

	seen := map[domain.StateID]bool{}
	for i := 0; i < 100; i++ {
		id, err := p.Select(ctx, gs)
		require.NoError(t, err)
		assert.Contains(t, gs.EligibleStateIDs(), id)
		seen[id] = true
	}
	// With 100 uniform draws over 3 states, all should appear.
	assert.Len(t, seen, 3)
}

func TestRandom_DeterministicForFixedSeed(t *testing.T) {
	ctx := context.Background()
	gs := snapshot(t, "a", "b", "c", "d", "e")

	first := make([]domain.StateID, 0, 20)
	p1 := NewRandom(7)
	for i := 0; i < 20; i++ {
		id, err := p1.Select(ctx, gs)
		require.NoError(t, err)
		first = append(first, id)
	}

	p2 := NewRandom(7)
	for i := 0; i < 20; i++ {
		id, err := p2.Select(ctx, gs)
		require.NoError(t, err)
		assert.Equal(t, first[i], id)
	}
}

func TestRandom_EmptySnapshot(t *testing.T) {
	gs, err := domain.NewGraphState([]domain.Node{{ID: "n"}}, nil, 0, true)
	require.NoError(t, err)

	_, err = NewRandom(1).Select(context.Background(), gs)
	assert.Error(t, err)
}

func TestFirst_PicksWireOrderHead(t *testing.T) {
	gs := snapshot(t, "z", "a")
	id, err := First{}.Select(context.Background(), gs)
	require.NoError(t, err)
	assert.Equal(t, domain.StateID("z"), id)
}
