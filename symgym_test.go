package symgym_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	symgym "github.com/symgym/symgym"
	"github.com/symgym/symgym/pkg/adapters/fileset"
	"github.com/symgym/symgym/pkg/adapters/memconn"
	"github.com/symgym/symgym/pkg/domain"
	"github.com/symgym/symgym/pkg/observability"
	"github.com/symgym/symgym/pkg/policy"
)

func lineMap(t *testing.T, registry *memconn.Registry, id string) {
	t.Helper()
	require.NoError(t, registry.Add(id, []domain.Node{
		{ID: "A", Successors: []domain.NodeID{"B"}},
		{ID: "B", Successors: []domain.NodeID{"C"}, Predecessors: []domain.NodeID{"A"}},
		{ID: "C", Predecessors: []domain.NodeID{"B"}},
	}, "A"))
}

func TestGym_PlayLinearMap(t *testing.T) {
	registry := memconn.NewRegistry()
	lineMap(t, registry, "line")

	gym, err := symgym.New(registry.Dial, policy.First{})
	require.NoError(t, err)

	ep, err := gym.Play(context.Background(), domain.Registration{MapID: "line"})
	require.NoError(t, err)

	assert.False(t, ep.Faulted)
	assert.Equal(t, "line", ep.MapID)
	assert.NotEmpty(t, ep.SessionID)

	// A -> B, B -> C, then the sink retires the state.
	require.Equal(t, 3, ep.Steps())
	assert.InDelta(t, 1.0, ep.FinalCoverage(), 1e-9)
	assert.True(t, ep.Records[2].Next.Terminal())

	afterFirst := ep.Records[0].Next
	live, ok := afterFirst.LiveStateByID("s0")
	require.True(t, ok)
	assert.Equal(t, domain.NodeID("B"), live.Node)
	assert.InDelta(t, 2.0/3.0, afterFirst.Coverage(), 1e-9)

	// Default reward is the coverage delta, so the total telescopes to the
	// coverage gained after registration.
	assert.InDelta(t, 2.0/3.0, ep.TotalReward(), 1e-9)
}

func TestGym_RunBatchWithFault(t *testing.T) {
	registry := memconn.NewRegistry()
	lineMap(t, registry, "clean")
	lineMap(t, registry, "crashy")
	registry.FailAfter("crashy", 2)

	gym, err := symgym.New(registry.Dial, policy.First{},
		symgym.WithConcurrency(2),
		symgym.WithStepTimeout(time.Second),
	)
	require.NoError(t, err)

	byMap := make(map[string]domain.Episode)
	for ep := range gym.Run(context.Background(), []domain.Registration{
		{MapID: "clean"},
		{MapID: "crashy"},
	}) {
		byMap[ep.MapID] = ep
	}
	require.Len(t, byMap, 2)

	assert.False(t, byMap["clean"].Faulted)
	assert.InDelta(t, 1.0, byMap["clean"].FinalCoverage(), 1e-9)

	crashed := byMap["crashy"]
	assert.True(t, crashed.Faulted)
	assert.Contains(t, crashed.FaultReason, "engine disconnected")
	// The first step landed before the crash; its record survives.
	assert.Equal(t, 1, crashed.Steps())
	assert.Less(t, crashed.FinalCoverage(), 1.0)
}

func TestGym_RunPersistsAndSummarizes(t *testing.T) {
	registry := memconn.NewRegistry()
	lineMap(t, registry, "m1")
	lineMap(t, registry, "m2")

	store := fileset.New(t.TempDir())

	gym, err := symgym.New(registry.Dial, policy.NewRandom(7),
		symgym.WithStore(store),
		symgym.WithStepBudget(100),
	)
	require.NoError(t, err)

	var episodes []domain.Episode
	for ep := range gym.Run(context.Background(), []domain.Registration{
		{MapID: "m1"}, {MapID: "m2"},
	}) {
		episodes = append(episodes, ep)
	}
	require.Len(t, episodes, 2)

	summary := observability.Summarize(episodes)
	assert.Equal(t, 2, summary.Episodes)
	assert.Zero(t, summary.Faulted)
	assert.InDelta(t, 1.0, summary.AverageCoverage, 1e-9)
	assert.InDelta(t, 0.0, summary.DistanceToFullCoverage, 1e-9)

	stored, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	best, err := store.BestResults()
	require.NoError(t, err)
	assert.Len(t, best, 2)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	registry := memconn.NewRegistry()

	_, err := symgym.New(nil, policy.First{})
	assert.Error(t, err)

	_, err = symgym.New(registry.Dial, nil)
	assert.Error(t, err)
}
