package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symgym/symgym/pkg/domain"
)

// RunEpisodeStoreContract runs a suite of tests verifying that an
// EpisodeStore implementation adheres to the interface contract. Adapter
// packages call this from their own tests.
func RunEpisodeStoreContract(t *testing.T, store EpisodeStore) {
	ctx := context.Background()
	sessionID := "contract-" + time.Now().Format("20060102150405.000")
	ep := contractEpisode(t, sessionID)

	t.Run("Save and Load", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, ep))

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, ep.MapID, loaded.MapID)
		assert.Equal(t, ep.SessionID, loaded.SessionID)
		require.Len(t, loaded.Records, len(ep.Records))
		assert.Equal(t, ep.Records[0].Command, loaded.Records[0].Command)
		assert.InDelta(t, ep.TotalReward(), loaded.TotalReward(), 1e-9)
		assert.InDelta(t, ep.FinalCoverage(), loaded.FinalCoverage(), 1e-9)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "absent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrEpisodeNotFound)
	})

	t.Run("List", func(t *testing.T) {
		id2 := sessionID + "-second"
		ep2 := contractEpisode(t, id2)
		require.NoError(t, store.Save(ctx, ep2))
		defer func() { _ = store.Delete(ctx, id2) }()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, sessionID)
		assert.Contains(t, ids, id2)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, sessionID))
		_, err := store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrEpisodeNotFound)

		// Deleting again must not fail.
		assert.NoError(t, store.Delete(ctx, sessionID))
	})
}

// RunEngineConnContract runs a suite of tests verifying the generic
// EngineConn contract against a factory and a registration the factory can
// serve. The map behind reg must have at least one reachable node.
func RunEngineConnContract(t *testing.T, factory ConnFactory, reg domain.Registration) {
	ctx := context.Background()

	t.Run("Register Yields Live State", func(t *testing.T) {
		conn, err := factory(ctx, reg.MapID)
		require.NoError(t, err)
		defer conn.Close()

		gs, err := conn.Register(ctx, reg)
		require.NoError(t, err)
		assert.False(t, gs.Terminal())
		require.NotEmpty(t, gs.EligibleStateIDs())
		assert.GreaterOrEqual(t, gs.Coverage(), 0.0)
		assert.LessOrEqual(t, gs.Coverage(), 1.0)
	})

	t.Run("Step Rejects Unknown State", func(t *testing.T) {
		conn, err := factory(ctx, reg.MapID)
		require.NoError(t, err)
		defer conn.Close()

		_, err = conn.Register(ctx, reg)
		require.NoError(t, err)
		_, err = conn.Step(ctx, domain.StepCommand{StateID: "no-such-state"})
		assert.ErrorIs(t, err, domain.ErrInvalidStepCommand)
	})

	t.Run("Close Is Idempotent", func(t *testing.T) {
		conn, err := factory(ctx, reg.MapID)
		require.NoError(t, err)
		require.NoError(t, conn.Close())
		assert.NoError(t, conn.Close())
	})
}

// contractEpisode builds a minimal two-snapshot trajectory for store tests.
func contractEpisode(t *testing.T, sessionID string) domain.Episode {
	t.Helper()

	nodes := []domain.Node{
		{ID: "a", Successors: []domain.NodeID{"b"}},
		{ID: "b", Predecessors: []domain.NodeID{"a"}},
	}
	prev, err := domain.NewGraphState(nodes,
		[]domain.LiveState{{ID: "s0", Node: "a"}}, 0.5, false)
	require.NoError(t, err)
	next, err := domain.NewGraphState(nodes,
		[]domain.LiveState{}, 1.0, true)
	require.NoError(t, err)

	return domain.Episode{
		SessionID: sessionID,
		MapID:     "contract-map",
		Records: []domain.StepRecord{{
			Prev:    prev,
			Command: domain.StepCommand{StateID: "s0"},
			Reward:  domain.Reward{Value: 0.5, CoverageGain: 0.5, StatesConsumed: 1},
			Next:    next,
		}},
	}
}
