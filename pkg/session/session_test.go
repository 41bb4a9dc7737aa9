package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symgym/symgym/pkg/adapters/memconn"
	"github.com/symgym/symgym/pkg/domain"
	"github.com/symgym/symgym/pkg/session"
)

// lineMap builds the A->B->C map of the reference scenario.
func lineMap(t *testing.T) *memconn.Registry {
	t.Helper()
	reg := memconn.NewRegistry()
	err := reg.Add("line", []domain.Node{
		{ID: "A", Successors: []domain.NodeID{"B"}},
		{ID: "B", Predecessors: []domain.NodeID{"A"}, Successors: []domain.NodeID{"C"}},
		{ID: "C", Predecessors: []domain.NodeID{"B"}},
	}, "A")
	require.NoError(t, err)
	return reg
}

func dialSession(t *testing.T, reg *memconn.Registry, mapID string, opts ...session.Option) *session.Session {
	t.Helper()
	conn, err := reg.Dial(context.Background(), mapID)
	require.NoError(t, err)
	return session.New(conn, opts...)
}

func TestSession_EndToEndLineMap(t *testing.T) {
	ctx := context.Background()
	sess := dialSession(t, lineMap(t), "line")

	initial, err := sess.Register(ctx, domain.Registration{MapID: "line"})
	require.NoError(t, err)
	assert.Equal(t, session.PhaseAwaitingStep, sess.Phase())
	require.Len(t, initial.LiveStates(), 1)
	assert.Equal(t, domain.NodeID("A"), initial.LiveStates()[0].Node)
	assert.InDelta(t, 1.0/3.0, initial.Coverage(), 1e-9)

	// First step: the state moves to B, coverage grows by one node.
	next, reward, err := sess.Step(ctx, domain.StepCommand{StateID: "s0"})
	require.NoError(t, err)
	assert.Equal(t, domain.NodeID("B"), next.LiveStates()[0].Node)
	assert.InDelta(t, 2.0/3.0, next.Coverage(), 1e-9)
	assert.False(t, next.Terminal())
	assert.InDelta(t, 1.0/3.0, reward.CoverageGain, 1e-9)

	// Second step: the state reaches C.
	next, _, err = sess.Step(ctx, domain.StepCommand{StateID: "s0"})
	require.NoError(t, err)
	assert.Equal(t, domain.NodeID("C"), next.LiveStates()[0].Node)
	assert.InDelta(t, 1.0, next.Coverage(), 1e-9)

	// Third step: C is a sink, the path finishes and the game ends.
	next, _, err = sess.Step(ctx, domain.StepCommand{StateID: "s0"})
	require.NoError(t, err)
	assert.True(t, next.Terminal())
	assert.Zero(t, next.LiveCount())
	assert.Equal(t, session.PhaseDone, sess.Phase())
}

func TestSession_InvalidStepCommand(t *testing.T) {
	ctx := context.Background()
	sess := dialSession(t, lineMap(t), "line")
	_, err := sess.Register(ctx, domain.Registration{MapID: "line"})
	require.NoError(t, err)

	_, _, err = sess.Step(ctx, domain.StepCommand{StateID: "stale"})
	assert.ErrorIs(t, err, domain.ErrInvalidStepCommand)

	// The pending step failed but the session survives.
	assert.Equal(t, session.PhaseAwaitingStep, sess.Phase())
	_, _, err = sess.Step(ctx, domain.StepCommand{StateID: "s0"})
	assert.NoError(t, err)
}

func TestSession_StepAfterDoneFails(t *testing.T) {
	ctx := context.Background()
	sess := dialSession(t, lineMap(t), "line")
	_, err := sess.Register(ctx, domain.Registration{MapID: "line"})
	require.NoError(t, err)

	for sess.Phase() == session.PhaseAwaitingStep {
		_, _, err = sess.Step(ctx, domain.StepCommand{StateID: "s0"})
		require.NoError(t, err)
	}
	require.Equal(t, session.PhaseDone, sess.Phase())

	steps := sess.StepsTaken()
	for i := 0; i < 3; i++ {
		_, _, err = sess.Step(ctx, domain.StepCommand{StateID: "s0"})
		assert.ErrorIs(t, err, domain.ErrSessionClosed)
	}
	assert.Equal(t, steps, sess.StepsTaken())
}

func TestSession_StepBudgetConverges(t *testing.T) {
	ctx := context.Background()
	reg := memconn.NewRegistry()
	// Self-loop: without a budget this map never terminates.
	require.NoError(t, reg.Add("loop", []domain.Node{
		{ID: "X", Successors: []domain.NodeID{"X"}},
	}, "X"))

	sess := dialSession(t, reg, "loop", session.WithStepBudget(5))
	_, err := sess.Register(ctx, domain.Registration{MapID: "loop"})
	require.NoError(t, err)

	for sess.Phase() == session.PhaseAwaitingStep {
		_, _, err = sess.Step(ctx, domain.StepCommand{StateID: "s0"})
		require.NoError(t, err)
	}
	assert.Equal(t, session.PhaseDone, sess.Phase())
	assert.Equal(t, 5, sess.StepsTaken())
}

func TestSession_EngineFaultDuringStep(t *testing.T) {
	ctx := context.Background()
	reg := lineMap(t)
	reg.FailAfter("line", 2)

	sess := dialSession(t, reg, "line")
	_, err := sess.Register(ctx, domain.Registration{MapID: "line"})
	require.NoError(t, err)

	_, _, err = sess.Step(ctx, domain.StepCommand{StateID: "s0"})
	require.NoError(t, err)

	_, _, err = sess.Step(ctx, domain.StepCommand{StateID: "s0"})
	assert.ErrorIs(t, err, domain.ErrEngineDisconnected)
	assert.Equal(t, session.PhaseFaulted, sess.Phase())
	assert.NotEmpty(t, sess.FaultReason())

	// Faulted is terminal and idempotent.
	_, _, err = sess.Step(ctx, domain.StepCommand{StateID: "s0"})
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
}

func TestSession_RegisterUnknownMap(t *testing.T) {
	ctx := context.Background()
	reg := memconn.NewRegistry()
	conn, err := reg.Dial(ctx, "ghost")
	require.NoError(t, err)
	sess := session.New(conn)

	_, err = sess.Register(ctx, domain.Registration{MapID: "ghost"})
	assert.ErrorIs(t, err, domain.ErrMapNotFound)
	assert.Equal(t, session.PhaseFaulted, sess.Phase())
}

func TestSession_StepTimeout(t *testing.T) {
	conn := &hangingConn{unblock: make(chan struct{})}
	defer close(conn.unblock)

	sess := session.New(conn, session.WithStepTimeout(20*time.Millisecond))
	_, err := sess.Register(context.Background(), domain.Registration{MapID: "slow"})
	require.NoError(t, err)

	_, _, err = sess.Step(context.Background(), domain.StepCommand{StateID: "s0"})
	assert.ErrorIs(t, err, domain.ErrEngineTimeout)
	assert.Equal(t, session.PhaseFaulted, sess.Phase())
}

func TestSession_ScorerSeesOrderedPair(t *testing.T) {
	ctx := context.Background()
	var prevCov, nextCov float64
	scorer := func(prev domain.GraphState, cmd domain.StepCommand, next domain.GraphState) domain.Reward {
		prevCov, nextCov = prev.Coverage(), next.Coverage()
		return domain.Reward{Value: 1}
	}

	sess := dialSession(t, lineMap(t), "line", session.WithScorer(scorer))
	_, err := sess.Register(ctx, domain.Registration{MapID: "line"})
	require.NoError(t, err)

	_, reward, err := sess.Step(ctx, domain.StepCommand{StateID: "s0"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, reward.Value)
	assert.Less(t, prevCov, nextCov)
}

// hangingConn simulates an engine that never answers a step.
type hangingConn struct {
	unblock chan struct{}
}

func (c *hangingConn) Register(ctx context.Context, reg domain.Registration) (domain.GraphState, error) {
	return domain.NewGraphState(
		[]domain.Node{{ID: "n"}},
		[]domain.LiveState{{ID: "s0", Node: "n"}}, 0, false)
}

func (c *hangingConn) Step(ctx context.Context, cmd domain.StepCommand) (domain.GraphState, error) {
	select {
	case <-ctx.Done():
		return domain.GraphState{}, ctx.Err()
	case <-c.unblock:
		return domain.GraphState{}, nil
	}
}

func (c *hangingConn) Close() error { return nil }
