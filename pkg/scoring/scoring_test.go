package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symgym/symgym/pkg/domain"
)

func transition(t *testing.T) (domain.GraphState, domain.StepCommand, domain.GraphState) {
	t.Helper()
	nodes := []domain.Node{{ID: "a"}, {ID: "b"}}

	prev, err := domain.NewGraphState(nodes, []domain.LiveState{
		{ID: "s0", Node: "a", Metrics: domain.PathMetrics{InstructionsCovered: 10}},
		{ID: "s1", Node: "a"},
	}, 0.4, false)
	require.NoError(t, err)

	next, err := domain.NewGraphState(nodes, []domain.LiveState{
		{ID: "s0", Node: "b", Metrics: domain.PathMetrics{StepsTaken: 1, InstructionsCovered: 17}},
	}, 0.7, false)
	require.NoError(t, err)

	return prev, domain.StepCommand{StateID: "s0"}, next
}

func TestCoverageDelta(t *testing.T) {
	prev, cmd, next := transition(t)
	r := CoverageDelta()(prev, cmd, next)

	assert.InDelta(t, 0.3, r.Value, 1e-9)
	assert.InDelta(t, 0.3, r.CoverageGain, 1e-9)
	assert.Equal(t, 7, r.InstructionsGained)
	assert.Equal(t, 1, r.StatesConsumed)
}

func TestInstructionGain(t *testing.T) {
	prev, cmd, next := transition(t)

	r := InstructionGain(100)(prev, cmd, next)
	assert.InDelta(t, 0.07, r.Value, 1e-9)
	assert.Equal(t, 7, r.InstructionsGained)

	// Non-positive scale falls back to raw counts.
	r = InstructionGain(0)(prev, cmd, next)
	assert.InDelta(t, 7, r.Value, 1e-9)
}

func TestInstructionGain_SteppedStateTerminated(t *testing.T) {
	prev, cmd, _ := transition(t)
	next, err := domain.NewGraphState([]domain.Node{{ID: "a"}, {ID: "b"}}, nil, 1, true)
	require.NoError(t, err)

	r := InstructionGain(1)(prev, cmd, next)
	assert.Zero(t, r.InstructionsGained)
}

func TestWeighted(t *testing.T) {
	prev, cmd, next := transition(t)
	r := Weighted(10, 0.5)(prev, cmd, next)

	// 10*0.3 coverage + 0.5*1 consumed state.
	assert.InDelta(t, 3.5, r.Value, 1e-9)
	assert.Equal(t, 1, r.StatesConsumed)
}
