// Package scoring provides pluggable reward functions over state-transition
// deltas. The session invokes whichever Scorer it was configured with; new
// metrics are added here without touching the session state machine.
package scoring

import (
	"github.com/symgym/symgym/pkg/domain"
	"github.com/symgym/symgym/pkg/ports"
)

// CoverageDelta rewards the coverage gained by the transition. This is the
// default metric for coverage-guided exploration.
func CoverageDelta() ports.Scorer {
	return func(prev domain.GraphState, cmd domain.StepCommand, next domain.GraphState) domain.Reward {
		gain := next.Coverage() - prev.Coverage()
		return domain.Reward{
			Value:              gain,
			CoverageGain:       gain,
			InstructionsGained: instructionsGained(prev, cmd, next),
			StatesConsumed:     prev.LiveCount() - next.LiveCount(),
		}
	}
}

// InstructionGain rewards the raw number of newly covered instructions on
// the stepped state, normalized by scale. Useful when per-node coverage is
// too coarse a signal.
func InstructionGain(scale float64) ports.Scorer {
	if scale <= 0 {
		scale = 1
	}
	return func(prev domain.GraphState, cmd domain.StepCommand, next domain.GraphState) domain.Reward {
		gained := instructionsGained(prev, cmd, next)
		return domain.Reward{
			Value:              float64(gained) / scale,
			CoverageGain:       next.Coverage() - prev.Coverage(),
			InstructionsGained: gained,
			StatesConsumed:     prev.LiveCount() - next.LiveCount(),
		}
	}
}

// Weighted combines coverage gain and state consumption into one scalar.
// Consuming states (finishing paths) earns stateWeight each; coverage gain
// is scaled by coverageWeight.
func Weighted(coverageWeight, stateWeight float64) ports.Scorer {
	return func(prev domain.GraphState, cmd domain.StepCommand, next domain.GraphState) domain.Reward {
		gain := next.Coverage() - prev.Coverage()
		consumed := prev.LiveCount() - next.LiveCount()
		value := coverageWeight * gain
		if consumed > 0 {
			value += stateWeight * float64(consumed)
		}
		return domain.Reward{
			Value:              value,
			CoverageGain:       gain,
			InstructionsGained: instructionsGained(prev, cmd, next),
			StatesConsumed:     consumed,
		}
	}
}

// instructionsGained compares the stepped state's instruction counter across
// the transition. A state that terminated (absent from next) contributes the
// delta up to its last observed value, which is unknowable here, so 0.
func instructionsGained(prev domain.GraphState, cmd domain.StepCommand, next domain.GraphState) int {
	before, ok := prev.LiveStateByID(cmd.StateID)
	if !ok {
		return 0
	}
	after, ok := next.LiveStateByID(cmd.StateID)
	if !ok {
		return 0
	}
	gained := after.Metrics.InstructionsCovered - before.Metrics.InstructionsCovered
	if gained < 0 {
		return 0
	}
	return gained
}
