package domain

// Reward scores one transition between consecutive snapshots. Value is the
// scalar the training loop consumes; the remaining fields expose the delta
// the scoring function derived it from, so different scorers stay comparable
// in persisted datasets.
type Reward struct {
	Value float64 `json:"value"`

	// CoverageGain is next.Coverage() - prev.Coverage() for the transition.
	CoverageGain float64 `json:"coverage_gain"`

	// InstructionsGained is the increase in instructions covered by the
	// stepped state.
	InstructionsGained int `json:"instructions_gained"`

	// StatesConsumed is the number of live states that terminated during the
	// transition (negative when the step forked new states).
	StatesConsumed int `json:"states_consumed"`
}
