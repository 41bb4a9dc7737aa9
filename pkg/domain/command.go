package domain

// StepCommand is the agent's decision: advance exactly one live state.
// It is valid only against the snapshot it was issued for; stale identifiers
// are rejected with ErrInvalidStepCommand.
type StepCommand struct {
	StateID StateID `json:"state_id"`
}

// Registration selects a target map and the run configuration for one game.
type Registration struct {
	MapID string `json:"map_id"`

	// StepBudget caps the number of steps the engine will accept for this
	// game. Zero means the engine default.
	StepBudget int `json:"step_budget,omitempty"`
}
