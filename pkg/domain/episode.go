package domain

// StepRecord is one transition of an episode: the snapshot the agent saw,
// the command it issued, the reward scored for the transition, and the
// snapshot the engine answered with.
type StepRecord struct {
	Prev    GraphState
	Command StepCommand
	Reward  Reward
	Next    GraphState
}

// Episode is the full trajectory of one game: every step taken on one map
// from registration to termination. Episodes are owned by the driver that
// produced them and immutable once yielded.
type Episode struct {
	SessionID string
	MapID     string
	Records   []StepRecord

	// Faulted marks a partial trajectory: the session ended on a transport
	// or engine fault rather than a clean termination. Partial episodes are
	// still yielded; they carry diagnostic signal.
	Faulted     bool
	FaultReason string
}

// TotalReward sums the scalar reward over all recorded transitions.
func (e Episode) TotalReward() float64 {
	var sum float64
	for _, r := range e.Records {
		sum += r.Reward.Value
	}
	return sum
}

// FinalCoverage returns the coverage of the last delivered snapshot, or 0
// for an empty trajectory.
func (e Episode) FinalCoverage() float64 {
	if len(e.Records) == 0 {
		return 0
	}
	return e.Records[len(e.Records)-1].Next.Coverage()
}

// Steps returns the number of recorded transitions.
func (e Episode) Steps() int { return len(e.Records) }
