package domain

// NodeID identifies a control-flow-graph vertex. Identifiers are stable for
// the lifetime of a map: the engine reuses them across snapshots.
type NodeID string

// StateID identifies a live execution state within a snapshot.
type StateID string

// Location is the source position a node maps back to.
type Location struct {
	Method string `json:"method,omitempty"`
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
}

// Node is a vertex of the interprocedural control-flow graph.
type Node struct {
	ID       NodeID   `json:"id"`
	Location Location `json:"location,omitempty"`

	// Successors and Predecessors are the static graph edges. They are part
	// of the map, not of any particular execution.
	Successors   []NodeID `json:"successors,omitempty"`
	Predecessors []NodeID `json:"predecessors,omitempty"`
}

// PathMetrics accumulates per-state progress counters.
type PathMetrics struct {
	StepsTaken          int `json:"steps_taken"`
	InstructionsCovered int `json:"instructions_covered"`
}

// LiveState describes one active symbolic-execution path awaiting a decision.
type LiveState struct {
	ID   StateID `json:"id"`
	Node NodeID  `json:"node"`

	// PathCondition is an opaque token produced by the engine. The core
	// carries it but never interprets it.
	PathCondition string `json:"path_condition,omitempty"`

	Metrics PathMetrics `json:"metrics"`
}
