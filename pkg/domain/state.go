package domain

import "fmt"

// GraphState is a read-only snapshot of the engine's interprocedural
// control-flow graph at one decision point. Instances are constructible only
// through NewGraphState, which enforces the snapshot invariants; decoded wire
// data goes through the same gate.
type GraphState struct {
	nodes   map[NodeID]Node
	order   []NodeID
	live    []LiveState
	liveIdx map[StateID]int

	coverage float64
	terminal bool
}

// NewGraphState validates and assembles a snapshot. It fails with
// ErrMalformedPayload on duplicate node or state identifiers, and with
// ErrUnknownNode when a live state references a node absent from nodes.
func NewGraphState(nodes []Node, live []LiveState, coverage float64, terminal bool) (GraphState, error) {
	byID := make(map[NodeID]Node, len(nodes))
	order := make([]NodeID, 0, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			return GraphState{}, fmt.Errorf("%w: node with empty id", ErrMalformedPayload)
		}
		if _, dup := byID[n.ID]; dup {
			return GraphState{}, fmt.Errorf("%w: duplicate node id %q", ErrMalformedPayload, n.ID)
		}
		byID[n.ID] = n
		order = append(order, n.ID)
	}

	liveIdx := make(map[StateID]int, len(live))
	for i, s := range live {
		if s.ID == "" {
			return GraphState{}, fmt.Errorf("%w: live state with empty id", ErrMalformedPayload)
		}
		if _, dup := liveIdx[s.ID]; dup {
			return GraphState{}, fmt.Errorf("%w: duplicate state id %q", ErrMalformedPayload, s.ID)
		}
		if _, ok := byID[s.Node]; !ok {
			return GraphState{}, fmt.Errorf("%w: state %q at node %q", ErrUnknownNode, s.ID, s.Node)
		}
		liveIdx[s.ID] = i
	}

	if coverage < 0 || coverage > 1 {
		return GraphState{}, fmt.Errorf("%w: coverage %v out of [0,1]", ErrMalformedPayload, coverage)
	}

	gs := GraphState{
		nodes:    byID,
		order:    order,
		live:     append([]LiveState(nil), live...),
		liveIdx:  liveIdx,
		coverage: coverage,
		terminal: terminal,
	}
	return gs, nil
}

// NodeByID resolves a node. Fails with ErrUnknownNode if absent.
func (g GraphState) NodeByID(id NodeID) (Node, error) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: %q", ErrUnknownNode, id)
	}
	return n, nil
}

// LiveStateByID resolves a live state by identifier.
func (g GraphState) LiveStateByID(id StateID) (LiveState, bool) {
	i, ok := g.liveIdx[id]
	if !ok {
		return LiveState{}, false
	}
	return g.live[i], true
}

// Nodes returns the graph vertices in their wire order.
func (g GraphState) Nodes() []Node {
	out := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// LiveStates returns the live execution states in their wire order.
func (g GraphState) LiveStates() []LiveState {
	return append([]LiveState(nil), g.live...)
}

// EligibleStateIDs returns the identifiers a StepCommand may legally select.
func (g GraphState) EligibleStateIDs() []StateID {
	out := make([]StateID, 0, len(g.live))
	for _, s := range g.live {
		out = append(out, s.ID)
	}
	return out
}

// HasLiveState reports whether id is live in this snapshot.
func (g GraphState) HasLiveState(id StateID) bool {
	_, ok := g.liveIdx[id]
	return ok
}

// Coverage is the fraction of graph elements exercised so far, in [0,1].
func (g GraphState) Coverage() float64 { return g.coverage }

// Terminal reports whether the engine will reject further stepping.
func (g GraphState) Terminal() bool { return g.terminal }

// NodeCount returns the number of graph vertices.
func (g GraphState) NodeCount() int { return len(g.order) }

// LiveCount returns the number of live execution states.
func (g GraphState) LiveCount() int { return len(g.live) }
