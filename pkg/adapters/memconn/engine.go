// Package memconn provides an in-memory engine connection backed by a static
// map graph. It mimics a symbolic-execution engine's stepping behavior:
// states advance along successors and fork at branch points. It is the
// engine used by tests and local validation runs.
package memconn

import (
	"context"
	"fmt"
	"sync"

	"github.com/symgym/symgym/pkg/domain"
	"github.com/symgym/symgym/pkg/ports"
)

// Registry holds the maps a scripted engine can serve. One Registry can back
// many concurrent connections; each Dial produces an independent game.
type Registry struct {
	mu   sync.RWMutex
	maps map[string]mapScript
}

type mapScript struct {
	nodes []domain.Node
	entry domain.NodeID

	// failAfter > 0 injects a transport failure on the Nth step. Used by
	// fault-path tests.
	failAfter int
}

// NewRegistry creates an empty map registry.
func NewRegistry() *Registry {
	return &Registry{maps: make(map[string]mapScript)}
}

// Add registers a map under id with the given graph and entry node.
func (r *Registry) Add(id string, nodes []domain.Node, entry domain.NodeID) error {
	byID := make(map[domain.NodeID]bool, len(nodes))
	for _, n := range nodes {
		if byID[n.ID] {
			return fmt.Errorf("duplicate node %q in map %q", n.ID, id)
		}
		byID[n.ID] = true
	}
	if !byID[entry] {
		return fmt.Errorf("entry node %q not in map %q", entry, id)
	}
	r.mu.Lock()
	r.maps[id] = mapScript{nodes: append([]domain.Node(nil), nodes...), entry: entry}
	r.mu.Unlock()
	return nil
}

// FailAfter makes connections to map id fail their Nth step with a
// disconnect, simulating an engine crash mid-game.
func (r *Registry) FailAfter(id string, steps int) {
	r.mu.Lock()
	if script, ok := r.maps[id]; ok {
		script.failAfter = steps
		r.maps[id] = script
	}
	r.mu.Unlock()
}

// Dial opens a scripted connection. It satisfies ports.ConnFactory.
func (r *Registry) Dial(ctx context.Context, mapID string) (ports.EngineConn, error) {
	return &Conn{registry: r, mapID: mapID}, nil
}

// Conn is one scripted game. It implements ports.EngineConn.
type Conn struct {
	registry *Registry
	mapID    string

	script  mapScript
	nodes   map[domain.NodeID]domain.Node
	order   []domain.NodeID
	visited map[domain.NodeID]bool
	live    []domain.LiveState

	forkSeq int
	steps   int
	opened  bool
	closed  bool
}

// Register loads the map and places a single execution state at its entry.
func (c *Conn) Register(ctx context.Context, reg domain.Registration) (domain.GraphState, error) {
	if c.closed {
		return domain.GraphState{}, fmt.Errorf("scripted engine: %w", domain.ErrEngineDisconnected)
	}
	if reg.MapID != c.mapID {
		return domain.GraphState{}, fmt.Errorf("connection dialed for map %q, registered for %q: %w",
			c.mapID, reg.MapID, domain.ErrMapNotFound)
	}

	c.registry.mu.RLock()
	script, ok := c.registry.maps[c.mapID]
	c.registry.mu.RUnlock()
	if !ok {
		return domain.GraphState{}, fmt.Errorf("map %q: %w", c.mapID, domain.ErrMapNotFound)
	}

	c.script = script
	c.nodes = make(map[domain.NodeID]domain.Node, len(script.nodes))
	c.order = make([]domain.NodeID, 0, len(script.nodes))
	for _, n := range script.nodes {
		c.nodes[n.ID] = n
		c.order = append(c.order, n.ID)
	}
	c.visited = map[domain.NodeID]bool{script.entry: true}
	c.live = []domain.LiveState{{
		ID:      "s0",
		Node:    script.entry,
		Metrics: domain.PathMetrics{InstructionsCovered: 1},
	}}
	c.opened = true
	return c.snapshot()
}

// Step advances the selected state along its node's successors: sinks
// terminate the state, single successors move it, branches fork it into one
// state per successor.
func (c *Conn) Step(ctx context.Context, cmd domain.StepCommand) (domain.GraphState, error) {
	if c.closed || !c.opened {
		return domain.GraphState{}, fmt.Errorf("scripted engine: %w", domain.ErrEngineDisconnected)
	}
	if err := ctx.Err(); err != nil {
		return domain.GraphState{}, err
	}
	if c.script.failAfter > 0 && c.steps+1 >= c.script.failAfter {
		c.closed = true
		return domain.GraphState{}, fmt.Errorf("scripted engine crash on step %d: %w",
			c.steps+1, domain.ErrEngineDisconnected)
	}

	idx := -1
	for i, s := range c.live {
		if s.ID == cmd.StateID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.GraphState{}, fmt.Errorf("state %q: %w", cmd.StateID, domain.ErrInvalidStepCommand)
	}

	stepped := c.live[idx]
	succs := c.nodes[stepped.Node].Successors

	switch len(succs) {
	case 0:
		// Sink: the path finishes.
		c.live = append(c.live[:idx], c.live[idx+1:]...)
	case 1:
		c.live[idx] = c.advance(stepped, succs[0])
	default:
		// Branch: fork one state per successor. The first fork keeps the
		// parent identifier.
		forks := make([]domain.LiveState, 0, len(succs))
		for i, succ := range succs {
			fork := c.advance(stepped, succ)
			if i > 0 {
				c.forkSeq++
				fork.ID = domain.StateID(fmt.Sprintf("%s.f%d", stepped.ID, c.forkSeq))
			}
			forks = append(forks, fork)
		}
		c.live = append(c.live[:idx], append(forks, c.live[idx+1:]...)...)
	}

	c.steps++
	return c.snapshot()
}

// Close tears down the scripted game.
func (c *Conn) Close() error {
	c.closed = true
	return nil
}

func (c *Conn) advance(s domain.LiveState, to domain.NodeID) domain.LiveState {
	if !c.visited[to] {
		c.visited[to] = true
		s.Metrics.InstructionsCovered++
	}
	s.Node = to
	s.Metrics.StepsTaken++
	return s
}

func (c *Conn) snapshot() (domain.GraphState, error) {
	coverage := float64(len(c.visited)) / float64(len(c.order))
	nodes := make([]domain.Node, 0, len(c.order))
	for _, id := range c.order {
		nodes = append(nodes, c.nodes[id])
	}
	return domain.NewGraphState(nodes, append([]domain.LiveState(nil), c.live...),
		coverage, len(c.live) == 0)
}
