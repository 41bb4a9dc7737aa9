package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/symgym/symgym/pkg/domain"
)

// DecodeServerMessage parses an inbound frame into its envelope. The payload
// stays raw; callers dispatch on Type and decode with the matching function.
func DecodeServerMessage(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	switch env.Type {
	case MessageState, MessageError:
		return env, nil
	case "":
		return Envelope{}, fmt.Errorf("%w: missing message type", domain.ErrMalformedPayload)
	default:
		return Envelope{}, fmt.Errorf("%w: unexpected message type %q", domain.ErrMalformedPayload, env.Type)
	}
}

// DecodeGraphState parses a state payload into a validated snapshot.
// It fails with domain.ErrMalformedPayload on schema violations and with
// domain.ErrUnknownNode when a live state references an absent node; the
// latter is rejected rather than dropped because it means the engine and the
// encoder disagree about the graph.
func DecodeGraphState(data []byte) (domain.GraphState, error) {
	var raw statePayload
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.GraphState{}, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if raw.Nodes == nil {
		return domain.GraphState{}, fmt.Errorf("%w: missing field %q", domain.ErrMalformedPayload, "nodes")
	}
	if raw.States == nil {
		return domain.GraphState{}, fmt.Errorf("%w: missing field %q", domain.ErrMalformedPayload, "states")
	}

	nodes := make([]domain.Node, 0, len(*raw.Nodes))
	for i, n := range *raw.Nodes {
		if n.ID == nil || *n.ID == "" {
			return domain.GraphState{}, fmt.Errorf("%w: node %d missing id", domain.ErrMalformedPayload, i)
		}
		nodes = append(nodes, domain.Node{
			ID: domain.NodeID(*n.ID),
			Location: domain.Location{
				Method: n.Location.Method,
				File:   n.Location.File,
				Line:   n.Location.Line,
			},
			Successors:   toNodeIDs(n.Successors),
			Predecessors: toNodeIDs(n.Predecessors),
		})
	}

	live := make([]domain.LiveState, 0, len(*raw.States))
	for i, s := range *raw.States {
		if s.ID == nil || *s.ID == "" {
			return domain.GraphState{}, fmt.Errorf("%w: state %d missing id", domain.ErrMalformedPayload, i)
		}
		if s.Node == nil || *s.Node == "" {
			return domain.GraphState{}, fmt.Errorf("%w: state %q missing node", domain.ErrMalformedPayload, *s.ID)
		}
		live = append(live, domain.LiveState{
			ID:            domain.StateID(*s.ID),
			Node:          domain.NodeID(*s.Node),
			PathCondition: s.PathCondition,
			Metrics: domain.PathMetrics{
				StepsTaken:          s.Metrics.StepsTaken,
				InstructionsCovered: s.Metrics.InstructionsCovered,
			},
		})
	}

	return domain.NewGraphState(nodes, live, raw.Coverage, raw.Terminal)
}

// EncodeGraphState serializes a snapshot back to its wire payload. Used by
// dataset persistence and by round-trip tests; engines normally only send
// state payloads.
func EncodeGraphState(gs domain.GraphState) ([]byte, error) {
	nodes := gs.Nodes()
	rawNodes := make([]nodePayload, 0, len(nodes))
	for _, n := range nodes {
		id := string(n.ID)
		rawNodes = append(rawNodes, nodePayload{
			ID: &id,
			Location: locationPayload{
				Method: n.Location.Method,
				File:   n.Location.File,
				Line:   n.Location.Line,
			},
			Successors:   fromNodeIDs(n.Successors),
			Predecessors: fromNodeIDs(n.Predecessors),
		})
	}

	states := gs.LiveStates()
	rawStates := make([]liveStatePayload, 0, len(states))
	for _, s := range states {
		id := string(s.ID)
		node := string(s.Node)
		rawStates = append(rawStates, liveStatePayload{
			ID:            &id,
			Node:          &node,
			PathCondition: s.PathCondition,
			Metrics: metricsPayload{
				StepsTaken:          s.Metrics.StepsTaken,
				InstructionsCovered: s.Metrics.InstructionsCovered,
			},
		})
	}

	return json.Marshal(statePayload{
		Nodes:    &rawNodes,
		States:   &rawStates,
		Coverage: gs.Coverage(),
		Terminal: gs.Terminal(),
	})
}

// EncodeStepCommand frames a step decision for the engine.
func EncodeStepCommand(cmd domain.StepCommand) ([]byte, error) {
	payload, err := json.Marshal(struct {
		StateID string `json:"stateId"`
	}{StateID: string(cmd.StateID)})
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: MessageStep, Payload: payload})
}

// EncodeRegistration frames a map registration for the engine.
func EncodeRegistration(reg domain.Registration) ([]byte, error) {
	payload, err := json.Marshal(struct {
		MapID      string `json:"mapId"`
		StepBudget int    `json:"stepBudget,omitempty"`
	}{MapID: reg.MapID, StepBudget: reg.StepBudget})
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: MessageStart, Payload: payload})
}

// DecodeError parses the payload of a MessageError envelope.
func DecodeError(payload []byte) (ErrorPayload, error) {
	var ep ErrorPayload
	if err := json.Unmarshal(payload, &ep); err != nil {
		return ErrorPayload{}, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if ep.Message == "" {
		return ErrorPayload{}, fmt.Errorf("%w: error payload missing message", domain.ErrMalformedPayload)
	}
	return ep, nil
}

func toNodeIDs(raw []string) []domain.NodeID {
	if len(raw) == 0 {
		return nil
	}
	out := make([]domain.NodeID, len(raw))
	for i, s := range raw {
		out[i] = domain.NodeID(s)
	}
	return out
}

func fromNodeIDs(ids []domain.NodeID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
