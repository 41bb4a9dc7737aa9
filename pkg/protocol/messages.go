package protocol

import "encoding/json"

// MessageType tags an envelope with the kind of payload it carries.
type MessageType string

const (
	// MessageStart registers the agent for a map (agent -> engine).
	MessageStart MessageType = "start"
	// MessageStep asks the engine to advance one live state (agent -> engine).
	MessageStep MessageType = "step"
	// MessageState delivers a graph snapshot (engine -> agent).
	MessageState MessageType = "state"
	// MessageError reports an engine-side rejection or fault (engine -> agent).
	MessageError MessageType = "error"
)

// Envelope is the outer frame of every protocol message.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorPayload is the body of a MessageError envelope.
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Engine-side error codes carried in ErrorPayload.Code.
const (
	ErrorCodeMapNotFound  = "map_not_found"
	ErrorCodeUnknownState = "unknown_state"
	ErrorCodeInternal     = "internal"
)

// Wire shapes for the state payload. Pointer fields distinguish a missing
// required key from a present zero value.
type statePayload struct {
	Nodes    *[]nodePayload      `json:"nodes"`
	States   *[]liveStatePayload `json:"states"`
	Coverage float64             `json:"coverage"`
	Terminal bool                `json:"terminal"`
}

type nodePayload struct {
	ID           *string         `json:"id"`
	Location     locationPayload `json:"location"`
	Successors   []string        `json:"successors"`
	Predecessors []string        `json:"predecessors"`
}

type locationPayload struct {
	Method string `json:"method"`
	File   string `json:"file"`
	Line   int    `json:"line"`
}

type liveStatePayload struct {
	ID            *string        `json:"id"`
	Node          *string        `json:"node"`
	PathCondition string         `json:"path_condition"`
	Metrics       metricsPayload `json:"metrics"`
}

type metricsPayload struct {
	StepsTaken          int `json:"steps_taken"`
	InstructionsCovered int `json:"instructions_covered"`
}
