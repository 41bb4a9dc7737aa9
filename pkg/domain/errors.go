package domain

import "errors"

// ErrMalformedPayload is returned when wire data violates the protocol schema.
// It is fatal to the message, not to the session.
var ErrMalformedPayload = errors.New("malformed payload")

// ErrUnknownNode is returned when a node identifier does not resolve within a
// graph snapshot. During decoding it indicates engine/encoder disagreement.
var ErrUnknownNode = errors.New("unknown node")

// ErrInvalidStepCommand is returned when a step command references a state
// identifier that is not live in the most recently delivered snapshot.
var ErrInvalidStepCommand = errors.New("invalid step command")

// ErrSessionClosed is returned when a session is driven after it reached a
// terminal phase. This is always a bug in the caller.
var ErrSessionClosed = errors.New("session closed")

// ErrEngineTimeout is returned when the engine did not answer a step within
// the configured deadline.
var ErrEngineTimeout = errors.New("engine timeout")

// ErrEngineDisconnected is returned when the transport to the engine dropped
// or delivered an unusable response mid-session.
var ErrEngineDisconnected = errors.New("engine disconnected")

// ErrMapNotFound is returned when the engine rejects a registration because
// the requested map could not be loaded.
var ErrMapNotFound = errors.New("map not found")

// ErrEpisodeNotFound is returned when an episode ID cannot be found in a store.
var ErrEpisodeNotFound = errors.New("episode not found")
