// Package session implements the per-game state machine between the agent
// and one engine connection: registration handshake, strictly alternating
// step exchanges, reward scoring, and terminal/fault detection.
package session
