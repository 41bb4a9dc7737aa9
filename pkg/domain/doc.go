// Package domain contains the core value types of the environment:
// control-flow graph snapshots, live execution states, step commands,
// rewards and episodes. All types are immutable once constructed;
// transformations produce new values.
package domain
