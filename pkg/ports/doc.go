// Package ports defines the boundary interfaces of the environment: the
// engine connection capability, the step policy the agent implements, the
// reward scoring function, and episode persistence. Adapters implement
// these interfaces; the session and driver depend only on them.
package ports
