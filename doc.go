// Package symgym turns a symbolic-execution engine into a steppable,
// rewarded reinforcement-learning environment. The engine exposes its
// interprocedural control-flow state as a graph; an agent repeatedly picks
// which execution state to advance; the engine applies the choice and the
// environment returns the updated graph plus a reward.
//
// The root package is a thin facade. The building blocks live under pkg/:
// domain (graph snapshots, episodes), protocol (the JSON wire codec),
// session (the per-game state machine), driver (batch orchestration),
// policy and scoring (reference agents and reward functions), and adapters
// for websocket engines, scripted in-memory engines, and episode datasets
// on disk or Redis.
package symgym
