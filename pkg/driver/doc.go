// Package driver orchestrates many environment sessions into training
// episodes: one session per map, bounded concurrency across maps, never
// within one map's session. Completed episodes are yielded as a lazy finite
// stream; partial, faulted episodes are included.
package driver
