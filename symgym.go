package symgym

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/symgym/symgym/internal/logging"
	"github.com/symgym/symgym/pkg/domain"
	"github.com/symgym/symgym/pkg/driver"
	"github.com/symgym/symgym/pkg/observability"
	"github.com/symgym/symgym/pkg/ports"
)

// Gym is the high-level entry point for the library. It wires an engine
// connection factory and a step policy into the episode driver and provides
// a simplified API for consumers.
type Gym struct {
	factory ports.ConnFactory
	policy  ports.StepPolicy
	logger  *slog.Logger
	opts    []driver.Option
}

// Option defines a functional option for configuring the Gym.
type Option func(*Gym)

// WithLogger sets the structured logger used across sessions and the driver.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gym) {
		g.logger = logger
	}
}

// WithScorer sets the reward scoring function.
func WithScorer(s ports.Scorer) Option {
	return func(g *Gym) {
		g.opts = append(g.opts, driver.WithScorer(s))
	}
}

// WithStepBudget caps the steps of every session.
func WithStepBudget(n int) Option {
	return func(g *Gym) {
		g.opts = append(g.opts, driver.WithStepBudget(n))
	}
}

// WithStepTimeout bounds each engine exchange.
func WithStepTimeout(d time.Duration) Option {
	return func(g *Gym) {
		g.opts = append(g.opts, driver.WithStepTimeout(d))
	}
}

// WithConcurrency bounds in-flight sessions during batch runs.
func WithConcurrency(n int) Option {
	return func(g *Gym) {
		g.opts = append(g.opts, driver.WithConcurrency(n))
	}
}

// WithRetries retries faulted maps with a fresh session.
func WithRetries(n int) Option {
	return func(g *Gym) {
		g.opts = append(g.opts, driver.WithRetries(n))
	}
}

// WithStore persists episodes as they complete.
func WithStore(store ports.EpisodeStore) Option {
	return func(g *Gym) {
		g.opts = append(g.opts, driver.WithStore(store))
	}
}

// WithMetrics wires prometheus instrumentation.
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Gym) {
		g.opts = append(g.opts, driver.WithMetrics(m))
	}
}

// New creates a Gym over an engine connection factory and a step policy.
func New(factory ports.ConnFactory, policy ports.StepPolicy, opts ...Option) (*Gym, error) {
	if factory == nil {
		return nil, fmt.Errorf("symgym: connection factory is required")
	}
	if policy == nil {
		return nil, fmt.Errorf("symgym: step policy is required")
	}
	g := &Gym{
		factory: factory,
		policy:  policy,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Play drives a single map to termination and returns its episode. A faulted
// episode is returned, not dropped; inspect Episode.Faulted.
func (g *Gym) Play(ctx context.Context, reg domain.Registration) (domain.Episode, error) {
	episodes := g.driver().Collect(ctx, []domain.Registration{reg})
	if len(episodes) == 0 {
		return domain.Episode{}, fmt.Errorf("play %s: %w", reg.MapID, ctx.Err())
	}
	return episodes[0], nil
}

// Run drives a batch of maps with bounded concurrency and yields episodes as
// they finish. The channel closes when the batch is exhausted or ctx is
// canceled; every open engine connection is closed before that.
func (g *Gym) Run(ctx context.Context, batch []domain.Registration) <-chan domain.Episode {
	return g.driver().Run(ctx, batch)
}

func (g *Gym) driver() *driver.Driver {
	opts := append([]driver.Option{driver.WithLogger(g.logger)}, g.opts...)
	return driver.New(g.factory, g.policy, opts...)
}
