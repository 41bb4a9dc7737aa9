package driver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/symgym/symgym/internal/logging"
	"github.com/symgym/symgym/pkg/domain"
	"github.com/symgym/symgym/pkg/observability"
	"github.com/symgym/symgym/pkg/ports"
	"github.com/symgym/symgym/pkg/session"
)

// DefaultConcurrency bounds in-flight sessions when no limit is configured.
const DefaultConcurrency = 4

// Driver runs batches of maps through environment sessions and collects the
// trajectories. Each session talks to an independently established engine
// connection; the driver schedules the blocking engine exchanges across a
// bounded worker pool.
type Driver struct {
	factory ports.ConnFactory
	policy  ports.StepPolicy
	scorer  ports.Scorer
	store   ports.EpisodeStore
	metrics *observability.Metrics
	logger  *slog.Logger

	concurrency int
	stepBudget  int
	stepTimeout time.Duration
	retries     int
}

// Option configures a Driver.
type Option func(*Driver)

// WithScorer sets the reward scoring function passed to each session.
func WithScorer(s ports.Scorer) Option {
	return func(d *Driver) { d.scorer = s }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) { d.logger = logger }
}

// WithConcurrency bounds the number of in-flight sessions. Values below 1
// fall back to DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(d *Driver) { d.concurrency = n }
}

// WithStepBudget caps steps per session.
func WithStepBudget(n int) Option {
	return func(d *Driver) { d.stepBudget = n }
}

// WithStepTimeout bounds each engine exchange.
func WithStepTimeout(t time.Duration) Option {
	return func(d *Driver) { d.stepTimeout = t }
}

// WithRetries retries a faulted map with a fresh session up to n times.
// Faulted sessions are never resumed: the retry replays the whole map.
func WithRetries(n int) Option {
	return func(d *Driver) { d.retries = n }
}

// WithStore persists each episode as it completes. Store failures are
// logged, not fatal: the episode is still yielded.
func WithStore(store ports.EpisodeStore) Option {
	return func(d *Driver) { d.store = store }
}

// WithMetrics wires prometheus instrumentation.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Driver) { d.metrics = m }
}

// New creates a driver. The factory opens one engine connection per map
// attempt; the policy picks the state to advance on every step.
func New(factory ports.ConnFactory, policy ports.StepPolicy, opts ...Option) *Driver {
	d := &Driver{
		factory:     factory,
		policy:      policy,
		logger:      logging.NewNop(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.concurrency < 1 {
		d.concurrency = DefaultConcurrency
	}
	return d
}

// Run drives every registration in the batch to termination and yields the
// resulting episodes on the returned channel, closing it when the batch is
// exhausted. Faulted sessions yield partial episodes with the fault marker
// set rather than being dropped. Canceling ctx stops the batch; all open
// engine connections are closed before the channel closes.
func (d *Driver) Run(ctx context.Context, batch []domain.Registration) <-chan domain.Episode {
	out := make(chan domain.Episode)
	jobs := make(chan domain.Registration)

	workers := d.concurrency
	if workers > len(batch) {
		workers = len(batch)
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for reg := range jobs {
				ep := d.runMap(ctx, reg)
				select {
				case out <- ep:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, reg := range batch {
			select {
			case jobs <- reg:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

// Collect is a convenience wrapper around Run that gathers the whole batch
// into a slice.
func (d *Driver) Collect(ctx context.Context, batch []domain.Registration) []domain.Episode {
	episodes := make([]domain.Episode, 0, len(batch))
	for ep := range d.Run(ctx, batch) {
		episodes = append(episodes, ep)
	}
	return episodes
}

// runMap plays one map, retrying faulted attempts with a fresh session when
// configured. The last attempt's episode is returned either way.
func (d *Driver) runMap(ctx context.Context, reg domain.Registration) domain.Episode {
	var ep domain.Episode
	for attempt := 0; ; attempt++ {
		ep = d.runEpisode(ctx, reg)
		if !ep.Faulted || attempt >= d.retries || ctx.Err() != nil {
			break
		}
		d.logger.Info("retrying faulted map with fresh session",
			"map_id", reg.MapID, "attempt", attempt+1, "reason", ep.FaultReason)
	}

	if d.metrics != nil {
		outcome := "done"
		if ep.Faulted {
			outcome = "faulted"
		}
		d.metrics.EpisodesTotal.WithLabelValues(reg.MapID, outcome).Inc()
		d.metrics.MapCoverage.WithLabelValues(reg.MapID).Set(ep.FinalCoverage())
	}
	if d.store != nil {
		if err := d.store.Save(ctx, ep); err != nil {
			d.logger.Warn("episode persistence failed",
				"session_id", ep.SessionID, "map_id", ep.MapID, "err", err)
		}
	}
	return ep
}

// runEpisode plays one session to PhaseDone or PhaseFaulted.
func (d *Driver) runEpisode(ctx context.Context, reg domain.Registration) domain.Episode {
	ep := domain.Episode{MapID: reg.MapID}

	conn, err := d.factory(ctx, reg.MapID)
	if err != nil {
		ep.Faulted = true
		ep.FaultReason = "connect: " + err.Error()
		return ep
	}

	sessOpts := []session.Option{
		session.WithLogger(d.logger),
		session.WithStepTimeout(d.stepTimeout),
		session.WithStepBudget(d.stepBudget),
	}
	if d.scorer != nil {
		sessOpts = append(sessOpts, session.WithScorer(d.scorer))
	}
	sess := session.New(conn, sessOpts...)
	defer func() {
		if err := sess.Close(); err != nil {
			d.logger.Warn("session close failed", "session_id", sess.ID(), "err", err)
		}
	}()
	ep.SessionID = sess.ID()

	current, err := sess.Register(ctx, reg)
	if err != nil {
		ep.Faulted = true
		ep.FaultReason = "register: " + err.Error()
		return ep
	}

	for sess.Phase() == session.PhaseAwaitingStep {
		if err := ctx.Err(); err != nil {
			ep.Faulted = true
			ep.FaultReason = "canceled: " + err.Error()
			return ep
		}

		stateID, err := d.policy.Select(ctx, current)
		if err != nil {
			ep.Faulted = true
			ep.FaultReason = "policy: " + err.Error()
			return ep
		}
		cmd := domain.StepCommand{StateID: stateID}

		start := time.Now()
		next, reward, err := sess.Step(ctx, cmd)
		if d.metrics != nil {
			d.metrics.StepLatency.Observe(time.Since(start).Seconds())
			d.metrics.StepsTotal.WithLabelValues(reg.MapID).Inc()
		}
		if err != nil {
			// Invalid commands and transport faults both end the attempt;
			// the session phase already reflects which one happened.
			ep.Faulted = true
			ep.FaultReason = err.Error()
			return ep
		}

		ep.Records = append(ep.Records, domain.StepRecord{
			Prev:    current,
			Command: cmd,
			Reward:  reward,
			Next:    next,
		})
		current = next
	}

	if sess.Phase() == session.PhaseFaulted {
		ep.Faulted = true
		ep.FaultReason = sess.FaultReason()
	}
	return ep
}
