package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/symgym/symgym/internal/logging"
	"github.com/symgym/symgym/pkg/domain"
	"github.com/symgym/symgym/pkg/ports"
)

// Phase is the lifecycle position of a session.
type Phase string

const (
	// PhaseUninitialized is the phase before a successful registration.
	PhaseUninitialized Phase = "uninitialized"
	// PhaseAwaitingStep means the session holds a snapshot and waits for the
	// agent's command.
	PhaseAwaitingStep Phase = "awaiting_step"
	// PhaseStepping means a command is in flight to the engine.
	PhaseStepping Phase = "stepping"
	// PhaseDone is clean termination: the engine reported terminal, or the
	// step budget ran out.
	PhaseDone Phase = "done"
	// PhaseFaulted is termination on a transport or engine fault. Distinct
	// from PhaseDone: the trajectory is partial.
	PhaseFaulted Phase = "faulted"
)

// Session drives one game against one engine connection. It is a single
// logical stream: the protocol is strictly alternating, so a Session must
// not be driven concurrently by more than one caller.
type Session struct {
	conn   ports.EngineConn
	scorer ports.Scorer
	logger *slog.Logger

	id          string
	stepTimeout time.Duration
	stepBudget  int

	phase       Phase
	current     domain.GraphState
	stepsTaken  int
	faultReason string
}

// Option configures a Session.
type Option func(*Session)

// WithScorer sets the reward scoring function. Defaults to a scorer that
// returns the coverage delta as the scalar value.
func WithScorer(s ports.Scorer) Option {
	return func(sess *Session) { sess.scorer = s }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(sess *Session) { sess.logger = logger }
}

// WithStepTimeout bounds each engine exchange. Zero disables the deadline;
// the caller's context still applies.
func WithStepTimeout(d time.Duration) Option {
	return func(sess *Session) { sess.stepTimeout = d }
}

// WithStepBudget caps the number of steps before the session terminates in
// PhaseDone. Zero means unbounded (the engine's own terminal flag decides).
func WithStepBudget(n int) Option {
	return func(sess *Session) { sess.stepBudget = n }
}

// WithID overrides the generated session ID. Used for deterministic replay
// and tests.
func WithID(id string) Option {
	return func(sess *Session) { sess.id = id }
}

// New creates a session over an open engine connection. The session does not
// own the handshake timing: call Register before Step.
func New(conn ports.EngineConn, opts ...Option) *Session {
	s := &Session{
		conn:   conn,
		scorer: defaultScorer,
		logger: logging.NewNop(),
		id:     uuid.NewString(),
		phase:  PhaseUninitialized,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase { return s.phase }

// Current returns the most recently delivered snapshot. Only meaningful
// after a successful Register.
func (s *Session) Current() domain.GraphState { return s.current }

// StepsTaken returns the number of successful transitions so far.
func (s *Session) StepsTaken() int { return s.stepsTaken }

// FaultReason describes why the session faulted. Empty unless the phase is
// PhaseFaulted.
func (s *Session) FaultReason() string { return s.faultReason }

// Register performs the handshake: it selects the map and receives the
// initial snapshot. Valid only in PhaseUninitialized.
func (s *Session) Register(ctx context.Context, reg domain.Registration) (domain.GraphState, error) {
	if s.phase != PhaseUninitialized {
		return domain.GraphState{}, fmt.Errorf("register in phase %s: %w", s.phase, domain.ErrSessionClosed)
	}

	ctx, cancel := s.stepContext(ctx)
	defer cancel()

	initial, err := s.conn.Register(ctx, reg)
	if err != nil {
		s.fault(err)
		return domain.GraphState{}, fmt.Errorf("registration for map %q: %w", reg.MapID, s.classify(err))
	}

	s.current = initial
	if initial.Terminal() {
		s.phase = PhaseDone
	} else {
		s.phase = PhaseAwaitingStep
	}
	s.logger.Debug("session registered",
		"session_id", s.id, "map_id", reg.MapID,
		"nodes", initial.NodeCount(), "live_states", initial.LiveCount())
	return initial, nil
}

// Step sends one command to the engine and blocks for the next snapshot.
// It fails with domain.ErrInvalidStepCommand when the command does not
// reference a live state of the current snapshot (the session stays in
// PhaseAwaitingStep), and with domain.ErrSessionClosed once the session is
// terminal. Transport failures transition the session to PhaseFaulted and
// are never retried here: the engine-side effect already happened, so a
// stepped engine is not safe to replay.
func (s *Session) Step(ctx context.Context, cmd domain.StepCommand) (domain.GraphState, domain.Reward, error) {
	switch s.phase {
	case PhaseAwaitingStep:
	case PhaseDone, PhaseFaulted:
		return domain.GraphState{}, domain.Reward{}, fmt.Errorf("step in phase %s: %w", s.phase, domain.ErrSessionClosed)
	default:
		return domain.GraphState{}, domain.Reward{}, fmt.Errorf("step in phase %s: %w", s.phase, domain.ErrSessionClosed)
	}

	if !s.current.HasLiveState(cmd.StateID) {
		return domain.GraphState{}, domain.Reward{}, fmt.Errorf("state %q not live: %w", cmd.StateID, domain.ErrInvalidStepCommand)
	}

	s.phase = PhaseStepping
	ctx, cancel := s.stepContext(ctx)
	defer cancel()

	next, err := s.conn.Step(ctx, cmd)
	if err != nil {
		s.fault(err)
		return domain.GraphState{}, domain.Reward{}, fmt.Errorf("step %d: %w", s.stepsTaken+1, s.classify(err))
	}

	prev := s.current
	s.current = next
	s.stepsTaken++

	reward := s.scorer(prev, cmd, next)

	switch {
	case next.Terminal():
		s.phase = PhaseDone
	case s.stepBudget > 0 && s.stepsTaken >= s.stepBudget:
		s.phase = PhaseDone
		s.logger.Debug("step budget exhausted", "session_id", s.id, "steps", s.stepsTaken)
	default:
		s.phase = PhaseAwaitingStep
	}

	s.logger.Debug("session stepped",
		"session_id", s.id, "state_id", cmd.StateID,
		"coverage", next.Coverage(), "live_states", next.LiveCount(),
		"reward", reward.Value, "phase", string(s.phase))
	return next, reward, nil
}

// Close releases the engine connection. The session phase is left as-is if
// already terminal, otherwise it becomes PhaseFaulted so late callers get
// ErrSessionClosed rather than a hung exchange.
func (s *Session) Close() error {
	if s.phase != PhaseDone && s.phase != PhaseFaulted {
		s.phase = PhaseFaulted
		if s.faultReason == "" {
			s.faultReason = "closed before termination"
		}
	}
	return s.conn.Close()
}

func (s *Session) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.stepTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.stepTimeout)
}

func (s *Session) fault(err error) {
	s.phase = PhaseFaulted
	s.faultReason = err.Error()
	s.logger.Warn("session faulted", "session_id", s.id, "err", err)
}

// classify maps transport-level failures onto the domain taxonomy. Errors
// already in the taxonomy pass through unchanged.
func (s *Session) classify(err error) error {
	switch {
	case errors.Is(err, domain.ErrMapNotFound),
		errors.Is(err, domain.ErrMalformedPayload),
		errors.Is(err, domain.ErrUnknownNode),
		errors.Is(err, domain.ErrEngineTimeout),
		errors.Is(err, domain.ErrEngineDisconnected):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", domain.ErrEngineTimeout, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrEngineDisconnected, err)
	}
}

// defaultScorer rewards coverage gained by the transition.
func defaultScorer(prev domain.GraphState, cmd domain.StepCommand, next domain.GraphState) domain.Reward {
	gain := next.Coverage() - prev.Coverage()
	return domain.Reward{
		Value:          gain,
		CoverageGain:   gain,
		StatesConsumed: prev.LiveCount() - next.LiveCount(),
	}
}
