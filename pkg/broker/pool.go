// Package broker manages a pool of engine server instances and exposes it
// over HTTP: clients lease a running engine endpoint, play their game over
// the leased websocket, and return the instance when done. This is the
// connection-establishment collaborator the session itself stays ignorant
// of.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os/exec"
	"sync"

	"github.com/google/uuid"

	"github.com/symgym/symgym/internal/logging"
)

// ErrPoolExhausted is returned when no engine instance is free to lease.
var ErrPoolExhausted = errors.New("no free engine instance")

// Instance is one leased engine endpoint.
type Instance struct {
	ID    string `json:"id"`
	Port  int    `json:"port"`
	WSURL string `json:"ws_url"`
	PID   int    `json:"pid"`
}

// Process is a handle to a spawned engine. Kept minimal so tests can fake it
// without real subprocesses.
type Process interface {
	PID() int
	Kill() error
}

// Launcher spawns one engine server listening on port and returns its
// process handle plus the websocket URL to reach it.
type Launcher func(ctx context.Context, port int) (Process, string, error)

// ExecLauncher launches a real engine binary via os/exec. The port is
// appended as "--port N" and the URL built from urlFormat (one %d verb for
// the port).
func ExecLauncher(command string, args []string, urlFormat string) Launcher {
	return func(ctx context.Context, port int) (Process, string, error) {
		full := append(append([]string(nil), args...), "--port", fmt.Sprint(port))
		cmd := exec.CommandContext(ctx, command, full...)
		if err := cmd.Start(); err != nil {
			return nil, "", fmt.Errorf("start engine %s: %w", command, err)
		}
		return (*execProcess)(cmd), fmt.Sprintf(urlFormat, port), nil
	}
}

type execProcess exec.Cmd

func (p *execProcess) PID() int { return (*exec.Cmd)(p).Process.Pid }

func (p *execProcess) Kill() error {
	cmd := (*exec.Cmd)(p)
	if err := cmd.Process.Kill(); err != nil {
		return err
	}
	// Reap the child so it does not linger as a zombie.
	_ = cmd.Wait()
	return nil
}

// Pool hands out engine instances up to a fixed capacity. Each lease spawns
// a fresh engine process on a free port; each return kills it, so games
// never share engine-side state.
type Pool struct {
	launcher Launcher
	logger   *slog.Logger

	portFrom, portTo int
	capacity         int

	mu     sync.Mutex
	leased map[string]leasedInstance
}

type leasedInstance struct {
	inst Instance
	proc Process
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPortRange sets the port window probed for free ports.
func WithPortRange(from, to int) PoolOption {
	return func(p *Pool) { p.portFrom, p.portTo = from, to }
}

// WithPoolLogger sets the structured logger.
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) { p.logger = logger }
}

// NewPool creates a pool of at most capacity concurrently leased engines.
func NewPool(capacity int, launcher Launcher, opts ...PoolOption) *Pool {
	p := &Pool{
		launcher: launcher,
		logger:   logging.NewNop(),
		portFrom: 35000,
		portTo:   36000,
		capacity: capacity,
		leased:   make(map[string]leasedInstance),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Lease spawns an engine on a free port and hands out its endpoint. Fails
// with ErrPoolExhausted at capacity.
func (p *Pool) Lease(ctx context.Context) (Instance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.leased) >= p.capacity {
		return Instance{}, ErrPoolExhausted
	}

	port, err := p.freePort()
	if err != nil {
		return Instance{}, err
	}
	proc, wsURL, err := p.launcher(ctx, port)
	if err != nil {
		return Instance{}, fmt.Errorf("launch engine on port %d: %w", port, err)
	}

	inst := Instance{
		ID:    uuid.NewString(),
		Port:  port,
		WSURL: wsURL,
		PID:   proc.PID(),
	}
	p.leased[inst.ID] = leasedInstance{inst: inst, proc: proc}
	p.logger.Info("engine instance leased", "id", inst.ID, "port", port, "pid", inst.PID)
	return inst, nil
}

// Return kills the leased engine and frees its slot. Returning an unknown
// instance is not an error: the caller may race a pool shutdown.
func (p *Pool) Return(id string) error {
	p.mu.Lock()
	entry, ok := p.leased[id]
	delete(p.leased, id)
	p.mu.Unlock()
	if !ok {
		return nil
	}

	if err := entry.proc.Kill(); err != nil {
		p.logger.Warn("engine kill failed", "id", id, "pid", entry.inst.PID, "err", err)
		return fmt.Errorf("kill engine %d: %w", entry.inst.PID, err)
	}
	p.logger.Info("engine instance returned", "id", id, "port", entry.inst.Port)
	return nil
}

// Shutdown kills every leased engine. Called on broker teardown so no
// orphaned engine processes outlive the run.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	leased := p.leased
	p.leased = make(map[string]leasedInstance)
	p.mu.Unlock()

	for id, entry := range leased {
		if err := entry.proc.Kill(); err != nil {
			p.logger.Warn("engine kill failed during shutdown", "id", id, "err", err)
		}
	}
}

// freePort probes the configured window for a bindable port. Caller holds
// p.mu, so two leases cannot race the same probe.
func (p *Pool) freePort() (int, error) {
	for port := p.portFrom; port <= p.portTo; port++ {
		if p.portLeased(port) {
			continue
		}
		l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			continue
		}
		_ = l.Close()
		return port, nil
	}
	return 0, fmt.Errorf("no free port in [%d,%d]", p.portFrom, p.portTo)
}

func (p *Pool) portLeased(port int) bool {
	for _, entry := range p.leased {
		if entry.inst.Port == port {
			return true
		}
	}
	return false
}
