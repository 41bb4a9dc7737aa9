// Package wsconn implements the engine connection over a websocket, the
// transport real game servers speak. One websocket carries one game; the
// exchange is strictly alternating (write one command, read one snapshot).
package wsconn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/symgym/symgym/internal/logging"
	"github.com/symgym/symgym/pkg/domain"
	"github.com/symgym/symgym/pkg/protocol"
)

// Conn is a websocket-backed engine connection. It implements
// ports.EngineConn and is not safe for concurrent use, matching the
// alternating protocol.
type Conn struct {
	ws     *websocket.Conn
	logger *slog.Logger
	closed bool
}

// Option configures a Conn.
type Option func(*Conn)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) { c.logger = logger }
}

// Dial connects to an engine's websocket endpoint.
func Dial(ctx context.Context, url string, opts ...Option) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w: %v", url, domain.ErrEngineDisconnected, err)
	}
	c := &Conn{ws: ws, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Register sends the start message and blocks for the initial snapshot.
func (c *Conn) Register(ctx context.Context, reg domain.Registration) (domain.GraphState, error) {
	frame, err := protocol.EncodeRegistration(reg)
	if err != nil {
		return domain.GraphState{}, err
	}
	return c.exchange(ctx, frame)
}

// Step sends one command and blocks for the resulting snapshot.
func (c *Conn) Step(ctx context.Context, cmd domain.StepCommand) (domain.GraphState, error) {
	frame, err := protocol.EncodeStepCommand(cmd)
	if err != nil {
		return domain.GraphState{}, err
	}
	return c.exchange(ctx, frame)
}

// Close sends a close frame and tears down the websocket. Safe to call more
// than once.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	deadline := time.Now().Add(time.Second)
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.ws.Close()
}

// exchange performs one alternating write/read round trip under the
// context's deadline.
func (c *Conn) exchange(ctx context.Context, frame []byte) (domain.GraphState, error) {
	if c.closed {
		return domain.GraphState{}, fmt.Errorf("connection closed: %w", domain.ErrEngineDisconnected)
	}
	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		deadline = time.Time{}
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return domain.GraphState{}, c.transportErr("set write deadline", err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return domain.GraphState{}, c.transportErr("write", err)
	}

	if err := c.ws.SetReadDeadline(deadline); err != nil {
		return domain.GraphState{}, c.transportErr("set read deadline", err)
	}
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return domain.GraphState{}, c.transportErr("read", err)
	}

	env, err := protocol.DecodeServerMessage(data)
	if err != nil {
		return domain.GraphState{}, err
	}
	switch env.Type {
	case protocol.MessageState:
		return protocol.DecodeGraphState(env.Payload)
	case protocol.MessageError:
		ep, err := protocol.DecodeError(env.Payload)
		if err != nil {
			return domain.GraphState{}, err
		}
		return domain.GraphState{}, engineError(ep)
	default:
		return domain.GraphState{}, fmt.Errorf("%w: unexpected envelope %q", domain.ErrMalformedPayload, env.Type)
	}
}

// transportErr classifies socket failures into the domain taxonomy.
func (c *Conn) transportErr(op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrEngineTimeout, err)
	}
	c.logger.Debug("websocket transport failure", "op", op, "err", err)
	return fmt.Errorf("%s: %w: %v", op, domain.ErrEngineDisconnected, err)
}

// engineError maps an engine error payload onto the domain taxonomy.
func engineError(ep protocol.ErrorPayload) error {
	switch ep.Code {
	case protocol.ErrorCodeMapNotFound:
		return fmt.Errorf("%w: %s", domain.ErrMapNotFound, ep.Message)
	case protocol.ErrorCodeUnknownState:
		return fmt.Errorf("%w: %s", domain.ErrInvalidStepCommand, ep.Message)
	default:
		return fmt.Errorf("engine fault: %w: %s", domain.ErrEngineDisconnected, ep.Message)
	}
}
