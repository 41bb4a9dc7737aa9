package broker

import (
	"context"
	"fmt"

	"github.com/symgym/symgym/pkg/adapters/wsconn"
	"github.com/symgym/symgym/pkg/ports"
)

// ConnFactory builds an engine connection factory backed by the broker: each
// session leases an instance, dials its websocket, and returns the instance
// when the connection closes.
func ConnFactory(client *Client, opts ...wsconn.Option) ports.ConnFactory {
	return func(ctx context.Context, mapID string) (ports.EngineConn, error) {
		inst, err := client.Lease(ctx)
		if err != nil {
			return nil, fmt.Errorf("lease engine for map %q: %w", mapID, err)
		}
		conn, err := wsconn.Dial(ctx, inst.WSURL, opts...)
		if err != nil {
			_ = client.Return(context.WithoutCancel(ctx), inst)
			return nil, err
		}
		return &leasedConn{EngineConn: conn, client: client, inst: inst}, nil
	}
}

// leasedConn couples the websocket's lifetime to the lease: Close tears down
// the socket first, then hands the instance back so the broker can kill the
// engine process.
type leasedConn struct {
	ports.EngineConn
	client   *Client
	inst     Instance
	returned bool
}

func (c *leasedConn) Close() error {
	closeErr := c.EngineConn.Close()
	if c.returned {
		return closeErr
	}
	c.returned = true
	if err := c.client.Return(context.Background(), c.inst); err != nil {
		return fmt.Errorf("return instance %s: %w", c.inst.ID, err)
	}
	return closeErr
}

var _ ports.EngineConn = (*leasedConn)(nil)
