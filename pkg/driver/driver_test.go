package driver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symgym/symgym/pkg/adapters/memconn"
	"github.com/symgym/symgym/pkg/domain"
	"github.com/symgym/symgym/pkg/policy"
	"github.com/symgym/symgym/pkg/ports"
)

func registryWithMaps(t *testing.T, mapIDs ...string) *memconn.Registry {
	t.Helper()
	reg := memconn.NewRegistry()
	for _, id := range mapIDs {
		require.NoError(t, reg.Add(id, []domain.Node{
			{ID: "A", Successors: []domain.NodeID{"B"}},
			{ID: "B", Successors: []domain.NodeID{"C"}},
			{ID: "C"},
		}, "A"))
	}
	return reg
}

func batchOf(mapIDs ...string) []domain.Registration {
	batch := make([]domain.Registration, 0, len(mapIDs))
	for _, id := range mapIDs {
		batch = append(batch, domain.Registration{MapID: id})
	}
	return batch
}

func TestDriver_RunYieldsEveryMap(t *testing.T) {
	reg := registryWithMaps(t, "m1", "m2", "m3")
	d := New(reg.Dial, policy.First{}, WithConcurrency(2))

	episodes := d.Collect(context.Background(), batchOf("m1", "m2", "m3"))
	require.Len(t, episodes, 3)

	byMap := map[string]domain.Episode{}
	for _, ep := range episodes {
		byMap[ep.MapID] = ep
	}
	for _, id := range []string{"m1", "m2", "m3"} {
		ep, ok := byMap[id]
		require.True(t, ok, "missing episode for %s", id)
		assert.False(t, ep.Faulted)
		assert.NotEmpty(t, ep.SessionID)
		assert.Equal(t, 3, ep.Steps())
		assert.InDelta(t, 1.0, ep.FinalCoverage(), 1e-9)
	}
}

func TestDriver_FaultedEpisodeIsYieldedPartial(t *testing.T) {
	reg := registryWithMaps(t, "good", "bad")
	reg.FailAfter("bad", 2)
	d := New(reg.Dial, policy.First{})

	episodes := d.Collect(context.Background(), batchOf("good", "bad"))
	require.Len(t, episodes, 2)

	var bad domain.Episode
	for _, ep := range episodes {
		if ep.MapID == "bad" {
			bad = ep
		}
	}
	assert.True(t, bad.Faulted)
	assert.NotEmpty(t, bad.FaultReason)
	// The transition before the fault is preserved.
	assert.Equal(t, 1, bad.Steps())
}

func TestDriver_BoundedConcurrency(t *testing.T) {
	reg := registryWithMaps(t, "m1", "m2", "m3", "m4", "m5", "m6")
	var active, peak int64
	factory := func(ctx context.Context, mapID string) (ports.EngineConn, error) {
		conn, err := reg.Dial(ctx, mapID)
		if err != nil {
			return nil, err
		}
		return &gaugedConn{EngineConn: conn, active: &active, peak: &peak}, nil
	}

	d := New(factory, policy.First{}, WithConcurrency(2))
	episodes := d.Collect(context.Background(), batchOf("m1", "m2", "m3", "m4", "m5", "m6"))

	require.Len(t, episodes, 6)
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(2))
	assert.Zero(t, atomic.LoadInt64(&active), "all connections must be closed")
}

func TestDriver_CancellationClosesConnections(t *testing.T) {
	var mu sync.Mutex
	var conns []*blockingConn
	factory := func(ctx context.Context, mapID string) (ports.EngineConn, error) {
		c := &blockingConn{}
		mu.Lock()
		conns = append(conns, c)
		mu.Unlock()
		return c, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := New(factory, policy.First{}, WithConcurrency(3))
	out := d.Run(ctx, batchOf("m1", "m2", "m3"))

	time.Sleep(50 * time.Millisecond)
	cancel()

	for range out {
		// Drain whatever made it through before cancellation.
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, conns)
	for _, c := range conns {
		assert.True(t, c.closed.Load(), "connection left open after cancellation")
	}
}

func TestDriver_RetriesFaultedMap(t *testing.T) {
	var attempts int64
	reg := registryWithMaps(t, "flaky")
	reg.FailAfter("flaky", 1)

	factory := func(ctx context.Context, mapID string) (ports.EngineConn, error) {
		atomic.AddInt64(&attempts, 1)
		return reg.Dial(ctx, mapID)
	}

	d := New(factory, policy.First{}, WithRetries(2))
	episodes := d.Collect(context.Background(), batchOf("flaky"))

	require.Len(t, episodes, 1)
	// Map always faults, so every retry is spent and the last partial
	// episode is still yielded.
	assert.True(t, episodes[0].Faulted)
	assert.Equal(t, int64(3), atomic.LoadInt64(&attempts))
}

func TestDriver_ConnectFailureYieldsFaultedEpisode(t *testing.T) {
	factory := func(ctx context.Context, mapID string) (ports.EngineConn, error) {
		return nil, fmt.Errorf("broker unavailable")
	}
	d := New(factory, policy.First{})

	episodes := d.Collect(context.Background(), batchOf("m1"))
	require.Len(t, episodes, 1)
	assert.True(t, episodes[0].Faulted)
	assert.Contains(t, episodes[0].FaultReason, "connect")
}

// gaugedConn tracks concurrent open connections.
type gaugedConn struct {
	ports.EngineConn
	active *int64
	peak   *int64
	opened atomic.Bool
}

func (c *gaugedConn) Register(ctx context.Context, reg domain.Registration) (domain.GraphState, error) {
	if c.opened.CompareAndSwap(false, true) {
		now := atomic.AddInt64(c.active, 1)
		for {
			peak := atomic.LoadInt64(c.peak)
			if now <= peak || atomic.CompareAndSwapInt64(c.peak, peak, now) {
				break
			}
		}
	}
	// Leave the scheduler room to overlap workers.
	time.Sleep(5 * time.Millisecond)
	return c.EngineConn.Register(ctx, reg)
}

func (c *gaugedConn) Close() error {
	if c.opened.CompareAndSwap(true, false) {
		atomic.AddInt64(c.active, -1)
	}
	return c.EngineConn.Close()
}

// blockingConn registers instantly, then blocks every step on ctx.
type blockingConn struct {
	closed atomic.Bool
}

func (c *blockingConn) Register(ctx context.Context, reg domain.Registration) (domain.GraphState, error) {
	return domain.NewGraphState(
		[]domain.Node{{ID: "n"}},
		[]domain.LiveState{{ID: "s0", Node: "n"}}, 0, false)
}

func (c *blockingConn) Step(ctx context.Context, cmd domain.StepCommand) (domain.GraphState, error) {
	<-ctx.Done()
	return domain.GraphState{}, ctx.Err()
}

func (c *blockingConn) Close() error {
	c.closed.Store(true)
	return nil
}
