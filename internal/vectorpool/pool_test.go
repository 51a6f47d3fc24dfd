package vectorpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	id    int
	dead  bool
	closed bool
}

func (h *fakeHandle) Ping(ctx context.Context) error {
	if h.dead {
		return context.DeadlineExceeded
	}
	return nil
}

func (h *fakeHandle) Close() error {
	h.closed = true
	return nil
}

func newCountingFactory() (Factory, *int32) {
	var n int32
	return func(ctx context.Context) (Handle, error) {
		id := atomic.AddInt32(&n, 1)
		return &fakeHandle{id: int(id)}, nil
	}, &n
}

func TestPoolPreWarmsMinConnections(t *testing.T) {
	factory, n := newCountingFactory()
	p, err := New(context.Background(), Config{MinConnections: 2, MaxConnections: 5}, factory, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, int32(2), *n)
	require.Equal(t, 2, p.Stats().Current)
}

func TestPoolBoundInvariant(t *testing.T) {
	factory, _ := newCountingFactory()
	p, err := New(context.Background(), Config{MinConnections: 1, MaxConnections: 3}, factory, zerolog.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	h1, err := p.Get(ctx, time.Second)
	require.NoError(t, err)
	h2, err := p.Get(ctx, time.Second)
	require.NoError(t, err)
	h3, err := p.Get(ctx, time.Second)
	require.NoError(t, err)

	stats := p.Stats()
	require.LessOrEqual(t, stats.Active+stats.Available, p.cfg.MaxConnections)
	require.Equal(t, 3, stats.Active)

	p.Return(ctx, h1)
	p.Return(ctx, h2)
	p.Return(ctx, h3)

	stats = p.Stats()
	require.LessOrEqual(t, stats.Active+stats.Available, p.cfg.MaxConnections)
}

func TestPoolBorrowTimeoutWhenExhausted(t *testing.T) {
	factory, _ := newCountingFactory()
	p, err := New(context.Background(), Config{MinConnections: 1, MaxConnections: 1}, factory, zerolog.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	h, err := p.Get(ctx, time.Second)
	require.NoError(t, err)

	_, err = p.Get(ctx, 50*time.Millisecond)
	require.Error(t, err)

	p.Return(ctx, h)
}

func TestPoolDropsDeadHandleOnBorrow(t *testing.T) {
	factory, _ := newCountingFactory()
	p, err := New(context.Background(), Config{MinConnections: 1, MaxConnections: 2}, factory, zerolog.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	h, err := p.Get(ctx, time.Second)
	require.NoError(t, err)
	h.(*fakeHandle).dead = true
	p.mu.Lock()
	p.available = append(p.available, h)
	p.active--
	p.mu.Unlock()

	h2, err := p.Get(ctx, time.Second)
	require.NoError(t, err)
	require.False(t, h2.(*fakeHandle).dead)
	require.Equal(t, 1, p.Stats().Current)
}

func TestPoolHealthRoundTrip(t *testing.T) {
	factory, _ := newCountingFactory()
	p, err := New(context.Background(), DefaultConfig(), factory, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, p.Health(context.Background()))
}
