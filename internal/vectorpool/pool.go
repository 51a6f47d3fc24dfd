// Package vectorpool implements the bounded connection pool in front of the
// external ANN vector store (component C2, §4.1). It is the only shared
// mutual-exclusion point in the system (§5): a lock guards the connection
// counter, the set of active handles, and the queue of available handles.
package vectorpool

import (
	"context"
	"sync"
	"time"

	internalerrors "github.com/cortexkb/retrieval-engine/internal/errors"
	"github.com/rs/zerolog"
)

// Handle is a long-lived client connection to the external vector store.
// Implementations wrap whatever transport the concrete store uses (a
// qdrant gRPC channel, an in-process index reference, ...).
type Handle interface {
	// Ping performs a lightweight heartbeat against the underlying
	// connection, returning an error if the handle is no longer live.
	Ping(ctx context.Context) error
	// Close releases any underlying resources.
	Close() error
}

// Factory creates a new Handle. Called whenever the pool needs to grow.
type Factory func(ctx context.Context) (Handle, error)

// Config bounds the pool (§4.1 "Configuration").
type Config struct {
	MinConnections int
	MaxConnections int
}

// DefaultConfig matches §4.1's stated defaults.
func DefaultConfig() Config {
	return Config{MinConnections: 2, MaxConnections: 10}
}

// Stats reports advisory pool counters (§4.1 "Statistics are reported but
// advisory").
type Stats struct {
	Current   int
	Active    int
	Available int
	Peak      int
}

// Pool is the bounded pool of vector-store handles.
type Pool struct {
	cfg     Config
	factory Factory
	log     zerolog.Logger

	mu        sync.Mutex
	released  chan struct{}
	current   int
	active    int
	peak      int
	available []Handle
}

// New constructs a Pool and eagerly opens MinConnections handles.
func New(ctx context.Context, cfg Config, factory Factory, log zerolog.Logger) (*Pool, error) {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultConfig().MaxConnections
	}
	if cfg.MinConnections <= 0 {
		cfg.MinConnections = DefaultConfig().MinConnections
	}
	p := &Pool{cfg: cfg, factory: factory, log: log.With().Str("component", "vectorpool").Logger(), released: make(chan struct{}, 1)}

	for i := 0; i < cfg.MinConnections; i++ {
		h, err := factory(ctx)
		if err != nil {
			return nil, internalerrors.New(internalerrors.KindResourceExhaustion, "failed to pre-warm vector pool", err)
		}
		p.available = append(p.available, h)
		p.current++
	}
	p.peak = p.current
	return p, nil
}

// Get borrows a handle, trying an available one first (validated with a
// heartbeat; a dead handle is dropped and the counter decremented), then
// synthesizing a new one if the pool has room, then waiting until either a
// handle is returned or timeout elapses (§4.1 "get").
func (p *Pool) Get(ctx context.Context, timeout time.Duration) (Handle, error) {
	deadline := time.Now().Add(timeout)

	for {
		p.mu.Lock()
		for len(p.available) > 0 {
			h := p.available[len(p.available)-1]
			p.available = p.available[:len(p.available)-1]
			p.mu.Unlock()

			if err := h.Ping(ctx); err != nil {
				_ = h.Close()
				p.mu.Lock()
				p.current--
				p.log.Debug().Err(err).Msg("dropped dead handle on borrow, retrying")
				continue
			}
			p.mu.Lock()
			p.active++
			if p.active+len(p.available) > p.peak {
				p.peak = p.active + len(p.available)
			}
			p.mu.Unlock()
			return h, nil
		}

		if p.current < p.cfg.MaxConnections {
			p.current++
			p.mu.Unlock()
			h, err := p.factory(ctx)
			if err != nil {
				p.mu.Lock()
				p.current--
				p.mu.Unlock()
				return nil, internalerrors.New(internalerrors.KindResourceExhaustion, "failed to open vector store connection", err)
			}
			p.mu.Lock()
			p.active++
			if p.active > p.peak {
				p.peak = p.active
			}
			p.mu.Unlock()
			return h, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			p.mu.Unlock()
			return nil, internalerrors.New(internalerrors.KindResourceExhaustion, "vector pool borrow timed out", nil).
				WithDetail("timeout", timeout.String())
		}
		p.mu.Unlock()

		select {
		case <-p.released:
		case <-time.After(remaining):
		case <-ctx.Done():
			return nil, internalerrors.New(internalerrors.KindResourceExhaustion, "vector pool borrow cancelled", ctx.Err())
		}
	}
}

// notifyReleased wakes one blocked Get without requiring it to be woken
// under the lock, avoiding the goroutine-per-waiter cost of sync.Cond.
func (p *Pool) notifyReleased() {
	select {
	case p.released <- struct{}{}:
	default:
	}
}

// Return gives a handle back to the pool. A dead handle, or a handle
// returned with no room left, is discarded instead.
func (p *Pool) Return(ctx context.Context, h Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer p.notifyReleased()

	p.active--
	if err := h.Ping(ctx); err != nil {
		_ = h.Close()
		p.current--
		return
	}
	if len(p.available) >= p.cfg.MaxConnections {
		_ = h.Close()
		p.current--
		return
	}
	p.available = append(p.available, h)
}

// Discard drops a handle the caller knows is dead without attempting a
// heartbeat, decrementing the connection count.
func (p *Pool) Discard(h Handle) {
	p.mu.Lock()
	p.active--
	p.current--
	p.mu.Unlock()
	p.notifyReleased()
	_ = h.Close()
}

// Health attempts a borrow/return cycle against a 5s budget (§4.1
// "health").
func (p *Pool) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	h, err := p.Get(ctx, 5*time.Second)
	if err != nil {
		return err
	}
	p.Return(ctx, h)
	return nil
}

// Stats reports the current advisory counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Current:   p.current,
		Active:    p.active,
		Available: len(p.available),
		Peak:      p.peak,
	}
}

// Close shuts down every pooled handle.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range p.available {
		_ = h.Close()
	}
	p.available = nil
	p.current = 0
	p.active = 0
	return nil
}
