package executorhost

import (
	"context"
	"sync"
	"time"

	"github.com/yagehu/wasit-sub000/internal/metricsx"
	"github.com/yagehu/wasit-sub000/internal/werr"
)

// instancePool hands out guestModule instances, blocking callers when none
// are free and lazily constructing new ones up to its configured size.
// Adapted from open-policy-agent-opa's internal/wasm/sdk/opa/pool.go
// acquire/release discipline: the channel-of-tokens-plus-mutex-protected
// slice shape is kept, generalized from pooling policy-evaluation VMs to
// pooling this package's guestModule instances.
type instancePool struct {
	mu        sync.Mutex
	available chan struct{}
	factory   func(ctx context.Context) (guestModule, error)
	instances []guestModule
	acquired  []bool
	closed    bool
}

func newInstancePool(size int, factory func(ctx context.Context) (guestModule, error)) *instancePool {
	if size < 1 {
		size = 1
	}
	available := make(chan struct{}, size)
	for i := 0; i < size; i++ {
		available <- struct{}{}
	}
	return &instancePool{available: available, factory: factory}
}

// acquire obtains a guestModule, waiting on ctx if the pool is fully
// checked out, building a new instance on first use of a free slot.
func (p *instancePool) acquire(ctx context.Context, m *metricsx.Metrics) (guestModule, error) {
	start := time.Now()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.available:
	}
	if m != nil {
		m.PoolAcquire.Observe(time.Since(start).Seconds())
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.available <- struct{}{}
		return nil, werr.New(werr.Dispatch, "executor instance pool is closed")
	}

	for i, inst := range p.instances {
		if !p.acquired[i] {
			p.acquired[i] = true
			return inst, nil
		}
	}

	inst, err := p.factory(ctx)
	if err != nil {
		p.available <- struct{}{}
		return nil, werr.Wrap(werr.Dispatch, err, "instantiating guest executor")
	}
	p.instances = append(p.instances, inst)
	p.acquired = append(p.acquired, true)
	return inst, nil
}

// release returns inst to the pool for reuse by the next acquirer.
func (p *instancePool) release(inst guestModule) {
	p.mu.Lock()
	for i, x := range p.instances {
		if x == inst {
			p.acquired[i] = false
			break
		}
	}
	p.mu.Unlock()
	p.available <- struct{}{}
}

// close tears down every instance the pool ever constructed, regardless of
// whether it is currently acquired (used on Kill, where the caller has
// already given up on any in-flight call).
func (p *instancePool) close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	var firstErr error
	for _, inst := range p.instances {
		if err := inst.close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
