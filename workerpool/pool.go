// Package workerpool implements a pool of worker slots (bounded under
// StrategyFixed) that execute submitted closures off the scheduler
// goroutine and deliver results back through a msgpack-marshalled,
// segment-based wire format with file spillover.
//
// Each Submit starts a goroutine, tracked by a WaitGroup, that borrows
// a worker handle from a pool.Pool and runs the work. Each worker
// handle stands in for an isolated execution slot; see DESIGN.md for
// why process-level fork/spawn isolation was not carried over
// literally.
package workerpool

import (
	"context"
	"fmt"
	"sync"

	"github.com/vosaka-php/foroutines/pool"
)

// Strategy selects how worker slots are sized.
type Strategy int

const (
	// StrategyDynamic grows worker slots on demand (sync.Pool-backed).
	StrategyDynamic Strategy = iota
	// StrategyFixed caps concurrent worker slots at PoolSize.
	StrategyFixed
)

// Closure is a unit of work submitted to the pool.
type Closure func() (any, error)

// Result is delivered once a submitted Closure finishes. Token is
// whatever the submitter passed to Submit, used to route the result
// back to the right Deferred/Job without the pool knowing about either.
type Result struct {
	Token any
	Value any
	Err   error
}

// Option configures a Pool.
type Option func(*config)

type config struct {
	Strategy    Strategy
	PoolSize    uint
	SegmentSize int
	SpillDir    string
}

func defaultConfig() config {
	return config{
		Strategy:    StrategyDynamic,
		PoolSize:    0,
		SegmentSize: defaultSegmentSize,
		SpillDir:    "",
	}
}

// WithFixedSlots caps the pool at n concurrent worker slots.
func WithFixedSlots(n uint) Option {
	return func(c *config) { c.Strategy = StrategyFixed; c.PoolSize = n }
}

// WithDynamicSlots selects unbounded (sync.Pool-backed) slot growth,
// the default.
func WithDynamicSlots() Option {
	return func(c *config) { c.Strategy = StrategyDynamic }
}

// WithSegmentSize overrides the shared result segment size (default 10MB).
func WithSegmentSize(bytes int) Option {
	return func(c *config) { c.SegmentSize = bytes }
}

// WithSpillDir overrides the directory used for oversized result
// spillover files (default os.TempDir()).
func WithSpillDir(dir string) Option {
	return func(c *config) { c.SpillDir = dir }
}

type worker struct {
	segment *segment
}

// Pool executes submitted closures on pooled worker slots and exposes
// their results through a reap queue the scheduler drains on each tick.
type Pool struct {
	mu       sync.Mutex
	slots    pool.Pool
	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
	inCount  int
	results  chan Result
	segSize  int
	spillDir string
}

// New constructs a Pool. Callers should prefer Run/Scheduler, which
// construct and tear one down automatically.
func New(opts ...Option) *Pool {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		ctx:      ctx,
		cancel:   cancel,
		results:  make(chan Result, 1024),
		segSize:  cfg.SegmentSize,
		spillDir: cfg.SpillDir,
	}

	newWorker := func() interface{} {
		return &worker{segment: newSegment(p.segSize, p.spillDir)}
	}
	if cfg.Strategy == StrategyFixed && cfg.PoolSize > 0 {
		p.slots = pool.NewFixed(cfg.PoolSize, newWorker)
	} else {
		p.slots = pool.NewDynamic(newWorker)
	}
	return p
}

// Submit runs fn on a pooled worker slot. token is handed back
// unchanged on the corresponding Result so the caller can route it.
func (p *Pool) Submit(fn Closure, token any) {
	p.mu.Lock()
	p.inCount++
	p.mu.Unlock()

	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		w := p.slots.Get().(*worker)
		defer p.slots.Put(w)

		value, err := p.execute(fn)
		// Round-trip through the wire-format marshaller even though
		// execution stayed in-process: this is what a real fork/spawn
		// worker would hand back over shared memory, and exercises the
		// msgpack + spillover wire path.
		header, body, segErr := w.segment.marshal(value, err)
		if segErr != nil {
			p.deliver(Result{Token: token, Err: segErr})
			return
		}
		v, rerr := w.segment.unmarshal(header, body)
		p.deliver(Result{Token: token, Value: v, Err: rerr})
	}()
}

func (p *Pool) execute(fn Closure) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("workerpool: task panicked: %v", r)
		}
	}()
	return fn()
}

func (p *Pool) deliver(res Result) {
	select {
	case p.results <- res:
	case <-p.ctx.Done():
		// Dropped without being reaped.
		p.mu.Lock()
		p.inCount--
		p.mu.Unlock()
	}
}

// ReapOne performs one non-blocking drain of a completed result, the
// way the Scheduler's tick reaps at most one completed worker result
// with a non-blocking wait per tick.
func (p *Pool) ReapOne() (Result, bool) {
	select {
	case res := <-p.results:
		p.mu.Lock()
		p.inCount--
		p.mu.Unlock()
		return res, true
	default:
		return Result{}, false
	}
}

// InFlight returns the number of submitted closures not yet reaped.
func (p *Pool) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inCount
}

// Shutdown waits for in-flight work to finish and releases resources.
func (p *Pool) Shutdown() {
	p.inflight.Wait()
	p.cancel()
}
