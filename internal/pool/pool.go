// Package pool runs recognition jobs over a fixed set of engines, at most one
// job per engine at a time.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andresmejia3/hush/internal/tesseract"
	"github.com/andresmejia3/hush/internal/types"
)

// DefaultPollInterval is how long a caller waits before rescanning for an idle engine.
const DefaultPollInterval = 50 * time.Millisecond

// ErrClosed is returned by Recognize once Close has started.
var ErrClosed = errors.New("pool: closed")

// Engine is one recognition session. Implementations need not be safe for
// concurrent use; the pool never enters the same engine twice at once.
type Engine interface {
	Configure(opts ...tesseract.Option) error
	Reset() error
	Recognize(bm types.Bitmap) (string, error)
	Close() error
}

// Factory builds the engine with the given index.
type Factory func(id int) (Engine, error)

// Job is a single recognition request.
type Job struct {
	Bitmap    types.Bitmap
	Whitelist string
	Mode      tesseract.PageSegMode
}

// InstanceStats counts what one engine has done since the pool started.
type InstanceStats struct {
	ID    int
	Jobs  int64
	Empty int64
}

type instance struct {
	engine Engine
	busy   atomic.Bool
	jobs   atomic.Int64
	empty  atomic.Int64
}

// Pool owns a fixed set of engines.
type Pool struct {
	instances []*instance
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	poll   time.Duration
	ready  func(id int)
	logger *slog.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.poll = d
		}
	}
}

// WithReadyHook registers fn to be called each time an engine finishes opening
// successfully. Engines open on their own goroutines; calls to fn are
// serialized but arrive in no particular order.
func WithReadyHook(fn func(id int)) Option {
	return func(p *Pool) { p.ready = fn }
}

// WithLogger sets the logger used for per-job failures.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// New opens size engines in parallel. size <= 0 means one per CPU.
// If any engine fails to open, every engine that did open is closed again and
// the joined construction errors are returned.
func New(ctx context.Context, size int, factory Factory, opts ...Option) (*Pool, error) {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p := &Pool{
		poll:   DefaultPollInterval,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	engines := make([]Engine, size)
	errs := make([]error, size)
	var wg sync.WaitGroup
	var readyMu sync.Mutex

	// 1. Open every engine concurrently
	for i := 0; i < size; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				errs[id] = err
				return
			}
			e, err := factory(id)
			if err != nil {
				errs[id] = fmt.Errorf("engine %d: %w", id, err)
				return
			}
			engines[id] = e
			if p.ready != nil {
				readyMu.Lock()
				p.ready(id)
				readyMu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	// 2. All or nothing
	if err := errors.Join(errs...); err != nil {
		for _, e := range engines {
			if e != nil {
				e.Close()
			}
		}
		return nil, err
	}

	p.instances = make([]*instance, size)
	for i, e := range engines {
		p.instances[i] = &instance{engine: e}
	}
	p.logger.Debug("engine pool ready", "size", size)
	return p, nil
}

// Size returns the number of engines.
func (p *Pool) Size() int { return len(p.instances) }

// Recognize runs job on the first idle engine, waiting for one if all are busy.
// Engine failures are logged and reported as empty text. Only cancellation of
// ctx and a closed pool are returned as errors.
func (p *Pool) Recognize(ctx context.Context, job Job) (string, error) {
	if p.closed.Load() {
		return "", ErrClosed
	}
	id, err := p.acquire(ctx)
	if err != nil {
		return "", err
	}
	inst := p.instances[id]
	defer inst.busy.Store(false)

	// Close may have won the race between the check above and the CAS.
	if p.closed.Load() {
		return "", ErrClosed
	}

	text := p.run(id, inst, job)
	inst.jobs.Add(1)
	if text == "" {
		inst.empty.Add(1)
	}
	return text, nil
}

func (p *Pool) run(id int, inst *instance, job Job) string {
	e := inst.engine
	// Restore defaults no matter how the job ends.
	defer func() {
		if err := e.Reset(); err != nil {
			p.logger.Debug("engine reset failed", "engine", id, "err", err)
		}
	}()

	if err := e.Configure(tesseract.WithWhitelist(job.Whitelist), tesseract.WithPageSegMode(job.Mode)); err != nil {
		p.logger.Debug("engine configure failed", "engine", id, "err", err)
		return ""
	}
	text, err := e.Recognize(job.Bitmap)
	if err != nil {
		p.logger.Debug("recognition failed", "engine", id, "err", err)
		return ""
	}
	return text
}

// acquire marks the first idle instance busy and returns its index. When all
// instances are busy it sleeps one poll interval and scans again.
func (p *Pool) acquire(ctx context.Context) (int, error) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		for i, inst := range p.instances {
			if inst.busy.CompareAndSwap(false, true) {
				return i, nil
			}
		}
		if p.closed.Load() {
			return 0, ErrClosed
		}

		if timer == nil {
			timer = time.NewTimer(p.poll)
		} else {
			timer.Reset(p.poll)
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
		}
	}
}

// Close waits for in-flight jobs to finish, then closes every engine exactly
// once. Later calls return the first call's result.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)

		// Hold every instance so nothing can start on an engine being closed.
		held := make([]bool, len(p.instances))
		for remaining := len(p.instances); remaining > 0; {
			for i, inst := range p.instances {
				if !held[i] && inst.busy.CompareAndSwap(false, true) {
					held[i] = true
					remaining--
				}
			}
			if remaining > 0 {
				time.Sleep(p.poll)
			}
		}

		var errs []error
		for i, inst := range p.instances {
			if err := inst.engine.Close(); err != nil {
				errs = append(errs, fmt.Errorf("engine %d: %w", i, err))
			}
		}
		p.closeErr = errors.Join(errs...)
	})
	return p.closeErr
}

// Stats returns per-engine counters.
func (p *Pool) Stats() []InstanceStats {
	out := make([]InstanceStats, len(p.instances))
	for i, inst := range p.instances {
		out[i] = InstanceStats{ID: i, Jobs: inst.jobs.Load(), Empty: inst.empty.Load()}
	}
	return out
}
