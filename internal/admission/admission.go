// Package admission gates jobs in front of the worker: an arrival throttle that
// spaces admissions a fixed period apart, then an optional bound on how many
// workers run at once. One Controller is shared by every job in a process.
package admission

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"upscaled/internal/metrics"
	"upscaled/internal/pkg/logger"
)

// DefaultInterval is the arrival period used when none is configured.
const DefaultInterval = 500 * time.Millisecond

// Config sizes a Controller.
type Config struct {
	// Interval is the minimum spacing between two admissions. Zero disables the throttle.
	Interval time.Duration
	// MaxJobs bounds concurrent workers. Zero means unbounded.
	MaxJobs int64
}

// Controller owns the throttle and the permit pool.
type Controller struct {
	limiter *rate.Limiter
	pool    *semaphore.Weighted
	maxJobs int64
	log     *logger.Logger
}

// New builds a Controller. A negative Interval or MaxJobs is treated as zero.
func New(cfg Config, log *logger.Logger) *Controller {
	if log == nil {
		log = logger.NewDefault()
	}

	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}

	c := &Controller{
		// Burst 1: a long idle period earns one immediate admission, never more.
		limiter: rate.NewLimiter(limit, 1),
		log:     log.WithComponent("admission"),
	}
	if cfg.MaxJobs > 0 {
		c.maxJobs = cfg.MaxJobs
		c.pool = semaphore.NewWeighted(cfg.MaxJobs)
	}

	c.log.Debug("admission configured",
		"interval", cfg.Interval.String(),
		"max_jobs", c.maxJobs,
	)
	return c
}

// MaxJobs returns the permit pool size, or 0 when unbounded.
func (c *Controller) MaxJobs() int64 {
	return c.maxJobs
}

// Throttle blocks until this caller's arrival slot. Callers are served in the
// order they arrive. ctx is not consulted: an admitted job is never abandoned.
func (c *Controller) Throttle(_ context.Context) {
	start := time.Now()
	r := c.limiter.Reserve()
	if d := r.Delay(); d > 0 {
		t := time.NewTimer(d)
		<-t.C
	}
	metrics.RecordThrottleWait(time.Since(start))
}

// Acquire takes one permit from the pool, waiting in FIFO order. It returns a
// nil *Permit when the pool is unbounded; Release on nil is a no-op.
func (c *Controller) Acquire(ctx context.Context) *Permit {
	if c.pool == nil {
		return nil
	}

	start := time.Now()
	if err := c.pool.Acquire(context.WithoutCancel(ctx), 1); err != nil {
		// Only a cancelled context can fail Acquire, and ours never is.
		panic("admission: permit pool unexpectedly closed: " + err.Error())
	}
	metrics.RecordPermitWait(time.Since(start))
	metrics.PermitAcquired()

	return &Permit{pool: c.pool}
}

// Admit runs the throttle, then takes a permit.
func (c *Controller) Admit(ctx context.Context) *Permit {
	c.Throttle(ctx)
	return c.Acquire(ctx)
}

// Permit is one unit of the concurrency budget.
type Permit struct {
	pool *semaphore.Weighted
	once sync.Once
}

// Release returns the permit. Only the first call has an effect.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		p.pool.Release(1)
		metrics.PermitReleased()
	})
}
