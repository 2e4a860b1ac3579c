// Package throttle tracks per-mount health and paces filesystem access
// against mounts that are intermittently unresponsive.
package throttle

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ErrorKind classifies a filesystem failure for backoff purposes.
type ErrorKind int

// Failure classifications.
const (
	// Transient covers would-block, resource-busy, and stale-handle
	// conditions that tend to clear on their own.
	Transient ErrorKind = iota
	// Permanent covers not-found and permission errors; retrying will
	// not change the outcome, so they never extend backoff.
	Permanent
)

// Options configures a Controller. Zero values fall back to the defaults
// used against SMB/NFS mounts.
type Options struct {
	Floor         time.Duration
	Ceiling       time.Duration
	Step          time.Duration
	SuccessStreak int

	// Now and Sleep are injectable for tests. Sleep must honor ctx.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func (o *Options) applyDefaults() {
	if o.Floor <= 0 {
		o.Floor = 5 * time.Second
	}
	if o.Ceiling <= 0 {
		o.Ceiling = 30 * time.Second
	}
	if o.Step <= 0 {
		o.Step = 5 * time.Second
	}
	if o.SuccessStreak <= 0 {
		o.SuccessStreak = 3
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
}

// state is the per-root throttle record.
type state struct {
	consecutiveErrors int
	successes         int
	backoff           time.Duration
	lastOp            time.Time
}

// Controller holds one throttle state per mount root.
type Controller struct {
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	states map[string]*state
}

// NewController creates a throttle controller.
func NewController(opts Options, logger *slog.Logger) *Controller {
	opts.applyDefaults()
	return &Controller{
		opts:   opts,
		logger: logger.With(slog.String("component", "throttle")),
		states: make(map[string]*state),
	}
}

// BeforeOperation blocks for the current backoff duration when the mount
// is unhealthy. Returns early with the context error on cancellation.
func (c *Controller) BeforeOperation(ctx context.Context, root string) error {
	c.mu.Lock()
	st := c.state(root)
	wait := time.Duration(0)
	if st.consecutiveErrors > 0 {
		wait = st.backoff
	}
	st.lastOp = c.opts.Now()
	c.mu.Unlock()

	if wait == 0 {
		return ctx.Err()
	}

	c.logger.Debug("mount unhealthy, backing off",
		"root", root, "wait", wait.String())
	return c.opts.Sleep(ctx, wait)
}

// RecordSuccess notes a successful operation. A sustained streak resets
// backoff to the floor and marks the mount healthy again.
func (c *Controller) RecordSuccess(root string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.state(root)
	if st.consecutiveErrors == 0 {
		return
	}
	st.successes++
	if st.successes >= c.opts.SuccessStreak {
		st.consecutiveErrors = 0
		st.successes = 0
		st.backoff = c.opts.Floor
		c.logger.Info("mount recovered", "root", root)
	}
}

// RecordFailure notes a failed operation. Transient failures escalate
// backoff by one step toward the ceiling; permanent failures are ignored.
func (c *Controller) RecordFailure(root string, kind ErrorKind) {
	if kind == Permanent {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.state(root)
	st.successes = 0
	st.consecutiveErrors++
	if st.consecutiveErrors == 1 {
		st.backoff = c.opts.Floor
	} else if st.backoff < c.opts.Ceiling {
		st.backoff = min(st.backoff+c.opts.Step, c.opts.Ceiling)
	}
	c.logger.Warn("transient mount failure",
		"root", root,
		"consecutive_errors", st.consecutiveErrors,
		"backoff", st.backoff.String())
}

// Backoff returns the current backoff duration for a root. Zero means
// the mount is considered healthy.
func (c *Controller) Backoff(root string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.state(root)
	if st.consecutiveErrors == 0 {
		return 0
	}
	return st.backoff
}

// state returns the record for root, creating it if needed. Callers must
// hold c.mu.
func (c *Controller) state(root string) *state {
	st, ok := c.states[root]
	if !ok {
		st = &state{}
		c.states[root] = st
	}
	return st
}

// sleepContext sleeps for d or until ctx is canceled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
