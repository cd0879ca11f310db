// Package eventloop is the Go reformulation of spec.md §4.D's readiness
// multiplexer. Go's runtime netpoller already multiplexes socket
// readiness underneath any blocking net.Conn call, so there is no literal
// epoll_wait here; instead Loop owns the closure registry and the
// periodic-task scheduler, and dispatches each registered Closure to its
// own goroutine. One-shot re-arm is satisfied structurally: a closure's
// Run method only ever has one invocation in flight, by construction, so
// there is no re-entrancy to guard against.
package eventloop

import (
	"context"
	"sync"
	"time"

	"github.com/sevag-tafnakaji/sol-broker/internal/registry"
)

// Closure is the unit the Loop dispatches — spec.md §3's Closure value,
// minus the payload-buffer field (which lives as a local variable inside
// Run, since nothing else ever observes it between a write and the next
// read).
type Closure interface {
	// ID returns the closure's unique registry key.
	ID() string
	// Run executes the closure's state machine until ctx is canceled or
	// the closure decides to terminate on its own (error, clean
	// disconnect). Run must not block past ctx cancellation.
	Run(ctx context.Context)
	// Destroy releases any resources the closure still holds (its
	// socket, any buffered payload) when the loop deregisters it.
	Destroy()
}

type closureHandle struct {
	Closure
}

func (h closureHandle) Destroy() { h.Closure.Destroy() }

// Loop is the broker's run loop: a closure registry plus a set of
// periodic tasks, run until Shutdown is called or the parent context
// passed to Run is canceled.
type Loop struct {
	closures *registry.Registry[closureHandle]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns an idle Loop.
func New() *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		closures: registry.New[closureHandle](),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Register adds c to the closure registry and starts its goroutine,
// driven by the loop's own lifetime (canceled on Shutdown). The closure
// is automatically deregistered when Run returns.
func (l *Loop) Register(c Closure) {
	l.closures.Put(c.ID(), closureHandle{c})
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		c.Run(l.ctx)
		l.Deregister(c.ID())
	}()
}

// Deregister removes the closure with the given id, if present, and
// releases its resources via Destroy.
func (l *Loop) Deregister(id string) {
	l.closures.Delete(id)
}

// ClosureCount reports how many closures are currently registered — the
// Go analogue of inspecting the session registry's closures mapping.
func (l *Loop) ClosureCount() int {
	return l.closures.Len()
}

// AddPeriodic registers a periodic task that invokes fn once per tick of
// interval, until the Loop shuts down. This is the Go expression of
// spec.md §4.D's timerfd: the ticker channel read is the "drain the
// timer fd" step, and each tick invokes fn exactly once, matching the
// "invoked exactly once per expiration" contract.
func (l *Loop) AddPeriodic(interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn(l.ctx)
			case <-l.ctx.Done():
				return
			}
		}
	}()
}

// Run blocks until ctx is canceled, then shuts the loop down.
func (l *Loop) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		l.Shutdown()
		return ctx.Err()
	case <-l.ctx.Done():
		return nil
	}
}

// Shutdown cancels the loop's internal context — the Go analogue of the
// source's process-wide shutdown eventfd — and waits for every
// registered closure and periodic task goroutine to return.
func (l *Loop) Shutdown() {
	l.cancel()
	l.wg.Wait()
}
