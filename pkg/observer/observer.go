// Package observer delivers change notifications to an engine from any
// goroutine. The observer's Run loop is the engine's single owner: every
// notification is applied on that goroutine and pending scopes are flushed
// once per tick, so bursts of triggers (bulk row insertion, rapid typing)
// collapse into one pass per scope.
package observer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-formcalc/pkg/engine"
	"github.com/goliatone/go-formcalc/pkg/field"
)

// DefaultTick is the coalescing window used when none is configured.
const DefaultTick = 50 * time.Millisecond

// ErrClosed is returned when notifying or running a closed observer.
var ErrClosed = errors.New("observer: closed")

// PassHandler receives the results of every flush that ran at least one pass.
type PassHandler func(ctx context.Context, results []engine.PassResult)

// Option customises the Observer.
type Option func(*Observer)

// WithTick sets the coalescing window. A non-positive tick flushes as soon as
// the notification queue is drained.
func WithTick(tick time.Duration) Option {
	return func(o *Observer) {
		o.tick = tick
	}
}

// WithBuffer sets the notification queue size.
func WithBuffer(size int) Option {
	return func(o *Observer) {
		if size > 0 {
			o.buffer = size
		}
	}
}

// WithPassHandler registers a callback for flush results.
func WithPassHandler(fn PassHandler) Option {
	return func(o *Observer) {
		o.onPass = fn
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Observer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

type notification func(*engine.Engine)

// Observer serialises notifications onto the goroutine running Run.
type Observer struct {
	engine *engine.Engine
	tick   time.Duration
	buffer int
	onPass PassHandler
	logger *zap.Logger

	events    chan notification
	done      chan struct{}
	closeOnce sync.Once
}

// New constructs an Observer for e. The observer takes ownership of e; the
// engine must not be used directly once Run has started.
func New(e *engine.Engine, options ...Option) *Observer {
	o := &Observer{
		engine: e,
		tick:   DefaultTick,
		buffer: 256,
		logger: zap.NewNop(),
		done:   make(chan struct{}),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(o)
	}
	o.events = make(chan notification, o.buffer)
	return o
}

// FieldChanged notifies a value change on ref.
func (o *Observer) FieldChanged(ref field.Ref) error {
	return o.send(func(e *engine.Engine) { e.OnFieldChanged(ref) })
}

// FieldBlurred notifies that ref lost focus.
func (o *Observer) FieldBlurred(ref field.Ref) error {
	return o.send(func(e *engine.Engine) { e.OnFieldBlur(ref) })
}

// StructuralChange notifies that fields were added to or removed from scope.
func (o *Observer) StructuralChange(scope field.ScopeID) error {
	return o.send(func(e *engine.Engine) { e.OnStructuralChange(scope) })
}

// Attach registers scope with the engine.
func (o *Observer) Attach(scope field.ScopeID) error {
	return o.send(func(e *engine.Engine) { e.Attach(scope) })
}

// Detach removes scope from the engine.
func (o *Observer) Detach(scope field.ScopeID) error {
	return o.send(func(e *engine.Engine) { e.Detach(scope) })
}

// Do runs fn on the owner goroutine and waits for it to finish. Use it to
// read engine state while Run is active.
func (o *Observer) Do(ctx context.Context, fn func(*engine.Engine)) error {
	finished := make(chan struct{})
	err := o.send(func(e *engine.Engine) {
		defer close(finished)
		fn(e)
	})
	if err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-o.done:
		return ErrClosed
	}
}

// Close stops Run and rejects further notifications.
func (o *Observer) Close() {
	o.closeOnce.Do(func() {
		close(o.done)
	})
}

func (o *Observer) send(n notification) error {
	select {
	case <-o.done:
		return ErrClosed
	default:
	}
	select {
	case o.events <- n:
		return nil
	case <-o.done:
		return ErrClosed
	}
}

// Run applies notifications and flushes pending scopes until ctx is done or
// the observer is closed. It returns ctx.Err() on cancellation and nil on
// Close.
func (o *Observer) Run(ctx context.Context) error {
	var (
		timer *time.Timer
		tick  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	schedule := func() {
		if tick != nil || !o.engine.Pending() {
			return
		}
		if o.tick <= 0 {
			return
		}
		timer = time.NewTimer(o.tick)
		tick = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.done:
			return nil
		case n := <-o.events:
			n(o.engine)
			if o.tick <= 0 {
				o.drain()
				o.flush(ctx)
				continue
			}
			schedule()
		case <-tick:
			tick = nil
			o.flush(ctx)
		}
	}
}

func (o *Observer) drain() {
	for {
		select {
		case n := <-o.events:
			n(o.engine)
		default:
			return
		}
	}
}

func (o *Observer) flush(ctx context.Context) {
	results := o.engine.Flush(ctx)
	if len(results) == 0 {
		return
	}
	for _, res := range results {
		if res.Err != nil {
			o.logger.Warn("pass completed with errors", zap.String("scope", string(res.Scope)), zap.Error(res.Err))
		}
	}
	if o.onPass != nil {
		o.onPass(ctx, results)
	}
}
