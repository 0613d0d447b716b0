package app

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultTickInterval = 50 * time.Millisecond
	taskQueueSize       = 128
)

// ErrLoopStopped is returned when work is handed to a loop that has exited.
var ErrLoopStopped = errors.New("loop stopped")

// RecurringTask runs once per tick until it reports done.
type RecurringTask func(ctx context.Context) (done bool, err error)

// Loop is the goroutine that owns the repository and its cache. Other
// goroutines reach it through Submit, Call and Offload.
type Loop struct {
	interval time.Duration
	logf     func(string, ...any)
	tasks    chan func(context.Context)
	stopped  chan struct{}

	// Only touched on the loop goroutine.
	recurring []namedTask
	offloads  errgroup.Group
}

type namedTask struct {
	name string
	run  RecurringTask
}

// NewLoop returns a loop ticking every interval.
func NewLoop(interval time.Duration, logf func(string, ...any)) *Loop {
	if interval <= 0 {
		interval = defaultTickInterval
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Loop{
		interval: interval,
		logf:     logf,
		tasks:    make(chan func(context.Context), taskQueueSize),
		stopped:  make(chan struct{}),
	}
}

// Submit queues fn to run on the loop goroutine. It may be called before Run.
func (l *Loop) Submit(fn func(context.Context)) error {
	if fn == nil {
		return nil
	}
	select {
	case <-l.stopped:
		return ErrLoopStopped
	default:
	}
	select {
	case l.tasks <- fn:
		return nil
	case <-l.stopped:
		return ErrLoopStopped
	}
}

// Call runs fn on the loop goroutine and waits for its result.
func (l *Loop) Call(ctx context.Context, fn func(context.Context) error) error {
	result := make(chan error, 1)
	if err := l.Submit(func(loopCtx context.Context) {
		result <- fn(loopCtx)
	}); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		select {
		case err := <-result:
			return err
		default:
			return ErrLoopStopped
		}
	}
}

// Schedule registers task to run on every tick until it reports done.
func (l *Loop) Schedule(name string, task RecurringTask) error {
	return l.Submit(func(context.Context) {
		l.recurring = append(l.recurring, namedTask{name: name, run: task})
	})
}

// Offload runs work on a background goroutine and hands the apply function
// it returns back to the loop goroutine. Work must not touch loop-owned
// state; apply may. Must be called from the loop goroutine.
func (l *Loop) Offload(ctx context.Context, name string, work func(context.Context) (func(context.Context), error)) {
	l.offloads.Go(func() error {
		apply, err := work(ctx)
		if err != nil {
			l.logf("loop: %s: %v", name, err)
			return nil
		}
		if apply == nil {
			return nil
		}
		if err := l.Submit(apply); err != nil {
			l.logf("loop: %s: dropping result: %v", name, err)
		}
		return nil
	})
}

// Run drives ticks and queued work until ctx is done, then waits for
// offloaded work to finish.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	defer func() {
		close(l.stopped)
		_ = l.offloads.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-l.tasks:
			fn(ctx)
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	remaining := l.recurring[:0]
	for _, task := range l.recurring {
		done, err := task.run(ctx)
		if err != nil {
			l.logf("loop: %s: %v", task.name, err)
		}
		if !done {
			remaining = append(remaining, task)
		}
	}
	clear(l.recurring[len(remaining):])
	l.recurring = remaining
}
