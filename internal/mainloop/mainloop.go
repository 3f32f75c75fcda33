// Package mainloop provides a single-threaded dispatch loop. Work is posted
// from any goroutine and executed one function at a time on the goroutine
// that called Run, so state touched only from posted functions needs no
// locking.
package mainloop

import (
	"context"
	"sync"
)

const queueSize = 64

type Loop struct {
	queue  chan func()
	done   chan struct{}
	once   sync.Once
	retval int
}

func New() *Loop {
	return &Loop{
		queue: make(chan func(), queueSize),
		done:  make(chan struct{}),
	}
}

// Post schedules fn on the loop. It blocks while the queue is full and
// returns false once the loop has quit; fn is then never run.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Quit stops the loop. Only the first retval is kept.
func (l *Loop) Quit(retval int) {
	l.once.Do(func() {
		l.retval = retval
		close(l.done)
	})
}

// Done is closed when the loop quits.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Run dispatches posted functions until Quit is called or ctx ends.
func (l *Loop) Run(ctx context.Context) (int, error) {
	for {
		select {
		case <-l.done:
			return l.retval, nil
		default:
		}

		select {
		case <-l.done:
			return l.retval, nil
		case <-ctx.Done():
			l.Quit(1)
			return l.retval, ctx.Err()
		case fn := <-l.queue:
			fn()
		}
	}
}
