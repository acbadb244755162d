package stream

import (
	"context"
	"io"
	"sync"
)

// Pipe bridges a pushing producer goroutine to a pull-based Sequence. The
// producer calls Send for each item and Close or Fail when it is finished;
// consumers pull with Next. Termination is idempotent: the first Close or
// Fail wins, and any Send racing or following termination returns false
// rather than panicking, so concurrent producer goroutines can shut the
// pipe down safely.
type Pipe[T any] struct {
	ch   chan T
	done chan struct{}
	once sync.Once
	err  error
}

func NewPipe[T any](buffer int) *Pipe[T] {
	return &Pipe[T]{ch: make(chan T, buffer), done: make(chan struct{})}
}

// Send delivers one item, returning false when the pipe is already
// terminated or the consumer side is gone.
func (p *Pipe[T]) Send(ctx context.Context, item T) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.ch <- item:
		return true
	case <-p.done:
		return false
	case <-ctx.Done():
		p.Fail(ctx.Err())
		return false
	}
}

// Fail terminates the sequence with err after buffered items drain.
func (p *Pipe[T]) Fail(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Close terminates the sequence normally after buffered items drain.
func (p *Pipe[T]) Close() {
	p.once.Do(func() {
		close(p.done)
	})
}

func (p *Pipe[T]) Next(ctx context.Context) (T, error) {
	var zero T
	// Buffered items first, even when the pipe is already terminated.
	select {
	case item := <-p.ch:
		return item, nil
	default:
	}
	select {
	case item := <-p.ch:
		return item, nil
	case <-p.done:
		select {
		case item := <-p.ch:
			return item, nil
		default:
		}
		if p.err != nil {
			return zero, p.err
		}
		return zero, io.EOF
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
