package stream

import (
	"context"
	"io"
)

// Sequence is a pull-based, single-pass lazy sequence of items. Next blocks
// until an item is available, the sequence ends (io.EOF), or ctx is done.
// Any non-EOF error is terminal; the sequence must not be pulled again.
type Sequence[T any] interface {
	Next(ctx context.Context) (T, error)
}

type sliceSequence[T any] struct {
	items []T
	pos   int
}

// FromSlice returns a Sequence that yields the given items in order.
func FromSlice[T any](items ...T) Sequence[T] {
	return &sliceSequence[T]{items: items}
}

func (s *sliceSequence[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if s.pos >= len(s.items) {
		return zero, io.EOF
	}
	item := s.items[s.pos]
	s.pos++
	return item, nil
}

type errSequence[T any] struct {
	err error
}

// Fail returns a Sequence whose first Next reports err. Publishing it through
// a Broadcaster terminates every subscriber queue, which keeps the "producers
// always push the end marker" contract even when an upstream call could not
// be started at all.
func Fail[T any](err error) Sequence[T] {
	return errSequence[T]{err: err}
}

func (s errSequence[T]) Next(context.Context) (T, error) {
	var zero T
	return zero, s.err
}
