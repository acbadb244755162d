package stream

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrAlreadyPublished is returned when Publish is called more than once on
// the same Broadcaster.
var ErrAlreadyPublished = errors.New("broadcaster already published")

// Broadcaster fans one single-pass source out to any number of subscribers.
// Every queue registered before an item is delivered receives that item, in
// production order, exactly once, followed by exactly one end-of-stream
// marker. A subscriber registered mid-publish only sees items produced after
// its registration.
type Broadcaster[T any] struct {
	mu        sync.Mutex
	subs      []*Subscription[T]
	published bool
	done      bool
}

func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{}
}

// Subscribe registers a new unbounded output queue. Subscribing after the
// broadcaster has finished yields an already-terminated subscription.
func (b *Broadcaster[T]) Subscribe() *Subscription[T] {
	sub := newSubscription[T]()
	b.mu.Lock()
	if b.done {
		b.mu.Unlock()
		sub.terminate()
		return sub
	}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub
}

// Publish drains src to completion, copying each item to every registered
// queue. It blocks until the source ends; callers run it in its own
// goroutine. Whatever way the source ends (io.EOF, upstream error, ctx
// cancellation), every subscriber queue is terminated so no reader waits
// forever. The source is drained exactly once.
func (b *Broadcaster[T]) Publish(ctx context.Context, src Sequence[T]) error {
	b.mu.Lock()
	if b.published {
		b.mu.Unlock()
		return ErrAlreadyPublished
	}
	b.published = true
	b.mu.Unlock()

	defer b.terminateAll()

	for {
		item, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		b.mu.Lock()
		targets := make([]*Subscription[T], len(b.subs))
		copy(targets, b.subs)
		b.mu.Unlock()

		for _, sub := range targets {
			sub.push(item)
		}
	}
}

func (b *Broadcaster[T]) terminateAll() {
	b.mu.Lock()
	b.done = true
	targets := make([]*Subscription[T], len(b.subs))
	copy(targets, b.subs)
	b.mu.Unlock()

	for _, sub := range targets {
		sub.terminate()
	}
}

// Subscription is one consumer's private queue against a Broadcaster. The
// queue is unbounded so a slow consumer never stalls the producer or its
// sibling consumers. One consumer per subscription; racing pulls split the
// items between them.
type Subscription[T any] struct {
	mu     sync.Mutex
	items  []T
	done   bool
	signal chan struct{}
}

func newSubscription[T any]() *Subscription[T] {
	return &Subscription[T]{signal: make(chan struct{}, 1)}
}

// Next returns the next queued item. After the broadcaster terminates, any
// buffered items are still drained before io.EOF is reported.
func (s *Subscription[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for {
		s.mu.Lock()
		if len(s.items) > 0 {
			item := s.items[0]
			s.items = s.items[1:]
			s.mu.Unlock()
			return item, nil
		}
		if s.done {
			s.mu.Unlock()
			return zero, io.EOF
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-s.signal:
		}
	}
}

func (s *Subscription[T]) push(item T) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.items = append(s.items, item)
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription[T]) terminate() {
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription[T]) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}
