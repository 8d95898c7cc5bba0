package domain

import (
	"context"
	"iter"
)

// Stream is a lazy, restartable sequence of values pushed by a live query.
// Each iteration opens its own subscription and releases it when the loop
// ends, whether by break, context cancellation or a store failure.
type Stream[T any] struct {
	run func(ctx context.Context, yield func(T) bool) error
}

// NewStream creates a Stream from a producer. The producer must return when
// yield returns false or ctx is done.
func NewStream[T any](run func(ctx context.Context, yield func(T) bool) error) *Stream[T] {
	return &Stream[T]{run: run}
}

// All iterates the stream. A store failure ends the iteration with a single
// (zero, err) pair. Cancelling ctx ends it without an error.
func (s *Stream[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stopped := false
		err := s.run(ctx, func(v T) bool {
			if !yield(v, nil) {
				stopped = true
				return false
			}
			return true
		})
		if err != nil && !stopped && ctx.Err() == nil {
			var zero T
			yield(zero, err)
		}
	}
}
