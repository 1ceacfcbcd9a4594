package database

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Shared.Get after Close.
var ErrClosed = errors.New("shared connection closed")

// Shared owns one lazily opened connection for the whole process. Get opens it
// on first use and hands back the same value afterwards; Reset drops it so the
// next Get reconnects; Close drops it for good.
type Shared[T any] struct {
	mu      sync.Mutex
	open    func(ctx context.Context) (T, error)
	release func(ctx context.Context, v T) error
	val     T
	ready   bool
	closed  bool
}

func NewShared[T any](open func(ctx context.Context) (T, error), release func(ctx context.Context, v T) error) *Shared[T] {
	return &Shared[T]{open: open, release: release}
}

func (s *Shared[T]) Get(ctx context.Context) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	if s.closed {
		return zero, ErrClosed
	}
	if s.ready {
		return s.val, nil
	}
	v, err := s.open(ctx)
	if err != nil {
		return zero, err
	}
	s.val, s.ready = v, true
	return v, nil
}

// Reset releases the current connection, if any. A later Get opens a new one.
func (s *Shared[T]) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drop(ctx)
}

func (s *Shared[T]) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.drop(ctx)
}

func (s *Shared[T]) drop(ctx context.Context) error {
	if !s.ready {
		return nil
	}
	v := s.val
	var zero T
	s.val, s.ready = zero, false
	if s.release == nil {
		return nil
	}
	return s.release(ctx, v)
}
