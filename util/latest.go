// Package util holds small concurrency helpers shared by the platform
// implementations.
package util

import "sync"

// Latest is a single-slot mailbox carrying the most recent value of T from
// any number of writers to one consumer. Writers never block and
// intermediate values are dropped, which is exactly right for display
// frames and link statistics where only the newest state matters.
type Latest[T any] struct {
	mu     sync.Mutex
	value  T
	notify chan struct{}
}

func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{
		notify: make(chan struct{}, 1),
	}
}

// Send replaces the stored value and makes sure a notification is pending.
// It never blocks; if the consumer has not caught up yet the old value is
// simply overwritten.
func (l *Latest[T]) Send(value T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.value = value

	select {
	case l.notify <- struct{}{}:
	default:
		// A notification is already pending, coalesce.
	}
}

// Channel returns the notification channel for use in select statements.
// After a read from it, Value yields a value at least as new as the one
// that triggered the notification.
func (l *Latest[T]) Channel() <-chan struct{} {
	return l.notify
}

// Value returns the most recently sent value.
func (l *Latest[T]) Value() T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value
}

// HasPending reports whether a notification is waiting without consuming
// it.
func (l *Latest[T]) HasPending() bool {
	return len(l.notify) > 0
}
