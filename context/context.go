// Package context is a set of shorter names for the very stuttery context
// library.
package context

import (
	"context"
	"time"
)

type (
	// T is a context.Context.
	T = context.Context
	// F is a context.CancelFunc.
	F = context.CancelFunc
)

var (
	// Bg is a context.Background.
	Bg = context.Background
	// Cancel is a context.WithCancel.
	Cancel = context.WithCancel
	// Timeout is a context.WithTimeout.
	Timeout = context.WithTimeout
	// Canceled is the error returned by a context after it is canceled.
	Canceled = context.Canceled
	// DeadlineExceeded is the error returned by a context after its deadline
	// passes.
	DeadlineExceeded = context.DeadlineExceeded
)

// Deadline derives a context that is done either when the parent is, or after
// d elapses. A zero or negative duration returns a cancellable child without a
// deadline.
func Deadline(c T, d time.Duration) (T, F) {
	if d <= 0 {
		return context.WithCancel(c)
	}
	return context.WithTimeout(c, d)
}
