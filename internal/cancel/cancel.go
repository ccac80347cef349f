// Package cancel implements cooperative cancellation: a flag observed at
// checkpoints between months/loans/paths, never a goroutine kill.
package cancel

import "sync/atomic"

// Token is a cooperative cancellation flag shared across an entire
// run (MC driver -> workers -> stages).
type Token struct {
	flag atomic.Bool
}

// NewToken returns a fresh, non-cancelled token.
func NewToken() *Token {
	return &Token{}
}

// Cancel sets the cancellation flag. Safe to call concurrently and
// more than once.
func (t *Token) Cancel() {
	if t == nil {
		return
	}
	t.flag.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool {
	if t == nil {
		return false
	}
	return t.flag.Load()
}
