// Package inflight tracks the single live fetch and cancels it when a newer
// one starts.
package inflight

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Token owns one in-flight operation. Its context is cancelled when the
// operation is superseded or aborted.
type Token struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
}

// ID returns the token identifier, used for log correlation.
func (t *Token) ID() string {
	return t.id
}

// Context returns the context the operation must run under.
func (t *Token) Context() context.Context {
	return t.ctx
}

// Aborted reports whether the operation's cancellation signal has fired,
// either because it was superseded or because the parent context ended.
func (t *Token) Aborted() bool {
	return t.ctx.Err() != nil
}

// Canceller tracks the single live operation. Issuing a new token cancels
// the previous one, so at most one token is live at a time.
type Canceller struct {
	mu   sync.Mutex
	live *Token
}

// Begin cancels the live token, if any, and issues a new one derived from parent.
func (c *Canceller) Begin(parent context.Context) *Token {
	ctx, cancel := context.WithCancel(parent)
	tok := &Token{id: uuid.NewString(), ctx: ctx, cancel: cancel}

	c.mu.Lock()
	prev := c.live
	c.live = tok
	c.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}
	return tok
}

// Abort cancels the live token without issuing a new one.
// Returns false when nothing was in flight.
func (c *Canceller) Abort() bool {
	c.mu.Lock()
	prev := c.live
	c.live = nil
	c.mu.Unlock()

	if prev == nil {
		return false
	}
	prev.cancel()
	return true
}

// IsLive reports whether tok is the current token and has not been aborted.
func (c *Canceller) IsLive(tok *Token) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return tok != nil && c.live == tok && !tok.Aborted()
}

// Finish releases tok. It returns true only when tok was still live, in which
// case the caller owns the right to publish the operation's result.
func (c *Canceller) Finish(tok *Token) bool {
	c.mu.Lock()
	live := tok != nil && c.live == tok && !tok.Aborted()
	if tok != nil && c.live == tok {
		c.live = nil
	}
	c.mu.Unlock()

	if tok != nil {
		tok.cancel()
	}
	return live
}

// Live returns the current token, or nil.
func (c *Canceller) Live() *Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}
