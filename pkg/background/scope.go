package background

import (
	"context"
	"sync"
)

// Scope - joins a group of goroutines which share one cancelable context.
type Scope struct {
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	wg     sync.WaitGroup
}

// NewScope - concurrency scope builder, the scope context is derived from parent.
func NewScope(parent context.Context) *Scope {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Scope{ctx: ctx, cancel: cancel}
}

// Context - returns scope context, it is done after Cancel.
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Go - runs f in background as a member of the scope.
// Returns false and does not run f when the scope is canceled already.
func (s *Scope) Go(f func(ctx context.Context)) bool {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		f(s.ctx)
	}()
	return true
}

// Cancel - cancels scope context, after that no new members are accepted.
func (s *Scope) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel()
}

// Wait - blocks until all members are done or ctx is expired.
// Call it after Cancel, otherwise new members may join while waiting.
func (s *Scope) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
