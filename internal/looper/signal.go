package looper

import "context"

// Signal is the process-wide stop flag shared by every loop.
//
// Set is idempotent and safe for concurrent use; IsSet never blocks.
// A Signal derived from a parent context is also set when the parent is done.
type Signal struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func NewSignal(parent context.Context) *Signal {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Signal{ctx: ctx, cancel: cancel}
}

func (s *Signal) Set() { s.cancel() }

func (s *Signal) IsSet() bool { return s.ctx.Err() != nil }

func (s *Signal) Done() <-chan struct{} { return s.ctx.Done() }

// Context is done once the signal is set.
func (s *Signal) Context() context.Context { return s.ctx }
