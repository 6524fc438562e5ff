package main

import (
	"errors"
	"sync/atomic"
)

// readiness backs /readyz: ready once serving, not ready while shutting down
// or after the invalidation listener has exited.
type readiness struct {
	serving      atomic.Bool
	stopping     atomic.Bool
	listenerDone <-chan struct{}
}

func (r *readiness) check() error {
	if r.stopping.Load() {
		return errors.New("shutting down")
	}
	if !r.serving.Load() {
		return errors.New("starting")
	}
	if r.listenerDone != nil {
		select {
		case <-r.listenerDone:
			return errors.New("invalidation listener stopped")
		default:
		}
	}
	return nil
}
