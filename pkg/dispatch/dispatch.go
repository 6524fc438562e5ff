// Package dispatch provides the execution contexts the loader hops between:
// a serial queue standing in for the UI thread and a worker pool for
// background cache writes.
package dispatch

import (
	"github.com/rs/zerolog"
)

// Dispatcher runs tasks asynchronously. Dispatch reports whether the task was
// accepted; it never blocks.
type Dispatcher interface {
	Dispatch(task func()) bool
}

// runTask executes task, logging instead of crashing on a panic.
func runTask(logger zerolog.Logger, task func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Recovered from panic in dispatched task.")
		}
	}()
	task()
}
