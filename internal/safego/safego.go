// Package safego provides a panic-recovering goroutine launcher for background work.
package safego

import "log/slog"

// Go launches fn in a new goroutine under the given name. If fn panics, the
// panic is recovered and logged with the name rather than crashing the
// process. All fire-and-forget goroutines (the session sweeper, the DB stats
// collector) go through this so an unrecovered panic can't silently kill a
// background loop forever.
func Go(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in background goroutine", "goroutine", name, "panic", r)
			}
		}()
		fn()
	}()
}
