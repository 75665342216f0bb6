package safego

import (
	"testing"
	"time"
)

func waitOrFail(t *testing.T, done <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error(msg)
	}
}

func TestGo_RunsFunction(t *testing.T) {
	done := make(chan struct{})

	Go("test-run", func() {
		close(done)
	})

	waitOrFail(t, done, "goroutine never ran")
}

func TestGo_RecoversPanic(t *testing.T) {
	done := make(chan struct{})

	// Must not crash the test process.
	Go("test-panic", func() {
		defer close(done)
		panic("intentional panic in test")
	})

	waitOrFail(t, done, "goroutine did not finish after panicking")
}
