package orchestrator

import (
	"context"
	"testing"

	"github.com/jonboulle/clockwork"
)

func TestRunContextBeforeAndAfterRun(t *testing.T) {
	s := NewScheduler(nil, clockwork.NewFakeClock(), 1)

	// Engines can be watched before Run starts; timers armed in that window
	// must wait on a live context, not a nil one.
	ctx := s.runContext()
	if ctx == nil {
		t.Fatal("runContext returned nil before Run")
	}
	select {
	case <-ctx.Done():
		t.Fatal("context done before Run started")
	default:
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(runCtx)
	}()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := s.runContext(); got != runCtx {
		t.Fatal("runContext must return the context Run was started with")
	}
}
