package sysstats

import (
	"context"
	"testing"
)

func TestTake(t *testing.T) {
	t.Parallel()

	snap, err := Take(context.Background())
	if err != nil {
		t.Skipf("host probes unavailable: %v", err)
	}
	if snap.Goroutines <= 0 {
		t.Errorf("expected goroutine count > 0, got %d", snap.Goroutines)
	}
	if snap.MemoryPercent < 0 || snap.MemoryPercent > 100 {
		t.Errorf("memory percent out of range: %v", snap.MemoryPercent)
	}
}
