// Package sysstats samples host load for the status endpoint.
package sysstats

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Snapshot is a point-in-time view of host and process load.
type Snapshot struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	Goroutines    int     `json:"goroutines"`
}

// Take samples CPU and memory usage. A failed probe leaves its field at zero
// and the first error is returned alongside the partial snapshot.
func Take(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Goroutines: runtime.NumGoroutine()}

	var firstErr error
	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		firstErr = err
	} else {
		snap.MemoryPercent = vm.UsedPercent
	}

	// interval 0 compares against the previous call instead of blocking
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		if firstErr == nil {
			firstErr = err
		}
	} else if len(pct) > 0 {
		snap.CPUPercent = pct[0]
	}
	return snap, firstErr
}
