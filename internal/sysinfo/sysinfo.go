// Package sysinfo collects the process/OS identity fields a DEBUG reply
// includes (spec.md section 4.7, SPEC_FULL section C.4): not wire
// fields every node needs for reconciliation, just diagnostic context
// for whoever issued the DEBUG request.
package sysinfo

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Snapshot is the DEBUG reply's process/OS section.
type Snapshot struct {
	PID           int32
	UptimeSeconds float64
	NumGoroutines int
	CPUPercent    float64
	RSSBytes      uint64
	GoVersion     string
	NumCPU        int
}

var startedAt = time.Now()

// Collect gathers a Snapshot. gopsutil errors (permissions, an OS that
// doesn't expose /proc) degrade to zero values rather than failing the
// whole DEBUG reply.
func Collect() Snapshot {
	snap := Snapshot{
		PID:           int32(os.Getpid()),
		UptimeSeconds: time.Since(startedAt).Seconds(),
		NumGoroutines: runtime.NumGoroutine(),
		GoVersion:     runtime.Version(),
		NumCPU:        runtime.NumCPU(),
	}

	proc, err := process.NewProcess(snap.PID)
	if err != nil {
		return snap
	}
	if cpuPct, err := proc.CPUPercent(); err == nil {
		snap.CPUPercent = cpuPct
	}
	if memInfo, err := proc.MemoryInfo(); err == nil && memInfo != nil {
		snap.RSSBytes = memInfo.RSS
	}
	return snap
}
