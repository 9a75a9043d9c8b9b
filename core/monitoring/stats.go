// Package monitoring collects host and process statistics for the health endpoint.
package monitoring

import (
	"context"
	"errors"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

const (
	// StatsRefreshInterval is the minimum time between stats refreshes
	StatsRefreshInterval = 2 * time.Second
)

// SystemStats is a snapshot of the host the site runs on.
type SystemStats struct {
	Hostname      string       `json:"hostname"`
	Platform      string       `json:"platform"`
	OS            string       `json:"os"`
	KernelVersion string       `json:"kernel_version"`
	CPUCount      int          `json:"cpu_count"`
	CPUPercent    float64      `json:"cpu_percent"`
	MemoryTotal   uint64       `json:"memory_total"`
	MemoryUsed    uint64       `json:"memory_used"`
	MemoryPercent float64      `json:"memory_percent"`
	DiskTotal     uint64       `json:"disk_total"`
	DiskUsed      uint64       `json:"disk_used"`
	DiskFree      uint64       `json:"disk_free"`
	Process       ProcessInfo  `json:"process"`
	Runtime       RuntimeStats `json:"runtime"`
	StartTime     time.Time    `json:"start_time"`
	UptimeSecs    int64        `json:"uptime_secs"`
}

// ProcessInfo describes the server process.
type ProcessInfo struct {
	PID        int32   `json:"pid"`
	CPUPercent float64 `json:"cpu_percent"`
	RSS        uint64  `json:"rss"`
	NumThreads int32   `json:"num_threads"`
}

// RuntimeStats holds Go runtime statistics
type RuntimeStats struct {
	NumGoroutines  int    `json:"num_goroutines"`
	AllocatedBytes uint64 `json:"allocated_bytes"`
	HeapObjects    uint64 `json:"heap_objects"`
	NumGC          uint32 `json:"num_gc"`
}

type statsCollector struct {
	mu            sync.Mutex
	lastCollected time.Time
	cachedStats   *SystemStats
}

var collector = &statsCollector{}

// CollectSystemStats gathers system statistics. Results are cached for
// StatsRefreshInterval. Partial failures are joined into the returned error
// alongside the fields that could be read.
func CollectSystemStats(ctx context.Context, startTime time.Time) (*SystemStats, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	collector.mu.Lock()
	defer collector.mu.Unlock()

	if time.Since(collector.lastCollected) < StatsRefreshInterval && collector.cachedStats != nil {
		cached := *collector.cachedStats
		cached.UptimeSecs = int64(time.Since(startTime).Seconds())
		return &cached, nil
	}

	var multiError []error
	stats := &SystemStats{
		StartTime:  startTime,
		UptimeSecs: int64(time.Since(startTime).Seconds()),
		CPUCount:   runtime.NumCPU(),
		Runtime:    collectRuntimeStats(),
	}

	if hostInfo, err := host.InfoWithContext(ctx); err == nil {
		stats.Hostname = hostInfo.Hostname
		stats.Platform = hostInfo.Platform
		stats.OS = hostInfo.OS
		stats.KernelVersion = hostInfo.KernelVersion
	} else {
		multiError = append(multiError, err)
	}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		stats.CPUPercent = percents[0]
	} else if err != nil {
		multiError = append(multiError, err)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.MemoryTotal = vm.Total
		stats.MemoryUsed = vm.Used
		stats.MemoryPercent = vm.UsedPercent
	} else {
		multiError = append(multiError, err)
	}

	if usage, err := disk.UsageWithContext(ctx, "/"); err == nil {
		stats.DiskTotal = usage.Total
		stats.DiskUsed = usage.Used
		stats.DiskFree = usage.Free
	} else {
		multiError = append(multiError, err)
	}

	procInfo, err := collectProcessInfo(ctx)
	if err != nil {
		multiError = append(multiError, err)
	}
	stats.Process = procInfo

	collector.cachedStats = stats
	collector.lastCollected = time.Now()

	return stats, errors.Join(multiError...)
}

func collectProcessInfo(ctx context.Context) (ProcessInfo, error) {
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return ProcessInfo{}, err
	}

	var multiError []error
	result := ProcessInfo{PID: proc.Pid}

	if cpuPercent, err := proc.CPUPercentWithContext(ctx); err == nil {
		result.CPUPercent = cpuPercent
	} else {
		multiError = append(multiError, err)
	}

	if memInfo, err := proc.MemoryInfoWithContext(ctx); err == nil {
		result.RSS = memInfo.RSS
	} else {
		multiError = append(multiError, err)
	}

	if numThreads, err := proc.NumThreadsWithContext(ctx); err == nil {
		result.NumThreads = numThreads
	} else {
		multiError = append(multiError, err)
	}

	return result, errors.Join(multiError...)
}

func collectRuntimeStats() RuntimeStats {
	var rtStats runtime.MemStats
	runtime.ReadMemStats(&rtStats)

	return RuntimeStats{
		NumGoroutines:  runtime.NumGoroutine(),
		AllocatedBytes: rtStats.Alloc,
		HeapObjects:    rtStats.HeapObjects,
		NumGC:          rtStats.NumGC,
	}
}
