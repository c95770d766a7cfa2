package router

import (
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
)

// Stats counts router outcomes since start.
type Stats struct {
	startedAt time.Time
	now       func() time.Time

	received  atomic.Int64
	rejected  atomic.Int64
	responded atomic.Int64
	failed    atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats plus process metrics.
type StatsSnapshot struct {
	StartedAt     time.Time `json:"started_at"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Received      int64     `json:"received"`
	Rejected      int64     `json:"rejected"`
	Responded     int64     `json:"responded"`
	Failed        int64     `json:"failed"`
	Goroutines    int       `json:"goroutines"`
	HeapAllocMB   float64   `json:"heap_alloc_mb"`
	SysMB         float64   `json:"sys_mb"`
}

func NewStats(now func() time.Time) *Stats {
	if now == nil {
		now = time.Now
	}
	return &Stats{startedAt: now(), now: now}
}

func (s *Stats) Snapshot() StatsSnapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return StatsSnapshot{
		StartedAt:     s.startedAt.UTC(),
		UptimeSeconds: int64(s.uptime().Seconds()),
		Received:      s.received.Load(),
		Rejected:      s.rejected.Load(),
		Responded:     s.responded.Load(),
		Failed:        s.failed.Load(),
		Goroutines:    runtime.NumGoroutine(),
		HeapAllocMB:   float64(mem.HeapAlloc) / (1 << 20),
		SysMB:         float64(mem.Sys) / (1 << 20),
	}
}

// HealthReport is the reply to the ping short-circuit and the system_health tool.
func (s *Stats) HealthReport() string {
	snap := s.Snapshot()

	var b strings.Builder
	b.WriteString("🏓 pong\n")
	fmt.Fprintf(&b, "uptime: %s\n", s.uptime().Round(time.Second))
	fmt.Fprintf(&b, "goroutines: %d\n", snap.Goroutines)
	fmt.Fprintf(&b, "memory: %.1f MiB heap, %.1f MiB sys\n", snap.HeapAllocMB, snap.SysMB)
	fmt.Fprintf(&b, "messages: %d received, %d rejected, %d responded, %d failed",
		snap.Received, snap.Rejected, snap.Responded, snap.Failed)
	return b.String()
}

func (s *Stats) uptime() time.Duration {
	d := s.now().Sub(s.startedAt)
	if d < 0 {
		return 0
	}
	return d
}
