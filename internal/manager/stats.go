package manager

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

const statsReportInterval = 5 * time.Minute

// StatsReporter periodically logs process-wide resource usage: a ticker
// goroutine collecting gopsutil metrics and emitting one structured log
// line.
type StatsReporter struct {
	manager   *Manager
	startTime time.Time
	cancel    context.CancelFunc
	done      chan struct{}
	once      sync.Once
}

// NewStatsReporter builds a reporter bound to m.
func NewStatsReporter(m *Manager) *StatsReporter {
	return &StatsReporter{
		manager:   m,
		startTime: time.Now(),
		done:      make(chan struct{}),
	}
}

// Start launches the periodic reporting goroutine.
func (r *StatsReporter) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(statsReportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.report()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the reporting goroutine and waits for it to exit.
func (r *StatsReporter) Stop() {
	r.once.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
		<-r.done
	})
}

func (r *StatsReporter) report() {
	uptime := time.Since(r.startTime).Seconds()

	attrs := []any{"uptime_seconds", int64(uptime)}

	if usage, err := disk.Usage(r.manager.cfg.DefaultDownloadPath); err == nil {
		attrs = append(attrs, "disk_free_bytes", usage.Free, "disk_used_percent", usage.UsedPercent)
	}
	if v, err := mem.VirtualMemory(); err == nil {
		attrs = append(attrs, "mem_used_percent", v.UsedPercent)
	}

	snap := r.manager.Snapshot()
	attrs = append(attrs, "networks", len(snap.Networks), "transfers_tracked", len(snap.Transfers))

	r.manager.logger.Info("agent stats", attrs...)
}
