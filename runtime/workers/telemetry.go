package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// SessionStats exposes the counters the telemetry loop reports.
// *runtime.Session satisfies it.
type SessionStats interface {
	ActiveRoom() string
	TotalUnread() int
}

// TelemetryWorker periodically logs process health (RSS, CPU, OS status)
// together with session counters. Purely local; nothing is reported over
// the network.
type TelemetryWorker struct {
	log      *slog.Logger
	stats    SessionStats
	interval time.Duration
}

func NewTelemetryWorker(log *slog.Logger, stats SessionStats, interval time.Duration) *TelemetryWorker {
	return &TelemetryWorker{log: log, stats: stats, interval: interval}
}

// Run executes the main loop of the worker, logging health metrics at every
// interval until the context cancels.
func (w *TelemetryWorker) Run(ctx context.Context) error {
	w.log.Info("Starting telemetry worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rss, cpu, status, err := getSelfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}

			w.log.Info("Session health",
				"pid", os.Getpid(),
				"pid_status", status,
				"cpu_percent", cpu,
				"ram_bytes", rss,
				"active_room", w.stats.ActiveRoom(),
				"total_unread", w.stats.TotalUnread(),
			)
		}
	}
}

// getSelfStats retrieves memory, CPU and OS status for the given process.
func getSelfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}

	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
