package workers

import (
	"chat-relay/observability"
	"context"
	"log/slog"
	"time"
)

// StatsReporter periodically logs the relay health: connections, sessions,
// traffic counters and process resources.
type StatsReporter struct {
	log      *slog.Logger
	monitor  *observability.Monitor
	sessions func() int
	interval time.Duration
}

func NewStatsReporter(log *slog.Logger, monitor *observability.Monitor, sessions func() int, interval time.Duration) *StatsReporter {
	return &StatsReporter{log: log, monitor: monitor, sessions: sessions, interval: interval}
}

func (w *StatsReporter) Run(ctx context.Context) error {
	w.log.Info("Starting stats reporter", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Report()
		}
	}
}

func (w *StatsReporter) Report() {
	stats := w.monitor.Snapshot(w.sessions())
	w.log.Info("relay stats",
		"connections", stats.Connections,
		"sessions", stats.Sessions,
		"messages_persisted", stats.MessagesPersisted,
		"events_delivered", stats.EventsDelivered,
		"delivery_failures", stats.DeliveryFailures,
		"rss_bytes", stats.RSSBytes,
		"cpu_percent", stats.CPUPercent,
		"alloc_mem_mb", stats.AllocMemMb,
		"uptime", stats.Uptime)
}
