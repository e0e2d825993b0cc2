package observability

import (
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Stats is the relay health report served on the health probe.
type Stats struct {
	Status            string  `json:"status"`
	Uptime            string  `json:"uptime"`
	Connections       int     `json:"connections"`
	Sessions          int     `json:"sessions"`
	ConnectionsOpened uint64  `json:"connectionsOpened"`
	MessagesPersisted uint64  `json:"messagesPersisted"`
	EventsDelivered   uint64  `json:"eventsDelivered"`
	DeliveryFailures  uint64  `json:"deliveryFailures"`
	RSSBytes          uint64  `json:"rssBytes"`
	CPUPercent        float64 `json:"cpuPercent"`
	AllocMemMb        uint64  `json:"allocMemMb"`
	NumGC             uint32  `json:"numGc"`
}

// Monitor holds the relay counters. A nil *Monitor is valid and records nothing.
type Monitor struct {
	log               *slog.Logger
	startedAt         time.Time
	process           *process.Process
	connectionsOpened uint64
	connectionsClosed uint64
	messagesPersisted uint64
	eventsDelivered   uint64
	deliveryFailures  uint64
}

func NewMonitor(log *slog.Logger) *Monitor {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("process stats unavailable", "error", err)
	}
	return &Monitor{log: log, startedAt: time.Now(), process: p}
}

func (m *Monitor) IncrConnectionsOpened() {
	if m != nil {
		atomic.AddUint64(&m.connectionsOpened, 1)
	}
}

func (m *Monitor) IncrConnectionsClosed() {
	if m != nil {
		atomic.AddUint64(&m.connectionsClosed, 1)
	}
}

func (m *Monitor) IncrMessagesPersisted() {
	if m != nil {
		atomic.AddUint64(&m.messagesPersisted, 1)
	}
}

func (m *Monitor) IncrEventsDelivered() {
	if m != nil {
		atomic.AddUint64(&m.eventsDelivered, 1)
	}
}

func (m *Monitor) IncrDeliveryFailures() {
	if m != nil {
		atomic.AddUint64(&m.deliveryFailures, 1)
	}
}

// Snapshot reads the counters. sessions comes from the session registry,
// which owns that figure.
func (m *Monitor) Snapshot(sessions int) Stats {
	if m == nil {
		return Stats{Status: "ok", Sessions: sessions}
	}
	opened := atomic.LoadUint64(&m.connectionsOpened)
	closed := atomic.LoadUint64(&m.connectionsClosed)
	stats := Stats{
		Status:            "ok",
		Uptime:            time.Since(m.startedAt).Round(time.Second).String(),
		Connections:       int(opened - closed),
		Sessions:          sessions,
		ConnectionsOpened: opened,
		MessagesPersisted: atomic.LoadUint64(&m.messagesPersisted),
		EventsDelivered:   atomic.LoadUint64(&m.eventsDelivered),
		DeliveryFailures:  atomic.LoadUint64(&m.deliveryFailures),
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	stats.AllocMemMb = mem.Alloc / 1024 / 1024
	stats.NumGC = mem.NumGC

	if m.process != nil {
		if info, err := m.process.MemoryInfo(); err == nil {
			stats.RSSBytes = info.RSS
		} else {
			m.log.Debug("failed to read process memory", "error", err)
		}
		if cpu, err := m.process.CPUPercent(); err == nil {
			stats.CPUPercent = cpu
		}
	}
	return stats
}
