package workers

import (
	"bytes"
	"chat-relay/observability"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// syncBuffer is a log sink safe for the reporter goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStatsReporter_Logs_Periodically(t *testing.T) {
	req := require.New(t)
	var out syncBuffer
	log := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	monitor := observability.NewMonitor(log)
	monitor.IncrMessagesPersisted()
	reporter := NewStatsReporter(log, monitor, func() int { return 2 }, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reporter.Run(ctx) }()

	req.Eventually(func() bool {
		s := out.String()
		return bytes.Contains([]byte(s), []byte("sessions=2")) && bytes.Contains([]byte(s), []byte("messages_persisted=1"))
	}, time.Second, 10*time.Millisecond)

	// Then it stops without error with its context
	cancel()
	req.NoError(<-done)
}
