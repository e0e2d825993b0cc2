package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/observability"
	"context"
	"log/slog"
)

// Broadcaster delivers events to every connection joined to a chat room.
//
// Delivery is best-effort: an unreachable peer is logged and counted, never
// reported back to the caller. Room membership is read from the registry at
// broadcast time, so there is no membership list that could drift.
type Broadcaster struct {
	log      *slog.Logger
	registry contract.IRegistry
	monitor  *observability.Monitor
}

func NewBroadcaster(log *slog.Logger, registry contract.IRegistry, monitor *observability.Monitor) *Broadcaster {
	return &Broadcaster{log: log, registry: registry, monitor: monitor}
}

// Broadcast sends e to all sessions of chatID except exclude. A nil exclude reaches everyone.
func (b *Broadcaster) Broadcast(ctx context.Context, chatID string, e domain.Event, exclude contract.Connection) {
	for _, session := range b.registry.Sessions(chatID) {
		if exclude != nil && session.Conn == exclude {
			continue
		}
		if err := session.Conn.Send(ctx, e); err != nil {
			b.monitor.IncrDeliveryFailures()
			b.log.Warn("failed to deliver event",
				"event", e.Name,
				"chat_id", chatID,
				"user_id", session.UserID,
				"connection_id", session.Conn.ID(),
				"error", err)
			continue
		}
		b.monitor.IncrEventsDelivered()
	}
}
