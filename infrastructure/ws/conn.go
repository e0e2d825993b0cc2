// Package ws carries the chat protocol over WebSocket connections.
package ws

import (
	"chat-relay/domain"
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var (
	ErrOutboxFull = stderrors.New("connection outbox is full")
	ErrConnClosed = stderrors.New("connection is closed")
)

// Conn is one live WebSocket client. Outbound events are queued in a bounded
// outbox drained by a single writer, so Send never waits on the network.
type Conn struct {
	id           string
	ws           *websocket.Conn
	log          *slog.Logger
	outbox       chan domain.Event
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
}

func newConn(ws *websocket.Conn, log *slog.Logger, bufferSize int, writeTimeout time.Duration) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:           id,
		ws:           ws,
		log:          log.With("connection_id", id),
		outbox:       make(chan domain.Event, bufferSize),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
}

func (c *Conn) ID() string {
	return c.id
}

// Send queues e for delivery. A full outbox or a closed connection fails immediately.
func (c *Conn) Send(ctx context.Context, e domain.Event) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.outbox <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrOutboxFull
	}
}

// writeLoop drains the outbox until the connection closes or a write fails.
func (c *Conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-c.done:
			return nil
		case <-ctx.Done():
			return nil
		case e := <-c.outbox:
			writeCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
			err := wsjson.Write(writeCtx, c.ws, e)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

// pingLoop keeps the connection alive through proxies and detects dead peers.
func (c *Conn) pingLoop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
			err := c.ws.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func (c *Conn) close(status websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.ws.Close(status, reason); err != nil {
			c.log.Debug("close handshake incomplete", "error", err)
		}
	})
}
