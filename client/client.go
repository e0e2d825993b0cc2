// Package client is a Go client of the chat relay: the WebSocket protocol
// and the chat creation call of the gateway.
package client

import (
	"bytes"
	"chat-relay/domain"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Client is one relay connection. Inbound events are delivered on Events
// until the connection ends, then the channel is closed.
type Client struct {
	log    *slog.Logger
	conn   *websocket.Conn
	events chan domain.Envelope
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// Dial opens a WebSocket connection to the relay, e.g. ws://localhost:8080/ws.
func Dial(ctx context.Context, log *slog.Logger, url string) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	c := &Client{log: log, conn: conn, events: make(chan domain.Envelope, 64), done: make(chan struct{})}
	c.wg.Add(1)
	go c.receive()
	return c, nil
}

func (c *Client) Events() <-chan domain.Envelope {
	return c.events
}

func (c *Client) Join(ctx context.Context, userID, chatID string) error {
	return c.send(ctx, domain.EventJoin, domain.JoinCommand{UserID: userID, ChatID: chatID})
}

// SendMessage posts a message to the joined chat. A nil at lets the server stamp it.
func (c *Client) SendMessage(ctx context.Context, message string, at *time.Time) error {
	return c.send(ctx, domain.EventSendMessage, domain.SendMessageCommand{Message: message, Timestamp: at})
}

func (c *Client) Typing(ctx context.Context, isTyping bool) error {
	return c.send(ctx, domain.EventTyping, domain.TypingCommand{IsTyping: &isTyping})
}

// Close leaves the relay and waits for the receive loop to stop.
// Events not yet read are dropped.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.conn.Close(websocket.StatusNormalClosure, "")
		c.wg.Wait()
	})
	return err
}

func (c *Client) send(ctx context.Context, name domain.EventName, data any) error {
	if err := wsjson.Write(ctx, c.conn, domain.Event{Name: name, Data: data}); err != nil {
		return fmt.Errorf("failed to send %s: %w", name, err)
	}
	return nil
}

func (c *Client) receive() {
	defer c.wg.Done()
	defer close(c.events)
	for {
		var envelope domain.Envelope
		if err := wsjson.Read(context.Background(), c.conn, &envelope); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				c.log.Debug("receive loop ended", "error", err)
			}
			return
		}
		select {
		case c.events <- envelope:
		case <-c.done:
			return
		}
	}
}

// CreateChat asks the gateway for the chat of two users, e.g. baseURL http://localhost:8080.
func CreateChat(ctx context.Context, baseURL, a, b string) (domain.Chat, error) {
	body, err := json.Marshal(domain.CreateChatCommand{Participants: []string{a, b}})
	if err != nil {
		return domain.Chat{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/api/chats", bytes.NewReader(body))
	if err != nil {
		return domain.Chat{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return domain.Chat{}, fmt.Errorf("create chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var failure domain.Failure
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		return domain.Chat{}, fmt.Errorf("create chat rejected (%d): %s: %s", resp.StatusCode, failure.Kind, failure.Message)
	}
	var created struct {
		ChatID       string    `json:"chatId"`
		Participants [2]string `json:"participants"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return domain.Chat{}, fmt.Errorf("invalid create chat response: %w", err)
	}
	return domain.Chat{ID: created.ChatID, Participants: created.Participants}, nil
}
