package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

type ConversationState int

const (
	StateUnjoined ConversationState = iota
	StateJoined
	StateClosed
)

func (s ConversationState) String() string {
	switch s {
	case StateUnjoined:
		return "unjoined"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conversation drives one connection through Unjoined -> Joined -> Closed.
// A joined connection replaced by a newer join of the same user falls back to
// Unjoined as soon as the protocol reports it as not connected.
// Frames must be handled from a single goroutine so that a sender's events keep
// their order; Close may be called from anywhere and runs once.
type Conversation struct {
	log       *slog.Logger
	service   IChatService
	conn      contract.Connection
	mu        sync.Mutex
	state     ConversationState
	closeOnce sync.Once
}

func NewConversation(log *slog.Logger, service IChatService, conn contract.Connection) *Conversation {
	return &Conversation{
		log:     log.With("connection_id", conn.ID()),
		service: service,
		conn:    conn,
		state:   StateUnjoined,
	}
}

func (c *Conversation) State() ConversationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// HandleFrame decodes a raw inbound frame and handles it.
func (c *Conversation) HandleFrame(ctx context.Context, frame []byte) {
	var envelope domain.Envelope
	if err := json.Unmarshal(frame, &envelope); err != nil {
		c.report(ctx, errors.Validation("frame is not a valid event envelope"))
		return
	}
	c.Handle(ctx, envelope)
}

// Handle dispatches one inbound event. Failures go back to this connection only.
func (c *Conversation) Handle(ctx context.Context, envelope domain.Envelope) {
	if c.State() == StateClosed {
		c.log.Debug("event dropped on closed conversation", "event", envelope.Name)
		return
	}

	var err error
	switch envelope.Name {
	case domain.EventJoin:
		var cmd domain.JoinCommand
		if err = decode(envelope, &cmd); err == nil {
			if err = c.service.Join(ctx, c.conn, cmd); err == nil {
				c.transition(StateJoined)
			}
		}
	case domain.EventSendMessage:
		var cmd domain.SendMessageCommand
		if err = decode(envelope, &cmd); err == nil {
			err = c.service.SendMessage(ctx, c.conn, cmd)
		}
	case domain.EventTyping:
		var cmd domain.TypingCommand
		if err = decode(envelope, &cmd); err == nil {
			err = c.service.Typing(ctx, c.conn, cmd)
		}
	default:
		err = errors.Validation("unknown event %q", envelope.Name)
	}

	if err != nil {
		if errors.KindOf(err) == errors.KindNotConnected {
			c.transition(StateUnjoined)
		}
		c.report(ctx, err)
	}
}

// Close runs the disconnect transition exactly once.
func (c *Conversation) Close(ctx context.Context) {
	c.closeOnce.Do(func() {
		c.transition(StateClosed)
		c.service.Disconnect(ctx, c.conn)
	})
}

func (c *Conversation) transition(to ConversationState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.state = to
}

func (c *Conversation) report(ctx context.Context, err error) {
	kind := errors.KindOf(err)
	if kind == errors.KindStore {
		c.log.Error("store failure", "error", err)
	} else {
		c.log.Debug("event rejected", "kind", kind, "error", err)
	}
	if sendErr := c.conn.Send(ctx, domain.NewErrorEvent(string(kind), errors.MessageOf(err))); sendErr != nil {
		c.log.Warn("failed to report error", "kind", kind, "error", sendErr)
	}
}

func decode(envelope domain.Envelope, v any) error {
	if len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, v); err != nil {
		return errors.Validation("malformed %s payload", envelope.Name)
	}
	return nil
}
