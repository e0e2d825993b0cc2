package domain

import (
	"strings"
	"time"
)

// JoinCommand binds a connection to a user inside a chat room.
type JoinCommand struct {
	UserID string `json:"userId" validate:"required"`
	ChatID string `json:"chatId" validate:"required"`
}

func (c JoinCommand) Normalize() JoinCommand {
	return JoinCommand{UserID: strings.TrimSpace(c.UserID), ChatID: strings.TrimSpace(c.ChatID)}
}

// SendMessageCommand carries a message typed by the connected user.
// Timestamp is optional; whether it is honored is a server policy.
type SendMessageCommand struct {
	Message   string     `json:"message" validate:"required"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

func (c SendMessageCommand) Normalize() SendMessageCommand {
	c.Message = strings.TrimSpace(c.Message)
	return c
}

type TypingCommand struct {
	IsTyping *bool `json:"isTyping" validate:"required"`
}

// CreateChatCommand is the gateway request opening a chat between two users.
type CreateChatCommand struct {
	Participants []string `json:"participants" validate:"len=2,unique,dive,required"`
}

func (c CreateChatCommand) Normalize() CreateChatCommand {
	participants := make([]string, len(c.Participants))
	for i, p := range c.Participants {
		participants[i] = strings.TrimSpace(p)
	}
	return CreateChatCommand{Participants: participants}
}
