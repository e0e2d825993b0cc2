package domain

import (
	"slices"
	"strings"
	"time"
)

// ChatIDSeparator joins the sorted participant pair into a chat id.
const ChatIDSeparator = "_"

// Chat is a two-party conversation. Participants are always stored sorted,
// which makes the id a pure function of the pair.
type Chat struct {
	ID            string     `json:"id"`
	Participants  [2]string  `json:"participants"`
	LastMessage   *string    `json:"lastMessage"`
	LastMessageAt *time.Time `json:"lastMessageAt"`
}

// NormalizeParticipants trims and sorts a participant pair.
func NormalizeParticipants(a, b string) [2]string {
	pair := []string{strings.TrimSpace(a), strings.TrimSpace(b)}
	slices.Sort(pair)
	return [2]string{pair[0], pair[1]}
}

// ChatIDFor derives the chat id from a participant pair, regardless of order.
func ChatIDFor(a, b string) string {
	pair := NormalizeParticipants(a, b)
	return pair[0] + ChatIDSeparator + pair[1]
}

func NewChat(a, b string) Chat {
	return Chat{
		ID:           ChatIDFor(a, b),
		Participants: NormalizeParticipants(a, b),
	}
}

func (c Chat) HasParticipant(userID string) bool {
	return c.Participants[0] == userID || c.Participants[1] == userID
}

// WithSummary returns a copy of the chat pointing at its latest message.
func (c Chat) WithSummary(lastMessage string, at time.Time) Chat {
	c.LastMessage = &lastMessage
	c.LastMessageAt = &at
	return c
}
