// Package domain contains core concepts of the chat relay.
// This file defines Message records.
// Messages are immutable once saved: the relay never edits nor deletes them.
package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Message represents a saved chat message.
type Message struct {
	ID        uuid.UUID `json:"id"`
	ChatID    string    `json:"chatId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Message keys order by the nanosecond Unix time, which only covers 1970 to 2262.
var (
	minMessageTime = time.Unix(0, 0)
	maxMessageTime = time.Unix(0, math.MaxInt64)
)

// StorableTime reports whether t can be the timestamp of a saved message.
func StorableTime(t time.Time) bool {
	return !t.Before(minMessageTime) && !t.After(maxMessageTime)
}
