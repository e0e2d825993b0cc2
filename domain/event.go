package domain

import "encoding/json"

// EventName is the wire name of a transport event. Names are fixed for client compatibility.
type EventName string

const (
	EventJoin        EventName = "join"
	EventSendMessage EventName = "sendMessage"
	EventTyping      EventName = "typing"

	EventJoined      EventName = "joined"
	EventNewMessage  EventName = "newMessage"
	EventUserTyping  EventName = "userTyping"
	EventUserOnline  EventName = "userOnline"
	EventUserOffline EventName = "userOffline"
	EventError       EventName = "error"
)

// Envelope is an inbound frame whose payload is decoded once the event name is known.
type Envelope struct {
	Name EventName       `json:"event"`
	Data json.RawMessage `json:"data"`
}

// Event is an outbound frame.
type Event struct {
	Name EventName `json:"event"`
	Data any       `json:"data"`
}

type Joined struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

type UserTyping struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type Presence struct {
	UserID string `json:"userId"`
}

type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func NewJoinedEvent(chatID, userID string) Event {
	return Event{Name: EventJoined, Data: Joined{ChatID: chatID, UserID: userID}}
}

func NewMessageEvent(message Message) Event {
	return Event{Name: EventNewMessage, Data: message}
}

func NewTypingEvent(userID string, isTyping bool) Event {
	return Event{Name: EventUserTyping, Data: UserTyping{UserID: userID, IsTyping: isTyping}}
}

func NewOnlineEvent(userID string) Event {
	return Event{Name: EventUserOnline, Data: Presence{UserID: userID}}
}

func NewOfflineEvent(userID string) Event {
	return Event{Name: EventUserOffline, Data: Presence{UserID: userID}}
}

func NewErrorEvent(kind, message string) Event {
	return Event{Name: EventError, Data: Failure{Kind: kind, Message: message}}
}
