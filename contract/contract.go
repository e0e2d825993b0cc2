//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"context"
	"reflect"
	"time"
)

// Connection is the core's view of a live transport session.
// Send must never block: a slow or gone peer is a delivery failure, not a stall.
type Connection interface {
	ID() string
	Send(ctx context.Context, e domain.Event) error
}

// Session binds a connection to the user and chat it joined.
type Session struct {
	Conn   Connection
	UserID string
	ChatID string
}

// ChatStore is the durable document store holding chats and messages.
type ChatStore interface {
	GetChat(ctx context.Context, chatID string) (domain.Chat, bool, error)
	CreateChatIfAbsent(ctx context.Context, participants [2]string) (domain.Chat, error)
	AppendMessage(ctx context.Context, message domain.Message) (domain.Message, error)
	UpdateChatSummary(ctx context.Context, chatID, lastMessage string, lastMessageAt time.Time) error
	ListChatsForUser(ctx context.Context, userID string) ([]domain.Chat, error)
	ListMessages(ctx context.Context, chatID string, cursor *string) ([]domain.Message, *string, error)
}

type IRegistry interface {
	Register(conn Connection, userID, chatID string) Connection
	Lookup(conn Connection) (Session, bool)
	Unregister(conn Connection) (Session, bool)
	Sessions(chatID string) []Session
	Count() int
}

type IBroadcaster interface {
	Broadcast(ctx context.Context, chatID string, e domain.Event, exclude Connection)
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker is a background loop run under supervision.
// It returns nil when done for good, an error to be restarted.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName returns the type name of a worker, for logs.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
