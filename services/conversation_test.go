package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/runtime"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// recordingConn is an in-memory connection keeping every event it was sent.
type recordingConn struct {
	id       string
	mu       sync.Mutex
	received []domain.Event
}

func newRecordingConn(id string) *recordingConn {
	return &recordingConn{id: id}
}

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) Send(_ context.Context, e domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, e)
	return nil
}

// Drain returns and forgets the received events.
func (c *recordingConn) Drain() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	events := c.received
	c.received = nil
	return events
}

type relay struct {
	registry *runtime.Registry
	store    *mocks.MockChatStore
	service  *ChatService
	log      *slog.Logger
}

func newRelay(t *testing.T) *relay {
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := runtime.NewRegistry()
	store := mocks.NewMockChatStore(ctrl)
	broadcaster := runtime.NewBroadcaster(log, registry, nil)
	chat := domain.NewChat("a", "b")
	store.EXPECT().GetChat(gomock.Any(), chat.ID).Return(chat, true, nil).AnyTimes()
	store.EXPECT().GetChat(gomock.Any(), gomock.Not(chat.ID)).Return(domain.Chat{}, false, nil).AnyTimes()
	return &relay{
		registry: registry,
		store:    store,
		service:  NewChatService(log, store, registry, broadcaster, nil, true),
		log:      log,
	}
}

func (r *relay) connect(id string) (*Conversation, *recordingConn) {
	conn := newRecordingConn(id)
	return NewConversation(r.log, r.service, conn), conn
}

func frame(t *testing.T, name domain.EventName, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	bytes, err := json.Marshal(domain.Envelope{Name: name, Data: raw})
	require.NoError(t, err)
	return bytes
}

func failureOf(t *testing.T, events []domain.Event) domain.Failure {
	t.Helper()
	require.Len(t, events, 1)
	require.Equal(t, domain.EventError, events[0].Name)
	failure, ok := events[0].Data.(domain.Failure)
	require.True(t, ok)
	return failure
}

func TestConversation_Join_Announces_Presence(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	r := newRelay(t)
	convA, connA := r.connect("conn-a")
	convB, connB := r.connect("conn-b")

	// Given B already joined
	convB.HandleFrame(ctx, frame(t, domain.EventJoin, domain.JoinCommand{UserID: "b", ChatID: "a_b"}))
	req.Equal([]domain.Event{domain.NewJoinedEvent("a_b", "b")}, connB.Drain())

	// When A joins
	convA.HandleFrame(ctx, frame(t, domain.EventJoin, domain.JoinCommand{UserID: "a", ChatID: "a_b"}))

	// Then A is confirmed, B sees A online and the registry knows A
	req.Equal([]domain.Event{domain.NewJoinedEvent("a_b", "a")}, connA.Drain())
	req.Equal([]domain.Event{domain.NewOnlineEvent("a")}, connB.Drain())
	req.Equal(StateJoined, convA.State())
	session, ok := r.registry.Lookup(connA)
	req.True(ok)
	req.Equal("a", session.UserID)
	req.Equal("a_b", session.ChatID)
}

func TestConversation_Join_Rejects_Non_Participant(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	r := newRelay(t)
	convC, connC := r.connect("conn-c")
	convB, connB := r.connect("conn-b")
	convB.HandleFrame(ctx, frame(t, domain.EventJoin, domain.JoinCommand{UserID: "b", ChatID: "a_b"}))
	connB.Drain()

	// When a stranger joins the chat of a and b
	convC.HandleFrame(ctx, frame(t, domain.EventJoin, domain.JoinCommand{UserID: "c", ChatID: "a_b"}))

	// Then only the stranger is told, and nothing is registered
	req.Equal(string(errors.KindAuthorization), failureOf(t, connC.Drain()).Kind)
	req.Empty(connB.Drain())
	req.Equal(StateUnjoined, convC.State())
	_, ok := r.registry.Lookup(connC)
	req.False(ok)
}

func TestConversation_Join_Unknown_Chat(t *testing.T) {
	req := require.New(t)
	r := newRelay(t)
	conv, conn := r.connect("conn-a")

	conv.HandleFrame(context.Background(), frame(t, domain.EventJoin, domain.JoinCommand{UserID: "a", ChatID: "a_z"}))

	req.Equal(string(errors.KindNotFound), failureOf(t, conn.Drain()).Kind)
}

func TestConversation_Message_Is_Echoed_To_The_Room(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	r := newRelay(t)
	convA, connA := r.connect("conn-a")
	convB, connB := r.connect("conn-b")
	convC, connC := r.connect("conn-c")
	convA.HandleFrame(ctx, frame(t, domain.EventJoin, domain.JoinCommand{UserID: "a", ChatID: "a_b"}))
	convB.HandleFrame(ctx, frame(t, domain.EventJoin, domain.JoinCommand{UserID: "b", ChatID: "a_b"}))
	convC.HandleFrame(ctx, frame(t, domain.EventJoin, domain.JoinCommand{UserID: "c", ChatID: "c_d"}))
	connA.Drain()
	connB.Drain()
	connC.Drain()

	var summary string
	r.store.EXPECT().AppendMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, m domain.Message) (domain.Message, error) {
			m.ID = uuid.New()
			m.Timestamp = time.Now().UTC()
			return m, nil
		})
	r.store.EXPECT().UpdateChatSummary(gomock.Any(), "a_b", gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, lastMessage string, _ time.Time) error {
			summary = lastMessage
			return nil
		})

	// When A sends a message
	convA.HandleFrame(ctx, frame(t, domain.EventSendMessage, map[string]any{"message": "hi"}))

	// Then both A and B receive it with a server id, and the summary follows
	eventsA, eventsB := connA.Drain(), connB.Drain()
	req.Len(eventsA, 1)
	req.Equal(eventsA, eventsB)
	req.Equal(domain.EventNewMessage, eventsA[0].Name)
	message := eventsA[0].Data.(domain.Message)
	req.Equal("a", message.SenderID)
	req.Equal("hi", message.Content)
	req.NotEqual(uuid.Nil, message.ID)
	req.Equal("hi", summary)

	// And an outsider hears nothing
	req.Empty(connC.Drain())
}

func TestConversation_Blank_Message_Is_Rejected(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	r := newRelay(t)
	convA, connA := r.connect("conn-a")
	convB, connB := r.connect("conn-b")
	convA.HandleFrame(ctx, frame(t, domain.EventJoin, domain.JoinCommand{UserID: "a", ChatID: "a_b"}))
	convB.HandleFrame(ctx, frame(t, domain.EventJoin, domain.JoinCommand{UserID: "b", ChatID: "a_b"}))
	connA.Drain()
	connB.Drain()
	r.store.EXPECT().AppendMessage(gomock.Any(), gomock.Any()).Times(0)

	convA.HandleFrame(ctx, frame(t, domain.EventSendMessage, map[string]any{"message": "   "}))

	req.Equal(string(errors.KindValidation), failureOf(t, connA.Drain()).Kind)
	req.Empty(connB.Drain())
}

func TestConversation_Message_Before_Join(t *testing.T) {
	req := require.New(t)
	r := newRelay(t)
	conv, conn := r.connect("conn-a")
	r.store.EXPECT().AppendMessage(gomock.Any(), gomock.Any()).Times(0)

	conv.HandleFrame(context.Background(), frame(t, domain.EventSendMessage, map[string]any{"message": "hi"}))

	req.Equal(string(errors.KindNotConnected), failureOf(t, conn.Drain()).Kind)
}

func TestConversation_Typing_Excludes_Sender(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	r := newRelay(t)
	convA, connA := r.connect("conn-a")
	convB, connB := r.connect("conn-b")
	convA.HandleFrame(ctx, frame(t, domain.EventJoin, domain.JoinCommand{UserID: "a", ChatID: "a_b"}))
	convB.HandleFrame(ctx, frame(t, domain.EventJoin, domain.JoinCommand{UserID: "b", ChatID: "a_b"}))
	connA.Drain()
	connB.Drain()

	convA.HandleFrame(ctx, frame(t, domain.EventTyping, map[string]any{"isTyping": true}))

	req.Empty(connA.Drain())
	req.Equal([]domain.Event{domain.NewTypingEvent("a", true)}, connB.Drain())
}

func TestConversation_Typing_Before_Join_Is_Dropped(t *testing.T) {
	req := require.New(t)
	r := newRelay(t)
	conv, conn := r.connect("conn-a")

	conv.HandleFrame(context.Background(), frame(t, domain.EventTyping, map[string]any{"isTyping": true}))

	req.Empty(conn.Drain())
}

func TestConversation_Close_Announces_Offline_Once(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	r := newRelay(t)
	convA, connA := r.connect("conn-a")
	convB, connB := r.connect("conn-b")
	convA.HandleFrame(ctx, frame(t, domain.EventJoin, domain.JoinCommand{UserID: "a", ChatID: "a_b"}))
	convB.HandleFrame(ctx, frame(t, domain.EventJoin, domain.JoinCommand{UserID: "b", ChatID: "a_b"}))
	connB.Drain()

	// When A's connection closes from several places at once
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			convA.Close(ctx)
		}()
	}
	wg.Wait()

	// Then B is told exactly once and A is gone from the registry
	req.Equal([]domain.Event{domain.NewOfflineEvent("a")}, connB.Drain())
	_, ok := r.registry.Lookup(connA)
	req.False(ok)
	req.Equal(StateClosed, convA.State())

	// And late frames are ignored
	convA.HandleFrame(ctx, frame(t, domain.EventJoin, domain.JoinCommand{UserID: "a", ChatID: "a_b"}))
	req.Empty(connB.Drain())
}

func TestConversation_Close_Before_Join_Is_Silent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	r := newRelay(t)
	convA, _ := r.connect("conn-a")
	convB, connB := r.connect("conn-b")
	convB.HandleFrame(ctx, frame(t, domain.EventJoin, domain.JoinCommand{UserID: "b", ChatID: "a_b"}))
	connB.Drain()

	convA.Close(ctx)

	req.Empty(connB.Drain())
}

func TestConversation_Last_Join_Wins(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	r := newRelay(t)
	oldConv, oldConn := r.connect("conn-old")
	newConv, newConn := r.connect("conn-new")
	convB, connB := r.connect("conn-b")
	convB.HandleFrame(ctx, frame(t, domain.EventJoin, domain.JoinCommand{UserID: "b", ChatID: "a_b"}))
	oldConv.HandleFrame(ctx, frame(t, domain.EventJoin, domain.JoinCommand{UserID: "a", ChatID: "a_b"}))

	// When A joins again from a new connection and the old one closes later
	newConv.HandleFrame(ctx, frame(t, domain.EventJoin, domain.JoinCommand{UserID: "a", ChatID: "a_b"}))
	connB.Drain()
	oldConv.Close(ctx)

	// Then A stays online through the new connection
	req.Empty(connB.Drain())
	_, ok := r.registry.Lookup(oldConn)
	req.False(ok)
	session, ok := r.registry.Lookup(newConn)
	req.True(ok)
	req.Equal("a", session.UserID)
}

func TestConversation_Replaced_Connection_Falls_Back_To_Unjoined(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	r := newRelay(t)
	oldConv, oldConn := r.connect("conn-old")
	newConv, _ := r.connect("conn-new")
	oldConv.HandleFrame(ctx, frame(t, domain.EventJoin, domain.JoinCommand{UserID: "a", ChatID: "a_b"}))
	req.Equal(StateJoined, oldConv.State())

	// Given A joined again from another connection
	newConv.HandleFrame(ctx, frame(t, domain.EventJoin, domain.JoinCommand{UserID: "a", ChatID: "a_b"}))
	oldConn.Drain()

	// When the replaced connection sends a message
	oldConv.HandleFrame(ctx, frame(t, domain.EventSendMessage, domain.SendMessageCommand{Message: "hi"}))

	// Then it is told it is not connected and is no longer joined
	failure := failureOf(t, oldConn.Drain())
	req.Equal(string(errors.KindNotConnected), failure.Kind)
	req.Equal(StateUnjoined, oldConv.State())
	req.Equal(StateJoined, newConv.State())

	// And it can join again
	oldConv.HandleFrame(ctx, frame(t, domain.EventJoin, domain.JoinCommand{UserID: "a", ChatID: "a_b"}))
	req.Equal(StateJoined, oldConv.State())
}

func TestConversation_Malformed_Frames(t *testing.T) {
	r := newRelay(t)
	ctx := context.Background()

	for name, raw := range map[string][]byte{
		"not json":        []byte("{oops"),
		"unknown event":   []byte(`{"event":"leave","data":{}}`),
		"wrong data type": []byte(`{"event":"join","data":"a"}`),
		"missing data":    []byte(`{"event":"join"}`),
		"bad timestamp":   []byte(`{"event":"sendMessage","data":{"message":"hi","timestamp":"yesterday"}}`),
	} {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			conv, conn := r.connect(fmt.Sprintf("conn-%s", name))

			conv.HandleFrame(ctx, raw)

			req.Equal(string(errors.KindValidation), failureOf(t, conn.Drain()).Kind)
		})
	}
}

var _ contract.Connection = (*recordingConn)(nil)
