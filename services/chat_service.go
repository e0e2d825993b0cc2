package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	"log/slog"
)

// IChatService is the protocol of a live connection: every method acts on
// behalf of conn and returns the failure to report back to it.
type IChatService interface {
	Join(ctx context.Context, conn contract.Connection, cmd domain.JoinCommand) error
	SendMessage(ctx context.Context, conn contract.Connection, cmd domain.SendMessageCommand) error
	Typing(ctx context.Context, conn contract.Connection, cmd domain.TypingCommand) error
	Disconnect(ctx context.Context, conn contract.Connection)
}

type ChatService struct {
	log                  *slog.Logger
	store                contract.ChatStore
	registry             contract.IRegistry
	broadcaster          contract.IBroadcaster
	monitor              *observability.Monitor
	trustClientTimestamp bool
}

func NewChatService(
	log *slog.Logger,
	store contract.ChatStore,
	registry contract.IRegistry,
	broadcaster contract.IBroadcaster,
	monitor *observability.Monitor,
	trustClientTimestamp bool,
) *ChatService {
	return &ChatService{
		log:                  log,
		store:                store,
		registry:             registry,
		broadcaster:          broadcaster,
		monitor:              monitor,
		trustClientTimestamp: trustClientTimestamp,
	}
}

// Join binds conn to a participant of an existing chat, announces the user to
// the room and confirms to the joiner.
// Joining again, even another chat, replaces the previous session.
func (s *ChatService) Join(ctx context.Context, conn contract.Connection, cmd domain.JoinCommand) error {
	cmd = cmd.Normalize()
	if err := validateCommand(cmd); err != nil {
		return err
	}

	chat, found, err := s.store.GetChat(ctx, cmd.ChatID)
	if err != nil {
		return errors.Store(err, "could not load chat")
	}
	if !found {
		return errors.NotFound("chat %s not found", cmd.ChatID)
	}
	if !chat.HasParticipant(cmd.UserID) {
		return errors.Authorization("user %s is not a participant of chat %s", cmd.UserID, cmd.ChatID)
	}

	if evicted := s.registry.Register(conn, cmd.UserID, cmd.ChatID); evicted != nil {
		s.log.Info("previous connection replaced by a newer join",
			"user_id", cmd.UserID,
			"chat_id", cmd.ChatID,
			"evicted_connection_id", evicted.ID(),
			"connection_id", conn.ID())
	}
	s.broadcaster.Broadcast(ctx, cmd.ChatID, domain.NewOnlineEvent(cmd.UserID), conn)

	if err := conn.Send(ctx, domain.NewJoinedEvent(cmd.ChatID, cmd.UserID)); err != nil {
		s.log.Warn("failed to confirm join", "user_id", cmd.UserID, "connection_id", conn.ID(), "error", err)
	}
	s.log.Debug("user joined", "user_id", cmd.UserID, "chat_id", cmd.ChatID, "connection_id", conn.ID())
	return nil
}

// SendMessage persists a message of the joined user and echoes it to the
// whole room, sender included.
func (s *ChatService) SendMessage(ctx context.Context, conn contract.Connection, cmd domain.SendMessageCommand) error {
	session, ok := s.registry.Lookup(conn)
	if !ok {
		return errors.NotConnected("join a chat before sending messages")
	}
	cmd = cmd.Normalize()
	if err := validateCommand(cmd); err != nil {
		return err
	}

	message := domain.Message{
		ChatID:   session.ChatID,
		SenderID: session.UserID,
		Content:  cmd.Message,
	}
	if s.trustClientTimestamp && cmd.Timestamp != nil {
		if domain.StorableTime(*cmd.Timestamp) {
			message.Timestamp = *cmd.Timestamp
		} else {
			s.log.Debug("client timestamp out of range, using server time",
				"user_id", session.UserID,
				"timestamp", *cmd.Timestamp)
		}
	}
	saved, err := s.store.AppendMessage(ctx, message)
	if err != nil {
		return errors.Store(err, "could not save message")
	}
	s.monitor.IncrMessagesPersisted()

	// The message is durable at this point, a stale summary must not hide it
	if err := s.store.UpdateChatSummary(ctx, saved.ChatID, saved.Content, saved.Timestamp); err != nil {
		s.log.Error("failed to update chat summary",
			"chat_id", saved.ChatID,
			"message_id", saved.ID,
			"error", err)
	}

	s.broadcaster.Broadcast(ctx, saved.ChatID, domain.NewMessageEvent(saved), nil)
	return nil
}

// Typing relays the typing indicator to the other participant.
// Without a session the signal is dropped.
func (s *ChatService) Typing(ctx context.Context, conn contract.Connection, cmd domain.TypingCommand) error {
	session, ok := s.registry.Lookup(conn)
	if !ok {
		return nil
	}
	if err := validateCommand(cmd); err != nil {
		return err
	}
	s.broadcaster.Broadcast(ctx, session.ChatID, domain.NewTypingEvent(session.UserID, *cmd.IsTyping), conn)
	return nil
}

// Disconnect forgets the session of conn and tells the rest of the room.
func (s *ChatService) Disconnect(ctx context.Context, conn contract.Connection) {
	session, ok := s.registry.Unregister(conn)
	if !ok {
		return
	}
	s.broadcaster.Broadcast(ctx, session.ChatID, domain.NewOfflineEvent(session.UserID), nil)
	s.log.Debug("user left", "user_id", session.UserID, "chat_id", session.ChatID, "connection_id", conn.ID())
}
