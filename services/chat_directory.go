package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"log/slog"
	"strings"
)

// IChatDirectory serves chat discovery and creation outside of live connections.
type IChatDirectory interface {
	ListChats(ctx context.Context, userID string) ([]domain.Chat, error)
	CreateChat(ctx context.Context, cmd domain.CreateChatCommand) (domain.Chat, error)
	History(ctx context.Context, chatID string, cursor *string) ([]domain.Message, *string, error)
}

type ChatDirectory struct {
	log   *slog.Logger
	store contract.ChatStore
}

func NewChatDirectory(log *slog.Logger, store contract.ChatStore) *ChatDirectory {
	return &ChatDirectory{log: log, store: store}
}

func (d *ChatDirectory) ListChats(ctx context.Context, userID string) ([]domain.Chat, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.Validation("userId is required")
	}
	chats, err := d.store.ListChatsForUser(ctx, userID)
	if err != nil {
		return nil, errors.Store(err, "could not list chats")
	}
	if chats == nil {
		chats = []domain.Chat{}
	}
	return chats, nil
}

// CreateChat opens the chat of two distinct users, or returns it when it already exists.
func (d *ChatDirectory) CreateChat(ctx context.Context, cmd domain.CreateChatCommand) (domain.Chat, error) {
	cmd = cmd.Normalize()
	if err := validateCommand(cmd); err != nil {
		return domain.Chat{}, err
	}
	chat, err := d.store.CreateChatIfAbsent(ctx, domain.NormalizeParticipants(cmd.Participants[0], cmd.Participants[1]))
	if err != nil {
		return domain.Chat{}, errors.Store(err, "could not create chat")
	}
	d.log.Debug("chat ready", "chat_id", chat.ID)
	return chat, nil
}

// History pages through the messages of a chat, newest first.
func (d *ChatDirectory) History(ctx context.Context, chatID string, cursor *string) ([]domain.Message, *string, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, nil, errors.Validation("chatId is required")
	}
	_, found, err := d.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, nil, errors.Store(err, "could not load chat")
	}
	if !found {
		return nil, nil, errors.NotFound("chat %s not found", chatID)
	}
	messages, next, err := d.store.ListMessages(ctx, chatID, cursor)
	if err != nil {
		return nil, nil, errors.Store(err, "could not list messages")
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return messages, next, nil
}
