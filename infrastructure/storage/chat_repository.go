package storage

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// GetChat returns the chat document, or false when it does not exist.
func (s *Store) GetChat(ctx context.Context, chatID string) (domain.Chat, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Chat{}, false, err
	}
	var chat domain.Chat
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, chatKey(chatID), &chat)
	})
	if err == badger.ErrKeyNotFound {
		return domain.Chat{}, false, nil
	}
	if err != nil {
		return domain.Chat{}, false, fmt.Errorf("get chat %s: %w", chatID, err)
	}
	return chat, true, nil
}

// CreateChatIfAbsent stores the chat of a participant pair unless it already exists.
// The id is derived from the sorted pair, so [a,b] and [b,a] land on the same document.
func (s *Store) CreateChatIfAbsent(ctx context.Context, participants [2]string) (domain.Chat, error) {
	chat := domain.NewChat(participants[0], participants[1])
	err := s.update(ctx, func(txn *badger.Txn) error {
		var existing domain.Chat
		err := getJSON(txn, chatKey(chat.ID), &existing)
		if err == nil {
			chat = existing
			return nil
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		if err := setJSON(txn, chatKey(chat.ID), chat); err != nil {
			return err
		}
		for _, userID := range chat.Participants {
			if err := txn.Set(userChatKey(userID, chat.ID), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Chat{}, fmt.Errorf("create chat %s: %w", chat.ID, err)
	}
	return chat, nil
}

// UpdateChatSummary atomically points the chat at its latest message.
// The summary only moves forward: a message older than the current one is ignored.
func (s *Store) UpdateChatSummary(ctx context.Context, chatID, lastMessage string, lastMessageAt time.Time) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		var chat domain.Chat
		err := getJSON(txn, chatKey(chatID), &chat)
		if err == badger.ErrKeyNotFound {
			return errors.NotFound("chat %s does not exist", chatID)
		}
		if err != nil {
			return err
		}
		if chat.LastMessageAt != nil && lastMessageAt.Before(*chat.LastMessageAt) {
			s.log.Debug("older message leaves summary unchanged", "chat_id", chatID)
			return nil
		}
		return setJSON(txn, chatKey(chatID), chat.WithSummary(lastMessage, lastMessageAt.UTC()))
	})
}

// ListChatsForUser scans the participant index of a user.
// Chats are returned most recently active first; chats without messages come last.
func (s *Store) ListChatsForUser(ctx context.Context, userID string) ([]domain.Chat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chats := make([]domain.Chat, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := userChatPrefix(userID)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			chatID := string(it.Item().Key()[len(prefix):])
			var chat domain.Chat
			err := getJSON(txn, chatKey(chatID), &chat)
			if err == badger.ErrKeyNotFound {
				s.log.Warn("dangling participant index", "user_id", userID, "chat_id", chatID)
				continue
			}
			if err != nil {
				return err
			}
			chats = append(chats, chat)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list chats of %s: %w", userID, err)
	}

	sort.SliceStable(chats, func(i, j int) bool {
		a, b := chats[i].LastMessageAt, chats[j].LastMessageAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	return chats, nil
}
