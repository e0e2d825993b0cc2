package storage

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// AppendMessage persists a message, assigning an id and a server timestamp when absent.
// The key is formatted as "msg:{len}:{chat_id}:{timestamp_padded}:{uuid}" to:
//  1. Keep chronological order with 19-digit zero padding (lexicographical order).
//  2. Never overwrite a message when two arrive at the same nanosecond.
func (s *Store) AppendMessage(ctx context.Context, message domain.Message) (domain.Message, error) {
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	if !domain.StorableTime(message.Timestamp) {
		return domain.Message{}, errors.Validation("timestamp %s is out of range", message.Timestamp.Format(time.RFC3339))
	}
	message.Timestamp = message.Timestamp.UTC()

	key := fmt.Sprintf("%s%019d:%s",
		messagePrefix(message.ChatID),
		message.Timestamp.UnixNano(),
		message.ID,
	)
	err := s.update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, []byte(key), message)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("append message to %s: %w", message.ChatID, err)
	}
	return message, nil
}

// ListMessages returns a page of messages of a chat, newest first, and the cursor
// of the last returned key. Passing that cursor back continues with older messages.
// A nil cursor is returned when the history is exhausted.
func (s *Store) ListMessages(ctx context.Context, chatID string, cursor *string) ([]domain.Message, *string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	var rawMessages [][]byte
	var lastKey string
	exhausted := true
	err := s.db.View(func(txn *badger.Txn) error {
		prefixStr := messagePrefix(chatID)
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Reverse iteration starts from the greatest possible timestamp
			seekKey = append([]byte(prefixStr), []byte("9999999999999999999")...)
		default:
			seekKey = append([]byte(prefixStr), []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()[len(prefix):]) == *cursor {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if len(rawMessages) == s.limitMessages {
				exhausted = false
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefix):])
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			rawMessages = append(rawMessages, value)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("list messages of %s: %w", chatID, err)
	}

	messages := make([]domain.Message, 0, len(rawMessages))
	for _, raw := range rawMessages {
		var message domain.Message
		if err := json.Unmarshal(raw, &message); err != nil {
			return nil, nil, fmt.Errorf("decode message of %s: %w", chatID, err)
		}
		messages = append(messages, message)
	}
	if exhausted {
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}
