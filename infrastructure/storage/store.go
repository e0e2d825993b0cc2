// Package storage implements the durable chat store on top of BadgerDB.
//
// Chats and messages are JSON documents. Keys are laid out so that the two
// queries the relay needs are prefix scans:
//
//	chat:{chat_id}                                   chat document
//	user:{len}:{user_id}:chat:{chat_id}              participant index (empty value)
//	msg:{len}:{chat_id}:{unix_nano_padded}:{uuid}    message document
//
// Ids are free text and may contain ':', so every id followed by more key
// segments is prefixed with its byte length. Without it the prefix of chat
// "a_b" would also match the messages of chat "a_b:1".
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// DefaultLimitMessages bounds a history page when no limit is configured.
const DefaultLimitMessages = 50

// maxConflictRetries bounds optimistic retries of read-modify-write transactions.
const maxConflictRetries = 3

type Store struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages int
}

func NewStore(db *badger.DB, log *slog.Logger, limitMessages *int) *Store {
	limit := DefaultLimitMessages
	if limitMessages != nil && *limitMessages > 0 {
		limit = *limitMessages
	}
	return &Store{db: db, log: log, limitMessages: limit}
}

func chatKey(chatID string) []byte {
	return []byte("chat:" + chatID)
}

// segment encodes an id as "{len}:{id}".
func segment(id string) string {
	return strconv.Itoa(len(id)) + ":" + id
}

// cutSegment decodes a leading "{len}:{id}" and returns the rest of the key.
func cutSegment(key string) (id, rest string, ok bool) {
	size, rest, found := strings.Cut(key, ":")
	if !found {
		return "", "", false
	}
	n, err := strconv.Atoi(size)
	if err != nil || n < 0 || n > len(rest) {
		return "", "", false
	}
	return rest[:n], rest[n:], true
}

func userChatPrefix(userID string) []byte {
	return []byte(fmt.Sprintf("user:%s:chat:", segment(userID)))
}

func userChatKey(userID, chatID string) []byte {
	return append(userChatPrefix(userID), chatID...)
}

func messagePrefix(chatID string) string {
	return fmt.Sprintf("msg:%s:", segment(chatID))
}

// MessagePrefix is the key prefix of the messages of a chat.
func MessagePrefix(chatID string) string {
	return messagePrefix(chatID)
}

// UserChatPrefix is the key prefix of the participant index of a user.
func UserChatPrefix(userID string) string {
	return string(userChatPrefix(userID))
}

// ParseUserChatKey splits a participant index key into its user and chat ids.
func ParseUserChatKey(key string) (userID, chatID string, ok bool) {
	rest, found := strings.CutPrefix(key, "user:")
	if !found {
		return "", "", false
	}
	userID, rest, ok = cutSegment(rest)
	if !ok {
		return "", "", false
	}
	chatID, found = strings.CutPrefix(rest, ":chat:")
	if !found {
		return "", "", false
	}
	return userID, chatID, true
}

// update runs fn in a read-write transaction, retrying when Badger detects
// a conflicting concurrent write.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = s.db.Update(fn)
		if err != badger.ErrConflict {
			return err
		}
		s.log.Debug("transaction conflict, retrying", "attempt", attempt+1)
	}
	return err
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	bytes, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, bytes)
}
