package services

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"context"
	stderrors "errors"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newDirectoryUnderTest(t *testing.T) (*ChatDirectory, *mocks.MockChatStore) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockChatStore(ctrl)
	return NewChatDirectory(logs.GetLoggerFromLevel(slog.LevelDebug), store), store
}

func TestChatDirectory_CreateChat(t *testing.T) {
	ctx := context.Background()

	t.Run("should create the chat of a sorted pair", func(t *testing.T) {
		req := require.New(t)
		directory, store := newDirectoryUnderTest(t)
		store.EXPECT().CreateChatIfAbsent(gomock.Any(), [2]string{"a", "b"}).Return(domain.NewChat("a", "b"), nil).Times(2)

		first, err := directory.CreateChat(ctx, domain.CreateChatCommand{Participants: []string{"b", "a"}})
		req.NoError(err)
		second, err := directory.CreateChat(ctx, domain.CreateChatCommand{Participants: []string{"a", " b "}})
		req.NoError(err)

		req.Equal(first.ID, second.ID)
		req.Equal("a_b", first.ID)
	})

	t.Run("should reject anything but two distinct participants", func(t *testing.T) {
		directory, store := newDirectoryUnderTest(t)
		store.EXPECT().CreateChatIfAbsent(gomock.Any(), gomock.Any()).Times(0)

		for _, participants := range [][]string{
			nil,
			{"a"},
			{"a", "b", "c"},
			{"a", "a"},
			{"a", " "},
		} {
			_, err := directory.CreateChat(ctx, domain.CreateChatCommand{Participants: participants})
			require.ErrorIs(t, err, errors.ErrValidation, "participants %v", participants)
		}
	})

	t.Run("should wrap store failures", func(t *testing.T) {
		req := require.New(t)
		directory, store := newDirectoryUnderTest(t)
		store.EXPECT().CreateChatIfAbsent(gomock.Any(), gomock.Any()).Return(domain.Chat{}, stderrors.New("boom"))

		_, err := directory.CreateChat(ctx, domain.CreateChatCommand{Participants: []string{"a", "b"}})

		req.ErrorIs(err, errors.ErrStore)
	})
}

func TestChatDirectory_ListChats(t *testing.T) {
	ctx := context.Background()

	t.Run("should never return a nil list", func(t *testing.T) {
		req := require.New(t)
		directory, store := newDirectoryUnderTest(t)
		store.EXPECT().ListChatsForUser(gomock.Any(), "a").Return(nil, nil)

		chats, err := directory.ListChats(ctx, "a")

		req.NoError(err)
		req.NotNil(chats)
		req.Empty(chats)
	})

	t.Run("should require a user", func(t *testing.T) {
		req := require.New(t)
		directory, _ := newDirectoryUnderTest(t)

		_, err := directory.ListChats(ctx, " ")

		req.ErrorIs(err, errors.ErrValidation)
	})
}

func TestChatDirectory_History(t *testing.T) {
	ctx := context.Background()

	t.Run("should fail on an unknown chat", func(t *testing.T) {
		req := require.New(t)
		directory, store := newDirectoryUnderTest(t)
		store.EXPECT().GetChat(gomock.Any(), "a_b").Return(domain.Chat{}, false, nil)
		store.EXPECT().ListMessages(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, _, err := directory.History(ctx, "a_b", nil)

		req.ErrorIs(err, errors.ErrNotFound)
	})

	t.Run("should forward the cursor", func(t *testing.T) {
		req := require.New(t)
		directory, store := newDirectoryUnderTest(t)
		cursor := lo.ToPtr("1700000000000000000:x")
		store.EXPECT().GetChat(gomock.Any(), "a_b").Return(domain.NewChat("a", "b"), true, nil)
		store.EXPECT().ListMessages(gomock.Any(), "a_b", cursor).Return([]domain.Message{{Content: "hi"}}, nil, nil)

		messages, next, err := directory.History(ctx, "a_b", cursor)

		req.NoError(err)
		req.Len(messages, 1)
		req.Nil(next)
	})
}
