package e2e

import (
	"chat-relay/client"
	"chat-relay/domain"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type testChatSuite struct {
	BaseRelaySuite
}

func TestChatSuite(t *testing.T) {
	suite.Run(t, &testChatSuite{})
}

func (s *testChatSuite) TestTwoPartyConversation() {
	// Fresh users so the suite can run against a long-lived relay
	alice, bob := "alice-"+uuid.NewString()[:8], "bob-"+uuid.NewString()[:8]
	var chatID string

	s.Run("Step 1: Create the chat from both sides", func() {
		first, err := client.CreateChat(context.Background(), s.BaseURL(), alice, bob)
		s.Require().NoError(err)
		second, err := client.CreateChat(context.Background(), s.BaseURL(), bob, alice)
		s.Require().NoError(err)
		s.Require().Equal(first.ID, second.ID)
		chatID = first.ID
	})

	s.Run("Step 2: Exchange a message and presence", func() {
		s.WithClient("bob joins", func(ctx context.Context, b *client.Client) {
			s.Require().NoError(b.Join(ctx, bob, chatID))
			s.Expect(b, domain.EventJoined, nil)

			s.WithClient("alice joins and talks", func(ctx context.Context, a *client.Client) {
				s.Require().NoError(a.Join(ctx, alice, chatID))
				s.Expect(a, domain.EventJoined, nil)
				var online domain.Presence
				s.Expect(b, domain.EventUserOnline, &online)
				s.Require().Equal(alice, online.UserID)

				s.Require().NoError(a.SendMessage(ctx, "hello bob", nil))
				var received domain.Message
				s.Expect(b, domain.EventNewMessage, &received)
				s.Require().Equal(alice, received.SenderID)
				s.Require().Equal("hello bob", received.Content)
				s.Expect(a, domain.EventNewMessage, nil)
			})

			var offline domain.Presence
			s.Expect(b, domain.EventUserOffline, &offline)
			s.Require().Equal(alice, offline.UserID)
		})
	})
}
