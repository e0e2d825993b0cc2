package e2e

import (
	"chat-relay/client"
	"chat-relay/domain"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

type BaseRelaySuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseRelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.RelayAddr == "" {
		s.T().Skip("RELAY_ADDR not set, no relay to test against")
	}
}

func (s *BaseRelaySuite) header(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

func (s *BaseRelaySuite) BaseURL() string {
	return "http://" + s.Config.RelayAddr
}

// WithClient opens a relay connection for the duration of a contextual test step.
func (s *BaseRelaySuite) WithClient(name string, fn func(ctx context.Context, c *client.Client)) {
	s.header(name)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := client.Dial(ctx, logs.GetLoggerFromLevel(slog.LevelWarn), "ws://"+s.Config.RelayAddr+"/ws")
	s.Require().NoError(err, "Failed to connect to relay at "+s.Config.RelayAddr)
	defer func() { _ = c.Close() }()
	fn(ctx, c)
}

// Expect waits for the next event, which must be name, and decodes it into v.
func (s *BaseRelaySuite) Expect(c *client.Client, name domain.EventName, v any) {
	select {
	case envelope, ok := <-c.Events():
		s.Require().True(ok, "connection closed while waiting for %s", name)
		if s.Config.DebugJSON {
			s.T().Logf("EVENT %s %s", envelope.Name, string(envelope.Data))
		}
		s.Require().Equal(name, envelope.Name, "payload %s", string(envelope.Data))
		if v != nil {
			s.Require().NoError(json.Unmarshal(envelope.Data, v))
		}
	case <-time.After(5 * time.Second):
		s.FailNow(fmt.Sprintf("no %s event received", name))
	}
}
