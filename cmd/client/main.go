package main

import (
	"bufio"
	"chat-relay/client"
	"chat-relay/domain"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress string `envconfig:"RELAY_ADDR" default:"localhost:8080"`
	UserID        string `envconfig:"RELAY_USER_ID" required:"true"`
	PeerID        string `envconfig:"RELAY_PEER_ID" required:"true"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"WARN"`
	Colours       bool   `envconfig:"RELAY_COLOURS" default:"true"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run opens the chat with the peer, joins it and relays stdin lines as messages.
// A line "/typing" toggles the typing indicator.
func run() (int, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	color.Enable = config.Colours
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chat, err := client.CreateChat(ctx, "http://"+config.ServerAddress, config.UserID, config.PeerID)
	if err != nil {
		return exitRuntime, err
	}
	c, err := client.Dial(ctx, log, "ws://"+config.ServerAddress+"/ws")
	if err != nil {
		return exitRuntime, err
	}
	defer func() { _ = c.Close() }()

	if err := c.Join(ctx, config.UserID, chat.ID); err != nil {
		return exitRuntime, err
	}
	color.Cyan.Printf(">>> Connected to %s as %s, chat %s (Ctrl+C to quit)\n", config.ServerAddress, config.UserID, chat.ID)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	typing := false
	for {
		select {
		case <-ctx.Done():
			return exitOK, nil
		case envelope, ok := <-c.Events():
			if !ok {
				return exitRuntime, fmt.Errorf("connection closed by server")
			}
			render(config.UserID, envelope)
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
				continue
			case line == "/typing":
				typing = !typing
				err = c.Typing(ctx, typing)
			default:
				typing = false
				err = c.SendMessage(ctx, line, nil)
			}
			if err != nil {
				return exitRuntime, err
			}
		}
	}
}

func render(self string, envelope domain.Envelope) {
	switch envelope.Name {
	case domain.EventNewMessage:
		var m domain.Message
		if json.Unmarshal(envelope.Data, &m) != nil {
			return
		}
		style := color.Green
		if m.SenderID == self {
			style = color.Gray
		}
		style.Printf("[%s] %s: %s\n", m.Timestamp.Local().Format(time.TimeOnly), m.SenderID, m.Content)
	case domain.EventUserTyping:
		var t domain.UserTyping
		if json.Unmarshal(envelope.Data, &t) == nil && t.IsTyping {
			color.Gray.Printf("%s is typing...\n", t.UserID)
		}
	case domain.EventUserOnline, domain.EventUserOffline:
		var p domain.Presence
		if json.Unmarshal(envelope.Data, &p) == nil {
			color.Yellow.Printf("%s is %s\n", p.UserID, strings.TrimPrefix(string(envelope.Name), "user"))
		}
	case domain.EventError:
		var f domain.Failure
		if json.Unmarshal(envelope.Data, &f) == nil {
			color.Red.Printf("%s: %s\n", f.Kind, f.Message)
		}
	case domain.EventJoined:
		color.Cyan.Println("joined")
	}
}
