package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/storybot/weaver/internal/events"
	"github.com/storybot/weaver/internal/story"
)

// handleTimeout bounds how long one inbound message may be processed,
// including the backend call behind a menu refresh.
const handleTimeout = 5 * time.Minute

// StoryEngine is the story command surface. The real implementation is
// *story.Engine.
type StoryEngine interface {
	StartStory(ctx context.Context, channelID, opener string) error
	Choose(ctx context.Context, channelID string, number int) error
	CurrentStory(ctx context.Context, channelID string) error
	SubmitUserTurn(ctx context.Context, channelID, author, text string) error
	AwaitingUserTurn(channelID string) bool
}

// JobScheduler controls the per-channel background jobs. The real
// implementation is *attention.Scheduler.
type JobScheduler interface {
	StartPraise(channelID string) bool
	StopPraise(channelID string) bool
	StartIdle(channelID string) bool
	StopIdle(channelID string) bool
}

// MessageSource delivers inbound messages. The real implementation is
// *Gateway.
type MessageSource interface {
	Messages() <-chan *Message
	BotUser() User
}

// Sender delivers outbound messages. The real implementation is *Rest.
type Sender interface {
	Send(ctx context.Context, channelID, text string) error
}

// BridgeConfig holds the dependencies for a Bridge.
type BridgeConfig struct {
	Source MessageSource
	Engine StoryEngine
	Jobs   JobScheduler
	Sender Sender
	Store  *story.Store
	Logger *slog.Logger
	Bus    *events.Bus
	Prefix string
}

// Bridge routes inbound Discord messages to the story engine and the
// attention scheduler. Messages are handled on their own goroutines so
// a slow backend call in one channel never delays another channel.
type Bridge struct {
	source MessageSource
	engine StoryEngine
	jobs   JobScheduler
	sender Sender
	store  *story.Store
	logger *slog.Logger
	bus    *events.Bus
	prefix string
}

// NewBridge creates a message bridge.
func NewBridge(cfg BridgeConfig) *Bridge {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "!"
	}
	return &Bridge{
		source: cfg.Source,
		engine: cfg.Engine,
		jobs:   cfg.Jobs,
		sender: cfg.Sender,
		store:  cfg.Store,
		logger: logger.With("component", "bridge"),
		bus:    cfg.Bus,
		prefix: prefix,
	}
}

// Start consumes inbound messages until ctx is cancelled or the source
// channel closes.
func (b *Bridge) Start(ctx context.Context) {
	b.logger.Info("bridge started", "prefix", b.prefix)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("bridge shutting down")
			return
		case msg, ok := <-b.source.Messages():
			if !ok {
				b.logger.Info("message channel closed, bridge stopping")
				return
			}
			if b.skip(msg) {
				continue
			}
			go b.handleMessage(ctx, msg)
		}
	}
}

// skip filters out messages the bridge must never act on: its own
// output, other bots, and empty chatter. Blank content still passes
// through during a user turn so the engine can ask again.
func (b *Bridge) skip(msg *Message) bool {
	if msg.Author.Bot {
		return true
	}
	if me := b.source.BotUser(); me.ID != "" && msg.Author.ID == me.ID {
		return true
	}
	if strings.TrimSpace(msg.Content) == "" {
		return !b.engine.AwaitingUserTurn(msg.ChannelID)
	}
	return false
}

func (b *Bridge) handleMessage(ctx context.Context, msg *Message) {
	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	requestID := uuid.NewString()
	logger := b.logger.With("request_id", requestID, "channel_id", msg.ChannelID)

	// Any human activity counts for the idle watcher, commands or not.
	b.store.Touch(msg.ChannelID)

	b.publish(events.KindMessageReceived, map[string]any{
		"request_id":  requestID,
		"channel_id":  msg.ChannelID,
		"message_len": len(msg.Content),
	})

	cmd, ok := parseCommand(b.prefix, msg.Content)
	if !ok {
		// Plain chatter only matters when the story is waiting for a
		// written continuation.
		if !b.engine.AwaitingUserTurn(msg.ChannelID) {
			return
		}
		err := b.engine.SubmitUserTurn(ctx, msg.ChannelID, msg.Author.Username, msg.Content)
		if err != nil && !errors.Is(err, story.ErrNotYourTurn) {
			logger.Error("user turn failed", "error", err)
		}
		return
	}

	logger.Info("command received", "command", cmd.Name)
	b.publish(events.KindCommandDispatched, map[string]any{
		"request_id": requestID,
		"channel_id": msg.ChannelID,
		"command":    cmd.Name,
	})

	if err := b.dispatch(ctx, msg, cmd); err != nil {
		if isRejection(err) {
			logger.Debug("command rejected", "command", cmd.Name, "error", err)
			return
		}
		logger.Error("command failed", "command", cmd.Name, "error", err)
	}
}

func (b *Bridge) dispatch(ctx context.Context, msg *Message, cmd command) error {
	channelID := msg.ChannelID

	switch cmd.Name {
	case "startstory":
		return b.engine.StartStory(ctx, channelID, cmd.Args)

	case "choose":
		arg, _, _ := strings.Cut(cmd.Args, " ")
		number, err := strconv.Atoi(arg)
		if err != nil {
			return b.sender.Send(ctx, channelID,
				fmt.Sprintf("Please pick by number! For example: `%schoose 1`", b.prefix))
		}
		return b.engine.Choose(ctx, channelID, number)

	case "currentstory", "story":
		return b.engine.CurrentStory(ctx, channelID)

	case "praise":
		return b.togglePraise(ctx, channelID, cmd.Args)

	case "idle":
		return b.toggleIdle(ctx, channelID, cmd.Args)

	case "help":
		return b.sender.Send(ctx, channelID, b.helpText())

	default:
		// Unknown prefixed commands may belong to another bot sharing
		// the prefix. Stay quiet.
		return nil
	}
}

func (b *Bridge) togglePraise(ctx context.Context, channelID, args string) error {
	switch strings.ToLower(args) {
	case "on":
		if b.jobs.StartPraise(channelID) {
			return b.sender.Send(ctx, channelID,
				"I'll be dropping by with compliments from time to time! 💖")
		}
		return b.sender.Send(ctx, channelID, "I'm already cheering this channel on!")
	case "off":
		if b.jobs.StopPraise(channelID) {
			return b.sender.Send(ctx, channelID, "Okay, I'll keep my compliments to myself. 🤐")
		}
		return b.sender.Send(ctx, channelID, "I wasn't praising this channel anyway!")
	default:
		return b.sender.Send(ctx, channelID,
			fmt.Sprintf("Usage: `%spraise on` or `%spraise off`", b.prefix, b.prefix))
	}
}

func (b *Bridge) toggleIdle(ctx context.Context, channelID, args string) error {
	switch strings.ToLower(args) {
	case "on":
		if b.jobs.StartIdle(channelID) {
			return b.sender.Send(ctx, channelID,
				"I'll keep an eye on this channel and nudge you if it gets too quiet. 👀")
		}
		return b.sender.Send(ctx, channelID, "I'm already watching this channel!")
	case "off":
		if b.jobs.StopIdle(channelID) {
			return b.sender.Send(ctx, channelID, "Alright, no more nudges from me.")
		}
		return b.sender.Send(ctx, channelID, "I wasn't watching this channel anyway!")
	default:
		return b.sender.Send(ctx, channelID,
			fmt.Sprintf("Usage: `%sidle on` or `%sidle off`", b.prefix, b.prefix))
	}
}

func (b *Bridge) helpText() string {
	p := b.prefix
	return fmt.Sprintf("**The Story Weaver** 📖\n"+
		"`%sstartstory <initial sentence>` - begin a new story\n"+
		"`%schoose <number>` - pick the next continuation\n"+
		"`%scurrentstory` - show the story so far\n"+
		"`%spraise on|off` - periodic compliments for this channel\n"+
		"`%sidle on|off` - nudges when the channel goes quiet\n"+
		"Every few rounds I'll hand the pen to YOU. Just type the next sentence when I ask!",
		p, p, p, p, p)
}

// isRejection reports whether an error is a handled user mistake that
// already produced a chat reply.
func isRejection(err error) bool {
	return errors.Is(err, story.ErrNoActiveStory) ||
		errors.Is(err, story.ErrNoChoices) ||
		errors.Is(err, story.ErrInvalidChoice) ||
		errors.Is(err, story.ErrNotYourTurn)
}

func (b *Bridge) publish(kind string, data map[string]any) {
	b.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceDiscord,
		Kind:      kind,
		Data:      data,
	})
}
