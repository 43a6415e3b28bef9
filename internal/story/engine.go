package story

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/storybot/weaver/internal/events"
	"github.com/storybot/weaver/internal/gemini"
	"github.com/storybot/weaver/internal/prompts"
)

// Backend produces narrative text from a prompt. *gemini.Client
// satisfies it; tests substitute fakes.
type Backend interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Sender delivers chat messages to a channel. The platform bridge
// satisfies it.
type Sender interface {
	Send(ctx context.Context, channelID, text string) error
}

// Engine drives the storytelling state machine. All channel-mutating
// operations serialize per channel: a slow backend call blocks further
// commands in that channel but never any other channel.
type Engine struct {
	logger  *slog.Logger
	store   *Store
	backend Backend
	sender  Sender
	bus     *events.Bus
	prefix  string

	// userTurnEvery is the cadence of free-text rounds. Every Nth
	// accepted continuation hands the pen to the humans.
	userTurnEvery int

	mu       sync.Mutex
	channels map[string]*sync.Mutex
}

// NewEngine wires a story engine. userTurnEvery below 1 disables the
// free-text cadence entirely.
func NewEngine(logger *slog.Logger, store *Store, backend Backend, sender Sender, bus *events.Bus, prefix string, userTurnEvery int) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "!"
	}
	return &Engine{
		logger:        logger.With("component", "story"),
		store:         store,
		backend:       backend,
		sender:        sender,
		bus:           bus,
		prefix:        prefix,
		userTurnEvery: userTurnEvery,
		channels:      make(map[string]*sync.Mutex),
	}
}

// channelLock returns the mutex guarding one channel's command flow.
func (e *Engine) channelLock(channelID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.channels[channelID]
	if !ok {
		l = &sync.Mutex{}
		e.channels[channelID] = l
	}
	return l
}

// StartStory begins a new story with the given opening sentence,
// replacing any story already running in the channel, and immediately
// offers the first continuation menu.
func (e *Engine) StartStory(ctx context.Context, channelID, opener string) error {
	opener = strings.TrimSpace(opener)
	if opener == "" {
		return e.sender.Send(ctx, channelID,
			fmt.Sprintf("Please give me an opening sentence! Usage: `%sstartstory <initial sentence>`", e.prefix))
	}

	l := e.channelLock(channelID)
	l.Lock()
	defer l.Unlock()

	e.store.CreateOrReset(channelID, opener)
	e.logger.Info("story started", "channel", channelID)
	e.publish(events.KindStoryStarted, map[string]any{
		"channel_id":    channelID,
		"narrative_len": len(opener),
	})

	if err := e.sender.Send(ctx, channelID,
		fmt.Sprintf("A new story begins! 📖\n\n**Story so far:** %s", opener)); err != nil {
		return err
	}
	return e.offerChoices(ctx, channelID)
}

// Choose accepts a menu selection, appends the chosen continuation, and
// either invites a user turn or offers the next menu depending on the
// round cadence. Rejections come back as the sentinel errors in this
// package with the explanatory chat message already sent, so callers
// only need to decide how loudly to log them.
func (e *Engine) Choose(ctx context.Context, channelID string, number int) error {
	l := e.channelLock(channelID)
	l.Lock()
	defer l.Unlock()

	st, ok := e.store.Snapshot(channelID)
	if !ok {
		return e.reject(ctx, channelID, ErrNoActiveStory, e.noStoryText())
	}
	if st.UserTurn {
		return e.reject(ctx, channelID, ErrNotYourTurn,
			"It's your turn to write! Just type the next sentence of the story.")
	}
	if len(st.Choices) == 0 {
		return e.reject(ctx, channelID, ErrNoChoices,
			"There are no choices to pick from right now. Hang tight!")
	}
	if number < 1 || number > len(st.Choices) {
		return e.reject(ctx, channelID, ErrInvalidChoice,
			fmt.Sprintf("That's not a valid choice! Pick a number between 1 and %d.", len(st.Choices)))
	}

	chosen := st.Choices[number-1]
	if err := e.store.AppendContinuation(channelID, chosen); err != nil {
		return e.reject(ctx, channelID, ErrNoActiveStory, e.noStoryText())
	}
	e.store.ClearChoices(channelID)
	e.logger.Info("choice selected", "channel", channelID, "choice", number)
	e.publish(events.KindChoiceSelected, map[string]any{
		"channel_id": channelID,
		"choice":     number,
		"round":      st.Round + 1,
	})

	if err := e.sender.Send(ctx, channelID,
		fmt.Sprintf("You chose option %d: \"%s\"", number, chosen)); err != nil {
		return err
	}
	return e.advance(ctx, channelID)
}

// CurrentStory replies with the narrative so far plus any pending menu.
func (e *Engine) CurrentStory(ctx context.Context, channelID string) error {
	st, ok := e.store.Snapshot(channelID)
	if !ok {
		return e.reject(ctx, channelID, ErrNoActiveStory, e.noStoryText())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Story so far:** %s", st.FullText())
	if st.UserTurn {
		b.WriteString("\n\nIt's a reader's turn! Type the next sentence to continue the story.")
	} else if len(st.Choices) > 0 {
		b.WriteString("\n\n")
		b.WriteString(e.menuText(st.Choices))
	}
	return e.sender.Send(ctx, channelID, b.String())
}

// AwaitingUserTurn reports whether the channel's story is waiting for a
// free-text contribution. The bridge checks this before treating a
// plain message as chatter.
func (e *Engine) AwaitingUserTurn(channelID string) bool {
	st, ok := e.store.Snapshot(channelID)
	return ok && st.UserTurn
}

// SubmitUserTurn accepts a free-text continuation during a user turn.
// Outside a user turn it rejects with ErrNotYourTurn and sends nothing,
// leaving the bridge free to ignore ordinary chatter. A blank message
// during the turn leaves the story untouched and asks again.
func (e *Engine) SubmitUserTurn(ctx context.Context, channelID, author, text string) error {
	l := e.channelLock(channelID)
	l.Lock()
	defer l.Unlock()

	st, ok := e.store.Snapshot(channelID)
	if !ok || !st.UserTurn {
		return ErrNotYourTurn
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return e.reject(ctx, channelID, ErrNotYourTurn,
			"The pen is still yours! ✍️ Type a sentence and I'll weave it in.")
	}

	if err := e.store.AppendContinuation(channelID, text); err != nil {
		return ErrNotYourTurn
	}
	e.store.ResetRound(channelID)
	e.store.SetUserTurn(channelID, false)
	e.logger.Info("user turn accepted", "channel", channelID, "author", author)
	e.publish(events.KindUserTurn, map[string]any{
		"channel_id": channelID,
		"completed":  true,
	})

	if err := e.sender.Send(ctx, channelID,
		fmt.Sprintf("A wonderful addition, %s! The story grows. ✨", author)); err != nil {
		return err
	}
	return e.offerChoices(ctx, channelID)
}

// DropStory removes the channel's story, if any, announcing nothing.
// Used when the backend fails and on explicit resets.
func (e *Engine) DropStory(channelID string) {
	e.store.Drop(channelID)
	e.publish(events.KindStoryDropped, map[string]any{
		"channel_id": channelID,
		"reason":     "reset",
	})
}

// advance decides what happens after an accepted continuation: hand the
// pen to the readers on the cadence round, otherwise fetch a new menu.
func (e *Engine) advance(ctx context.Context, channelID string) error {
	st, ok := e.store.Snapshot(channelID)
	if !ok {
		return nil
	}
	if e.userTurnEvery > 0 && st.Round%e.userTurnEvery == 0 {
		if err := e.store.SetUserTurn(channelID, true); err != nil {
			return nil
		}
		e.logger.Debug("user turn opened", "channel", channelID, "round", st.Round)
		return e.sender.Send(ctx, channelID,
			"Now it's YOUR turn! ✍️ Type the next sentence of the story and I'll weave it in.")
	}
	return e.offerChoices(ctx, channelID)
}

// offerChoices asks the backend for three continuations and posts the
// menu. The channel lock is held by the caller for the whole call, so
// a slow backend serializes this channel and no other. A malformed
// reply degrades to fallback menu entries; transport and config errors
// are posted verbatim and end the story.
func (e *Engine) offerChoices(ctx context.Context, channelID string) error {
	st, ok := e.store.Snapshot(channelID)
	if !ok {
		return nil
	}

	if err := e.sender.Send(ctx, channelID,
		"The Story Weaver is thinking of the next possibilities..."); err != nil {
		return err
	}

	raw, err := e.backend.Complete(ctx, prompts.Continuations(st.FullText()))
	if err != nil {
		var malformed *gemini.MalformedResponseError
		if errors.As(err, &malformed) {
			// Unusable reply shape is survivable: the parser fills
			// every slot with fallbacks and the story continues.
			e.logger.Warn("backend reply unusable, falling back", "channel", channelID, "error", err)
			raw = ""
		} else {
			e.logger.Error("backend call failed, dropping story", "channel", channelID, "error", err)
			e.store.Drop(channelID)
			e.publish(events.KindStoryDropped, map[string]any{
				"channel_id": channelID,
				"reason":     "backend_error",
			})
			return e.sender.Send(ctx, channelID, err.Error())
		}
	}

	choices := ParseChoices(raw)
	if n := countFallbacks(choices); n > 0 {
		e.logger.Warn("menu padded with fallbacks", "channel", channelID, "fallbacks", n)
	}
	if err := e.store.SetChoices(channelID, choices); err != nil {
		return nil
	}
	e.publish(events.KindChoicesOffered, map[string]any{
		"channel_id": channelID,
		"fallbacks":  countFallbacks(choices),
	})

	return e.sender.Send(ctx, channelID,
		fmt.Sprintf("**Story so far:** %s\n\n%s", st.FullText(), e.menuText(choices)))
}

// menuText renders the numbered menu with selection instructions.
func (e *Engine) menuText(choices []string) string {
	var b strings.Builder
	b.WriteString("**Choose your next path:**\n")
	for i, c := range choices {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}
	fmt.Fprintf(&b, "\nTo choose, type `%schoose <number>` (e.g., `%schoose 1`).", e.prefix, e.prefix)
	return b.String()
}

// reject sends the explanatory message and returns the sentinel. A
// send failure takes precedence since the user saw nothing.
func (e *Engine) reject(ctx context.Context, channelID string, sentinel error, text string) error {
	if err := e.sender.Send(ctx, channelID, text); err != nil {
		return err
	}
	return sentinel
}

func (e *Engine) noStoryText() string {
	return fmt.Sprintf("There's no story currently active in this channel! Start one with `%sstartstory <initial sentence>`.", e.prefix)
}

func (e *Engine) publish(kind string, data map[string]any) {
	e.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceStory,
		Kind:      kind,
		Data:      data,
	})
}
