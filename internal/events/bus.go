// Package events provides a publish/subscribe event bus for operational
// observability. Events flow from components (discord bridge, story
// engine, gemini client, attention scheduler) to subscribers (the debug
// log tap, future metrics collector). The bus is nil-safe: calling
// Publish on a nil *Bus is a no-op, so components do not need guard
// checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceDiscord identifies events from the Discord bridge.
	SourceDiscord = "discord"
	// SourceStory identifies events from the story engine.
	SourceStory = "story"
	// SourceGemini identifies events from the Gemini backend client.
	SourceGemini = "gemini"
	// SourceAttention identifies events from the attention scheduler.
	SourceAttention = "attention"
)

// Kind constants describe the type of event within a source.
const (
	// KindMessageReceived signals an inbound Discord message.
	// Data: request_id, channel_id, message_len.
	KindMessageReceived = "message_received"
	// KindCommandDispatched signals a recognized command invocation.
	// Data: request_id, channel_id, command.
	KindCommandDispatched = "command_dispatched"

	// KindStoryStarted signals a new story began in a channel.
	// Data: channel_id, narrative_len.
	KindStoryStarted = "story_started"
	// KindChoicesOffered signals a 3-option menu was presented.
	// Data: channel_id, fallbacks.
	KindChoicesOffered = "choices_offered"
	// KindChoiceSelected signals a continuation was chosen.
	// Data: channel_id, choice, round.
	KindChoiceSelected = "choice_selected"
	// KindUserTurn signals a forced user turn began or completed.
	// Data: channel_id, completed.
	KindUserTurn = "user_turn"
	// KindStoryDropped signals a channel's story was cleared after an
	// unrecoverable backend failure.
	// Data: channel_id, reason.
	KindStoryDropped = "story_dropped"

	// KindBackendCall signals the start of a Gemini request.
	// Data: model, prompt_len.
	KindBackendCall = "backend_call"
	// KindBackendError signals a failed Gemini request.
	// Data: model, error.
	KindBackendError = "backend_error"

	// KindPraiseFired signals a praise job delivered a compliment.
	// Data: channel_id.
	KindPraiseFired = "praise_fired"
	// KindIdleNudge signals an idle job delivered a nudge.
	// Data: channel_id, quiet_for_ms.
	KindIdleNudge = "idle_nudge"
	// KindJobStarted signals a praise or idle job was scheduled.
	// Data: channel_id, job, interval_ms.
	KindJobStarted = "job_started"
	// KindJobStopped signals a praise or idle job was cancelled.
	// Data: channel_id, job.
	KindJobStopped = "job_stopped"
)

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs. This allows
	// Unsubscribe to accept <-chan Event (the caller's view) without
	// an illegal type conversion.
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full, drop the event rather than block.
		}
	}
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
// bufSize controls the channel buffer.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
