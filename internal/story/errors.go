package story

import "errors"

// Command-level failures. Each maps to exactly one chat message and
// leaves channel state unchanged.
var (
	// ErrNoActiveStory means a story-dependent command arrived with no
	// story in the channel.
	ErrNoActiveStory = errors.New("no active story in this channel")

	// ErrNoChoices means choose arrived while no menu is pending.
	ErrNoChoices = errors.New("no choices are pending")

	// ErrInvalidChoice means the selection was outside 1..len(choices).
	ErrInvalidChoice = errors.New("choice out of range")

	// ErrNotYourTurn means choose arrived while the channel is waiting
	// for the user to write a continuation directly.
	ErrNotYourTurn = errors.New("waiting for a written continuation, not a choice")
)
