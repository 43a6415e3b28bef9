package gemini

import "fmt"

// The error types below carry messages written for direct display in
// chat: when choice generation fails, the engine relays the error text
// to the channel verbatim. Technical detail is embedded rather than
// hidden so users can report something actionable.

// ConfigError means no API key is configured. Returned before any
// network I/O is attempted.
type ConfigError struct{}

func (e *ConfigError) Error() string {
	return "I need an API key to get creative! Please set gemini.api_key in the config."
}

// TransportError is a network- or HTTP-level failure, including any
// non-2xx status from the API.
type TransportError struct {
	// Status is the HTTP status code, or 0 for connection-level failures.
	Status int
	// Err is the underlying cause.
	Err error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("Oops! I ran into an error trying to get creative: API error %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("Oops! I ran into an error trying to get creative: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedResponseError means the API answered 2xx but the body did
// not contain the expected completion text.
type MalformedResponseError struct {
	// Detail describes what was missing.
	Detail string
}

func (e *MalformedResponseError) Error() string {
	return "Hmm, I couldn't get a creative idea right now. Try again later!"
}
