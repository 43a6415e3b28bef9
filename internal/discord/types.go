package discord

import "encoding/json"

// Gateway opcodes. Only the ones this client handles are listed.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatACK   = 11
)

// intents requests guild metadata, guild messages, and message content.
// Message content is a privileged intent and must also be enabled in
// the Discord developer portal.
const intents = 1<<0 | 1<<9 | 1<<15

// payload is the envelope for every gateway frame in both directions.
type payload struct {
	Op int             `json:"op"`
	T  string          `json:"t,omitempty"`
	S  *int64          `json:"s,omitempty"`
	D  json.RawMessage `json:"d,omitempty"`
}

// helloData arrives in the op 10 frame right after connecting.
type helloData struct {
	HeartbeatInterval int `json:"heartbeat_interval"` // milliseconds
}

// identifyData is the op 2 frame sent to authenticate the session.
type identifyData struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties identifyProperties `json:"properties"`
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// readyData is the READY dispatch confirming a successful identify.
type readyData struct {
	SessionID string `json:"session_id"`
	User      User   `json:"user"`
}

// User is a Discord user as it appears in gateway payloads.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot"`
}

// Message is a MESSAGE_CREATE dispatch, reduced to the fields the
// bridge acts on.
type Message struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	Author    User   `json:"author"`
}
