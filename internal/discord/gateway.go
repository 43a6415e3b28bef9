// Package discord connects the bot to Discord: a websocket gateway
// client for inbound events, a small REST client for outbound messages,
// and a bridge that routes messages to the story engine.
package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultGatewayURL is the production Discord gateway endpoint.
const DefaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

// reconnect backoff bounds.
const (
	backoffInitial = time.Second
	backoffMax     = time.Minute
)

// Gateway maintains a Discord gateway websocket session: identify,
// heartbeats, and dispatch of MESSAGE_CREATE events to a channel.
// Disconnects trigger reconnection with exponential backoff until the
// context is cancelled.
type Gateway struct {
	token  string
	url    string
	logger *slog.Logger
	dialer *websocket.Dialer

	messages chan *Message

	mu      sync.Mutex
	botUser User
	seq     int64
}

// NewGateway creates a gateway client. An empty url selects the
// production endpoint.
func NewGateway(token, url string, logger *slog.Logger) *Gateway {
	if url == "" {
		url = DefaultGatewayURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		token:    token,
		url:      url,
		logger:   logger.With("component", "gateway"),
		dialer:   &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		messages: make(chan *Message, 64),
	}
}

// Messages returns the channel of inbound MESSAGE_CREATE events. The
// channel is closed when Run returns.
func (g *Gateway) Messages() <-chan *Message {
	return g.messages
}

// BotUser returns the authenticated bot user, known after the first
// successful identify.
func (g *Gateway) BotUser() User {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.botUser
}

// Run connects to the gateway and keeps the session alive until ctx is
// cancelled, reconnecting with backoff after any disconnect.
func (g *Gateway) Run(ctx context.Context) error {
	defer close(g.messages)

	backoff := backoffInitial
	for {
		started := time.Now()
		err := g.session(ctx)
		if ctx.Err() != nil {
			g.logger.Info("gateway shutting down")
			return ctx.Err()
		}
		g.logger.Warn("gateway session ended, reconnecting",
			"error", err,
			"backoff", backoff,
		)

		// A session that survived a while earns a fresh backoff.
		if time.Since(started) > time.Minute {
			backoff = backoffInitial
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

// session runs one full gateway connection: dial, hello, identify, then
// read until the connection drops or ctx is cancelled.
func (g *Gateway) session(ctx context.Context) error {
	conn, _, err := g.dialer.DialContext(ctx, g.url, nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}

	// Tear down the socket when ctx ends so blocked reads return.
	sessionDone := make(chan struct{})
	defer close(sessionDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-sessionDone:
			conn.Close()
		}
	}()

	// Writes come from both the read loop and the heartbeat goroutine.
	var writeMu sync.Mutex
	send := func(p payload) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(p)
	}

	hello, err := g.readHello(conn)
	if err != nil {
		return err
	}

	if err := g.identify(send); err != nil {
		return fmt.Errorf("identify: %w", err)
	}

	interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond
	if interval <= 0 {
		interval = 41250 * time.Millisecond
	}
	heartbeatErr := make(chan error, 1)
	go g.heartbeatLoop(interval, send, sessionDone, heartbeatErr)

	g.logger.Info("gateway session established", "heartbeat_interval", interval)

	for {
		select {
		case err := <-heartbeatErr:
			return fmt.Errorf("heartbeat: %w", err)
		default:
		}

		var p payload
		if err := conn.ReadJSON(&p); err != nil {
			return fmt.Errorf("read frame: %w", err)
		}
		if p.S != nil {
			g.mu.Lock()
			g.seq = *p.S
			g.mu.Unlock()
		}

		switch p.Op {
		case opDispatch:
			g.handleDispatch(p)
		case opHeartbeat:
			// Server asked for an immediate heartbeat.
			if err := send(g.heartbeatPayload()); err != nil {
				return fmt.Errorf("requested heartbeat: %w", err)
			}
		case opHeartbeatACK:
			// Liveness confirmed, nothing to do.
		case opReconnect:
			return fmt.Errorf("server requested reconnect")
		case opInvalidSession:
			return fmt.Errorf("session invalidated by server")
		default:
			g.logger.Debug("gateway unhandled opcode", "op", p.Op)
		}
	}
}

// readHello reads the op 10 frame the server sends first.
func (g *Gateway) readHello(conn *websocket.Conn) (helloData, error) {
	var p payload
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	if err := conn.ReadJSON(&p); err != nil {
		return helloData{}, fmt.Errorf("read hello: %w", err)
	}
	conn.SetReadDeadline(time.Time{})
	if p.Op != opHello {
		return helloData{}, fmt.Errorf("expected hello (op %d), got op %d", opHello, p.Op)
	}
	var hello helloData
	if err := json.Unmarshal(p.D, &hello); err != nil {
		return helloData{}, fmt.Errorf("decode hello: %w", err)
	}
	return hello, nil
}

func (g *Gateway) identify(send func(payload) error) error {
	data, err := json.Marshal(identifyData{
		Token:   g.token,
		Intents: intents,
		Properties: identifyProperties{
			OS:      "linux",
			Browser: "weaver",
			Device:  "weaver",
		},
	})
	if err != nil {
		return err
	}
	return send(payload{Op: opIdentify, D: data})
}

func (g *Gateway) heartbeatLoop(interval time.Duration, send func(payload) error, done <-chan struct{}, errCh chan<- error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := send(g.heartbeatPayload()); err != nil {
				errCh <- err
				return
			}
		}
	}
}

func (g *Gateway) heartbeatPayload() payload {
	g.mu.Lock()
	seq := g.seq
	g.mu.Unlock()
	data, _ := json.Marshal(seq)
	return payload{Op: opHeartbeat, D: data}
}

// handleDispatch routes op 0 events. Only READY and MESSAGE_CREATE are
// interesting; everything else is traffic from the subscribed intents
// that the bot does not act on.
func (g *Gateway) handleDispatch(p payload) {
	switch p.T {
	case "READY":
		var ready readyData
		if err := json.Unmarshal(p.D, &ready); err != nil {
			g.logger.Warn("gateway malformed READY", "error", err)
			return
		}
		g.mu.Lock()
		g.botUser = ready.User
		g.mu.Unlock()
		g.logger.Info("gateway ready",
			"bot_user", ready.User.Username,
			"bot_id", ready.User.ID,
		)
	case "MESSAGE_CREATE":
		var msg Message
		if err := json.Unmarshal(p.D, &msg); err != nil {
			g.logger.Warn("gateway malformed MESSAGE_CREATE", "error", err)
			return
		}
		select {
		case g.messages <- &msg:
		default:
			g.logger.Warn("gateway message channel full, dropping message",
				"channel_id", msg.ChannelID,
			)
		}
	default:
		g.logger.Debug("gateway ignoring dispatch", "type", p.T)
	}
}
