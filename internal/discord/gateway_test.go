package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeGatewayServer upgrades one connection, performs the hello and
// identify exchange, then hands the connection to script.
func fakeGatewayServer(t *testing.T, script func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		hello, _ := json.Marshal(helloData{HeartbeatInterval: 45000})
		if err := conn.WriteJSON(payload{Op: opHello, D: hello}); err != nil {
			t.Errorf("write hello: %v", err)
			return
		}

		var identify payload
		if err := conn.ReadJSON(&identify); err != nil {
			t.Errorf("read identify: %v", err)
			return
		}
		if identify.Op != opIdentify {
			t.Errorf("first client frame op = %d, want identify", identify.Op)
			return
		}
		var id identifyData
		if err := json.Unmarshal(identify.D, &id); err != nil {
			t.Errorf("decode identify: %v", err)
			return
		}
		if id.Token != "test-token" {
			t.Errorf("identify token = %q", id.Token)
		}
		if id.Intents != intents {
			t.Errorf("identify intents = %d, want %d", id.Intents, intents)
		}

		script(conn)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestGatewayDeliversMessages(t *testing.T) {
	srv := fakeGatewayServer(t, func(conn *websocket.Conn) {
		ready, _ := json.Marshal(readyData{
			SessionID: "sess",
			User:      User{ID: "bot-1", Username: "weaver", Bot: true},
		})
		seq := int64(1)
		conn.WriteJSON(payload{Op: opDispatch, T: "READY", S: &seq, D: ready})

		msg, _ := json.Marshal(Message{
			ID:        "m1",
			ChannelID: "chan-1",
			Content:   "!startstory Once upon a time.",
			Author:    User{ID: "u1", Username: "alice"},
		})
		seq2 := int64(2)
		conn.WriteJSON(payload{Op: opDispatch, T: "MESSAGE_CREATE", S: &seq2, D: msg})

		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	gw := NewGateway("test-token", wsURL(srv), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gw.Run(ctx)

	select {
	case msg := <-gw.Messages():
		if msg.ChannelID != "chan-1" || msg.Content != "!startstory Once upon a time." {
			t.Errorf("message = %+v", msg)
		}
		if msg.Author.Username != "alice" {
			t.Errorf("author = %+v", msg.Author)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
	}

	if bot := gw.BotUser(); bot.ID != "bot-1" {
		t.Errorf("BotUser = %+v, want the READY user", bot)
	}
}

func TestGatewayAnswersHeartbeatRequest(t *testing.T) {
	gotHeartbeat := make(chan int64, 1)
	srv := fakeGatewayServer(t, func(conn *websocket.Conn) {
		seq := int64(7)
		conn.WriteJSON(payload{Op: opDispatch, T: "GUILD_CREATE", S: &seq, D: json.RawMessage(`{}`)})
		conn.WriteJSON(payload{Op: opHeartbeat})

		var p payload
		if err := conn.ReadJSON(&p); err != nil {
			return
		}
		if p.Op == opHeartbeat {
			var ack int64
			json.Unmarshal(p.D, &ack)
			gotHeartbeat <- ack
		}
		conn.WriteJSON(payload{Op: opHeartbeatACK})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	gw := NewGateway("test-token", wsURL(srv), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gw.Run(ctx)

	select {
	case seq := <-gotHeartbeat:
		if seq != 7 {
			t.Errorf("heartbeat seq = %d, want last observed sequence", seq)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat reply to server request")
	}
}

func TestGatewayStopsOnCancel(t *testing.T) {
	// A server that refuses the upgrade forces the session to fail and
	// the client into its backoff wait, where cancellation must land.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusNotFound)
	}))
	defer srv.Close()

	gw := NewGateway("test-token", wsURL(srv), nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
