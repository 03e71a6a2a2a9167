package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Koi-west/claude-code-pet/internal/events"
)

// mockChat scripts the conversational surface for transport tests.
type mockChat struct {
	greeting string
	reply    string
	err      error
	turns    []string
}

func (m *mockChat) HandleTurn(ctx context.Context, identity, userText string) (string, error) {
	m.turns = append(m.turns, userText)
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

func (m *mockChat) Greeting(identity string) string {
	return m.greeting
}

func newTestServer(t *testing.T, chat Chat, bus *events.Bus) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
	srv := NewServer("", 0, chat, bus, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func dialChat(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/chat"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readReply(t *testing.T, conn *websocket.Conn) outboundMessage {
	t.Helper()
	var msg outboundMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if msg.Type != "reply" {
		t.Fatalf("type = %q, want reply", msg.Type)
	}
	return msg
}

func TestRootEndpoint(t *testing.T) {
	ts := newTestServer(t, &mockChat{}, nil)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["name"] != "Miko" {
		t.Errorf("name = %q, want Miko", body["name"])
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, &mockChat{}, nil)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %q, want healthy", body["status"])
	}
}

func TestChatSocket_Greeting(t *testing.T) {
	chat := &mockChat{greeting: "欢迎回来！"}
	conn := dialChat(t, newTestServer(t, chat, nil))

	if err := conn.WriteJSON(inboundMessage{Type: "greeting"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	reply := readReply(t, conn)
	if reply.Content != "欢迎回来！" {
		t.Errorf("content = %q", reply.Content)
	}
	if len(chat.turns) != 0 {
		t.Errorf("greeting ran %d turns, want 0", len(chat.turns))
	}
}

func TestChatSocket_MessageTurn(t *testing.T) {
	chat := &mockChat{reply: "✅ 已打开Chrome"}
	conn := dialChat(t, newTestServer(t, chat, nil))

	if err := conn.WriteJSON(inboundMessage{Type: "message", Content: "打开Chrome"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	interim := readReply(t, conn)
	if interim.Content != thinkingReply {
		t.Errorf("interim = %q, want %q", interim.Content, thinkingReply)
	}

	final := readReply(t, conn)
	if final.Content != "✅ 已打开Chrome" {
		t.Errorf("final = %q", final.Content)
	}

	if len(chat.turns) != 1 || chat.turns[0] != "打开Chrome" {
		t.Errorf("turns = %v", chat.turns)
	}
}

func TestChatSocket_TurnFailureKeepsConnection(t *testing.T) {
	chat := &mockChat{err: errors.New("model unreachable")}
	conn := dialChat(t, newTestServer(t, chat, nil))

	if err := conn.WriteJSON(inboundMessage{Type: "message", Content: "你好"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	readReply(t, conn) // interim
	apology := readReply(t, conn)
	if apology.Content != failureReply {
		t.Errorf("content = %q, want %q", apology.Content, failureReply)
	}

	// Connection should survive: a greeting after the failure still works.
	chat.err = nil
	chat.greeting = "还在呢"
	if err := conn.WriteJSON(inboundMessage{Type: "greeting"}); err != nil {
		t.Fatalf("write after failure: %v", err)
	}
	if got := readReply(t, conn); got.Content != "还在呢" {
		t.Errorf("post-failure greeting = %q", got.Content)
	}
}

func TestChatSocket_MalformedPayload(t *testing.T) {
	conn := dialChat(t, newTestServer(t, &mockChat{}, nil))

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	reply := readReply(t, conn)
	if reply.Content != malformedReply {
		t.Errorf("content = %q, want %q", reply.Content, malformedReply)
	}
}

func TestChatSocket_EmptyMessageSkipped(t *testing.T) {
	chat := &mockChat{greeting: "hi"}
	conn := dialChat(t, newTestServer(t, chat, nil))

	if err := conn.WriteJSON(inboundMessage{Type: "message", Content: ""}); err != nil {
		t.Fatalf("write: %v", err)
	}
	// No reply for the empty message; the next greeting answers first.
	if err := conn.WriteJSON(inboundMessage{Type: "greeting"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	reply := readReply(t, conn)
	if reply.Content != "hi" {
		t.Errorf("content = %q, want greeting", reply.Content)
	}
	if len(chat.turns) != 0 {
		t.Errorf("empty message ran %d turns, want 0", len(chat.turns))
	}
}

func TestChatSocket_PublishesLifecycleEvents(t *testing.T) {
	bus := events.New()
	ch := bus.Subscribe(8)
	defer bus.Unsubscribe(ch)

	conn := dialChat(t, newTestServer(t, &mockChat{}, bus))

	select {
	case e := <-ch:
		if e.Source != events.SourceChat || e.Kind != events.KindClientConnected {
			t.Errorf("event = %s/%s", e.Source, e.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no client_connected event")
	}

	conn.Close()

	select {
	case e := <-ch:
		if e.Kind != events.KindClientDisconnected {
			t.Errorf("kind = %s, want client_disconnected", e.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no client_disconnected event")
	}
}
