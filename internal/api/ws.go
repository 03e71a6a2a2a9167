package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Koi-west/claude-code-pet/internal/events"
)

// defaultIdentity names the session owner for single-user desktop use.
const defaultIdentity = "default"

const (
	thinkingReply  = "思考中... 🤔"
	malformedReply = "抱歉，我没理解你的消息格式 😅"
	failureReply   = "抱歉，处理你的消息时出错了 😔"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The desktop client connects from a file:// or app:// origin,
	// so origin checks would only reject legitimate clients.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inboundMessage is what the desktop client sends over the socket.
type inboundMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// outboundMessage is what the server sends back.
type outboundMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// handleChatSocket upgrades the request and runs the chat read loop.
// One message in, one reply out; a turn that invokes tools also gets
// an interim "thinking" reply so the pet can animate while waiting.
func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	s.logger.Info("chat client connected", "remote", remote)
	s.bus.Publish(events.Event{
		Source: events.SourceChat,
		Kind:   events.KindClientConnected,
		Data:   map[string]any{"remote": remote},
	})
	defer func() {
		s.logger.Info("chat client disconnected", "remote", remote)
		s.bus.Publish(events.Event{
			Source: events.SourceChat,
			Kind:   events.KindClientDisconnected,
			Data:   map[string]any{"remote": remote},
		})
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", "remote", remote, "error", err)
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Debug("malformed chat payload", "remote", remote, "error", err)
			if err := s.sendReply(conn, malformedReply); err != nil {
				return
			}
			continue
		}

		switch msg.Type {
		case "greeting":
			if err := s.sendReply(conn, s.chat.Greeting(defaultIdentity)); err != nil {
				return
			}
		case "message":
			if msg.Content == "" {
				continue
			}
			if err := s.handleChatMessage(r.Context(), conn, msg.Content); err != nil {
				return
			}
		default:
			s.logger.Debug("ignoring unknown message type", "type", msg.Type)
		}
	}
}

// handleChatMessage runs one conversational turn for the connected
// client. Turn failures become an apologetic reply; only a dead
// socket ends the loop.
func (s *Server) handleChatMessage(ctx context.Context, conn *websocket.Conn, content string) error {
	if err := s.sendReply(conn, thinkingReply); err != nil {
		return err
	}

	start := time.Now()
	reply, err := s.chat.HandleTurn(ctx, defaultIdentity, content)
	if err != nil {
		s.logger.Error("chat turn failed", "error", err, "elapsed", time.Since(start))
		return s.sendReply(conn, failureReply)
	}
	s.logger.Debug("chat turn complete", "elapsed", time.Since(start))
	return s.sendReply(conn, reply)
}

func (s *Server) sendReply(conn *websocket.Conn, content string) error {
	return conn.WriteJSON(outboundMessage{Type: "reply", Content: content})
}
