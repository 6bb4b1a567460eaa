package nextrush

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// TestWebSocketRoomBroadcastExcludesSender implements spec section 8's
// WebSocket broadcast scenario: two clients join the same room, one emits
// an event, and only the other client receives it.
func TestWebSocketRoomBroadcastExcludesSender(t *testing.T) {
	app := New()
	app.WS("/ws", func(ws *WSConn, c *Context) {
		ws.JoinRoom("lobby")
		ws.OnMessage = func(msgType int, data []byte) {
			ws.EmitToRoom("lobby", "chat", string(data))
		}
	})

	srv := httptest.NewServer(app)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	alice, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("alice dial: %v", err)
	}
	defer alice.Close()

	bob, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("bob dial: %v", err)
	}
	defer bob.Close()

	// Give both connections a moment to finish joining the room before the
	// broadcast is sent, since the join happens in the handler goroutine.
	time.Sleep(50 * time.Millisecond)

	if err := alice.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("alice write: %v", err)
	}

	bob.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := bob.ReadMessage()
	if err != nil {
		t.Fatalf("bob expected to receive the broadcast: %v", err)
	}
	if !strings.Contains(string(msg), "chat") || !strings.Contains(string(msg), "hello") {
		t.Fatalf("expected an event envelope mentioning chat/hello, got %q", msg)
	}

	alice.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := alice.ReadMessage(); err == nil {
		t.Fatal("expected the sender to be excluded and receive nothing")
	}
}

func TestWebSocketUpgradeRejectsPlainHTTP(t *testing.T) {
	app := New()
	app.WS("/ws", func(ws *WSConn, c *Context) {})

	req := httptest.NewRequest("GET", "/ws", nil)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("expected 400 for a non-upgrade request, got %d", rec.Code)
	}
}

func TestWebSocketOpenConnQueuesSend(t *testing.T) {
	ws := newTestWSConn("c1")
	ws.state = wsOpen

	if ws.State() != wsOpen {
		t.Fatalf("expected initial state OPEN, got %d", ws.State())
	}

	if ws.Send(1, []byte("x")) {
		select {
		case <-ws.send:
		default:
			t.Fatal("expected the frame to be queued")
		}
	}
}
