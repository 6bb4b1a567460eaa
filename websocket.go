package nextrush

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket connection states, per spec section 4.5's state machine:
// CONNECTING -> OPEN -> CLOSING -> CLOSED, monotonic.
const (
	wsConnecting int32 = iota
	wsOpen
	wsClosing
	wsClosed
)

// WSOptions configures the WebSocket subsystem, matching spec section 6's
// `ws.*` configuration keys.
type WSOptions struct {
	MaxMessageSize     int64
	MaxRooms           int
	CleanupInterval    time.Duration
	AllowedOrigins     []string
	Subprotocols       []string
	WriteQueueSize     int
	IdleTimeout        time.Duration
	DropOnBackpressure bool
}

// DefaultWSOptions returns the options a new `App`'s WebSocket subsystem
// starts with.
func DefaultWSOptions() WSOptions {
	return WSOptions{
		MaxMessageSize:  1 << 20,
		MaxRooms:        10000,
		CleanupInterval: 30 * time.Second,
		WriteQueueSize:  256,
		IdleTimeout:     60 * time.Second,
	}
}

// WSHandler is invoked once per successful upgrade, with a connection in
// the OPEN state. The handler should install `OnMessage`/`OnClose`
// callbacks and return promptly; the framework owns the read/write pumps
// from that point on, matching teacher websocket.go's callback-field
// style (`TextHandler`/`BinaryHandler`/`ConnectionCloseHandler`/...).
type WSHandler func(ws *WSConn, c *Context)

// WSConn wraps a `*websocket.Conn` with the per-connection state spec
// section 2's data model lists: an id, joined-rooms set, a bounded
// outbound queue for backpressure, and optional user-attached data.
type WSConn struct {
	ID   string
	App  *App
	conn *websocket.Conn

	state int32

	rooms   map[string]bool
	roomsMu sync.Mutex

	send chan wsFrame

	data   map[string]interface{}
	dataMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}

	OnMessage func(msgType int, data []byte)
	OnClose   func(code int, reason string)
	OnError   func(err error)
}

type wsFrame struct {
	msgType int
	data    []byte
}

var wsConnSeq int64

func nextWSConnID() string {
	n := atomic.AddInt64(&wsConnSeq, 1)
	return fmt.Sprintf("ws-%d-%d", time.Now().UnixNano(), n)
}

var wsUpgraders sync.Map // *App -> *websocket.Upgrader, built lazily per app's WSOptions

func (a *App) upgrader() *websocket.Upgrader {
	if v, ok := wsUpgraders.Load(a); ok {
		return v.(*websocket.Upgrader)
	}

	opts := a.wsOptions()

	u := &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		Subprotocols:    opts.Subprotocols,
		CheckOrigin: func(r *http.Request) bool {
			if len(opts.AllowedOrigins) == 0 {
				return true
			}

			origin := r.Header.Get("Origin")
			for _, allowed := range opts.AllowedOrigins {
				if allowed == "*" || strings.EqualFold(allowed, origin) {
					return true
				}
			}

			return false
		},
	}

	actual, _ := wsUpgraders.LoadOrStore(a, u)
	return actual.(*websocket.Upgrader)
}

func (a *App) wsOptions() WSOptions {
	if a.wsOpts == nil {
		opts := DefaultWSOptions()
		a.wsOpts = &opts
	}
	return *a.wsOpts
}

// upgradeWebSocket performs the RFC 6455 handshake via gorilla/websocket's
// `Upgrader` (which implements the Sec-WebSocket-Accept computation and
// subprotocol negotiation spec section 4.5 describes) and, on success,
// starts the connection's read/write pumps.
func (a *App) upgradeWebSocket(c *Context, handler WSHandler) error {
	if !strings.EqualFold(c.Request.Headers.Get("Upgrade"), "websocket") {
		return ErrBadRequest("expected websocket upgrade")
	}

	raw, err := a.upgrader().Upgrade(c.Response.HTTPResponseWriter(), c.Request.Raw, nil)
	if err != nil {
		// Upgrade already wrote the failure response to the raw
		// transport (400/403 per spec section 4.5); nothing left to do.
		c.Response.Written = true
		return nil
	}

	opts := a.wsOptions()

	ws := &WSConn{
		ID:    nextWSConnID(),
		App:   a,
		conn:  raw,
		state: wsOpen,
		rooms: make(map[string]bool),
		send:  make(chan wsFrame, opts.WriteQueueSize),
		data:  make(map[string]interface{}),
		done:  make(chan struct{}),
	}

	raw.SetReadLimit(opts.MaxMessageSize)

	if opts.IdleTimeout > 0 {
		raw.SetReadDeadline(time.Now().Add(opts.IdleTimeout))
		raw.SetPongHandler(func(string) error {
			raw.SetReadDeadline(time.Now().Add(opts.IdleTimeout))
			return nil
		})
	}

	handler(ws, c)

	go ws.writePump()
	ws.readPump()

	c.Response.Written = true
	return nil
}

// Set stores a value on the connection's per-connection data bag.
func (ws *WSConn) Set(key string, value interface{}) {
	ws.dataMu.Lock()
	defer ws.dataMu.Unlock()
	ws.data[key] = value
}

// Get reads a value from the connection's per-connection data bag.
func (ws *WSConn) Get(key string) (interface{}, bool) {
	ws.dataMu.Lock()
	defer ws.dataMu.Unlock()
	v, ok := ws.data[key]
	return v, ok
}

// State returns the connection's current state.
func (ws *WSConn) State() int32 {
	return atomic.LoadInt32(&ws.state)
}

// Send enqueues a text or binary frame for the write pump. Per spec
// section 4.5, send on a non-OPEN connection is a no-op returning false;
// on a saturated queue it either blocks (cooperative backpressure) or
// drops the frame, per `WSOptions.DropOnBackpressure`.
func (ws *WSConn) Send(msgType int, data []byte) bool {
	if atomic.LoadInt32(&ws.state) != wsOpen {
		return false
	}

	frame := wsFrame{msgType: msgType, data: data}

	if ws.App.wsOptions().DropOnBackpressure {
		select {
		case ws.send <- frame:
			return true
		default:
			if ws.OnError != nil {
				ws.OnError(fmt.Errorf("nextrush: dropped websocket frame, queue full"))
			}
			return false
		}
	}

	select {
	case ws.send <- frame:
		return true
	case <-ws.done:
		return false
	}
}

// SendText enqueues a UTF-8 text frame.
func (ws *WSConn) SendText(s string) bool {
	return ws.Send(websocket.TextMessage, []byte(s))
}

// wsEnvelope is the JSON frame shape `Emit` sends, matching the
// event/data decoding spec section 4's acceptance scenario expects.
type wsEnvelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Emit sends a JSON event envelope `{"event": event, "data": args}`.
func (ws *WSConn) Emit(event string, args interface{}) bool {
	b, err := json.Marshal(wsEnvelope{Event: event, Data: args})
	if err != nil {
		return false
	}

	return ws.SendText(string(b))
}

// Close closes the connection with the given RFC 6455 close code, moving
// it through CLOSING to CLOSED exactly once.
func (ws *WSConn) Close(code int, reason string) {
	ws.closeOnce.Do(func() {
		atomic.StoreInt32(&ws.state, wsClosing)

		deadline := time.Now().Add(2 * time.Second)
		msg := websocket.FormatCloseMessage(code, reason)
		ws.conn.WriteControl(websocket.CloseMessage, msg, deadline)

		close(ws.done)
		ws.conn.Close()

		atomic.StoreInt32(&ws.state, wsClosed)
		ws.App.rooms().leaveAll(ws)

		if ws.OnClose != nil {
			ws.OnClose(code, reason)
		}
	})
}

func (ws *WSConn) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-ws.send:
			if !ok {
				return
			}
			if err := ws.conn.WriteMessage(frame.msgType, frame.data); err != nil {
				ws.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}

		case <-ticker.C:
			if err := ws.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				ws.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}

		case <-ws.done:
			return
		}
	}
}

func (ws *WSConn) readPump() {
	defer ws.Close(websocket.CloseNormalClosure, "")

	for {
		msgType, data, err := ws.conn.ReadMessage()
		if err != nil {
			return
		}

		if ws.App.wsOptions().IdleTimeout > 0 {
			ws.conn.SetReadDeadline(time.Now().Add(ws.App.wsOptions().IdleTimeout))
		}

		if ws.OnMessage != nil {
			ws.OnMessage(msgType, data)
		}
	}
}

func (a *App) registerWS(path string, handler WSHandler, middleware []Middleware) {
	a.router.insert("GET", path, func(c *Context) error {
		return a.upgradeWebSocket(c, handler)
	}, middleware)
}
