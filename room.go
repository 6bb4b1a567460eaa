package nextrush

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Room is a named broadcast target, matching spec section 2's data model:
// a set of clients plus lifecycle/bookkeeping fields.
type Room struct {
	Name         string
	Created      time.Time
	LastActivity time.Time
	MessageCount int64
	Metadata     map[string]interface{}

	mu      sync.Mutex
	clients map[string]*WSConn
}

// RoomRegistry tracks all rooms for one `App`. A single mutex guards the
// room map, which spec section 5's shared-resource notes call "sufficient
// for the broadcast path" at this scale; sharding by room-name hash is
// noted there as a scale-up option this module does not need.
type RoomRegistry struct {
	mu       sync.Mutex
	rooms    map[string]*Room
	maxRooms int

	cleanupInterval time.Duration
	stop            chan struct{}
	stopOnce        sync.Once
}

func newRoomRegistry(maxRooms int, cleanupInterval time.Duration) *RoomRegistry {
	r := &RoomRegistry{
		rooms:           make(map[string]*Room),
		maxRooms:        maxRooms,
		cleanupInterval: cleanupInterval,
		stop:            make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go r.sweepLoop()
	}

	return r
}

func (r *RoomRegistry) sweepLoop() {
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stop:
			return
		}
	}
}

// sweep removes rooms left empty since the last sweep, the periodic
// cleanup spec section 4.5 calls for alongside synchronous
// destroy-on-empty in `leave`/`leaveAll`.
func (r *RoomRegistry) sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, room := range r.rooms {
		room.mu.Lock()
		empty := len(room.clients) == 0
		room.mu.Unlock()

		if empty {
			delete(r.rooms, name)
		}
	}
}

// close stops the sweeper and force-closes every connection still joined
// to a room, with close code 1001 ("going away"), per spec section 5's
// graceful-shutdown requirement.
func (r *RoomRegistry) close() {
	r.stopOnce.Do(func() { close(r.stop) })

	r.mu.Lock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.Unlock()

	seen := make(map[string]*WSConn)
	for _, room := range rooms {
		room.mu.Lock()
		for id, conn := range room.clients {
			seen[id] = conn
		}
		room.mu.Unlock()
	}

	for _, conn := range seen {
		conn.Close(websocket.CloseGoingAway, "server shutting down")
	}
}

func (r *RoomRegistry) getOrCreate(name string) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[name]; ok {
		return room, true
	}

	if r.maxRooms > 0 && len(r.rooms) >= r.maxRooms {
		return nil, false
	}

	room := &Room{
		Name:         name,
		Created:      time.Now(),
		LastActivity: time.Now(),
		Metadata:     make(map[string]interface{}),
		clients:      make(map[string]*WSConn),
	}
	r.rooms[name] = room

	return room, true
}

// join adds conn to room, creating it if needed. Returns false if
// `maxRooms` would be exceeded by creating a new room.
func (r *RoomRegistry) join(conn *WSConn, name string) bool {
	room, ok := r.getOrCreate(name)
	if !ok {
		return false
	}

	room.mu.Lock()
	room.clients[conn.ID] = conn
	room.LastActivity = time.Now()
	room.mu.Unlock()

	conn.roomsMu.Lock()
	conn.rooms[name] = true
	conn.roomsMu.Unlock()

	return true
}

// leave removes conn from room, destroying the room if it becomes empty.
func (r *RoomRegistry) leave(conn *WSConn, name string) {
	r.mu.Lock()
	room, ok := r.rooms[name]
	r.mu.Unlock()

	if !ok {
		return
	}

	room.mu.Lock()
	delete(room.clients, conn.ID)
	empty := len(room.clients) == 0
	room.mu.Unlock()

	conn.roomsMu.Lock()
	delete(conn.rooms, name)
	conn.roomsMu.Unlock()

	if empty {
		r.mu.Lock()
		if current, ok := r.rooms[name]; ok && current == room {
			delete(r.rooms, name)
		}
		r.mu.Unlock()
	}
}

// leaveAll removes conn from every room it has joined, keeping the
// invariant spec section 2 states: `room.clients.contains(conn)` iff
// `conn.rooms.contains(room.name)`.
func (r *RoomRegistry) leaveAll(conn *WSConn) {
	conn.roomsMu.Lock()
	names := make([]string, 0, len(conn.rooms))
	for name := range conn.rooms {
		names = append(names, name)
	}
	conn.roomsMu.Unlock()

	for _, name := range names {
		r.leave(conn, name)
	}
}

// broadcastToRoom sends data to every client in room except the one whose
// ID equals exceptID (pass "" to exclude none).
func (r *RoomRegistry) broadcastToRoom(name string, msgType int, data []byte, exceptID string) {
	r.mu.Lock()
	room, ok := r.rooms[name]
	r.mu.Unlock()

	if !ok {
		return
	}

	room.mu.Lock()
	targets := make([]*WSConn, 0, len(room.clients))
	for id, conn := range room.clients {
		if id == exceptID {
			continue
		}
		targets = append(targets, conn)
	}
	room.MessageCount++
	room.LastActivity = time.Now()
	room.mu.Unlock()

	for _, conn := range targets {
		conn.Send(msgType, data)
	}
}

// emitToRoom sends a JSON `{"event", "data"}` envelope to every client in
// room except exceptID, matching the `Emit` wire format `WSConn.Emit` uses
// for a single connection.
func (r *RoomRegistry) emitToRoom(name, event string, args interface{}, exceptID string) error {
	b, err := json.Marshal(wsEnvelope{Event: event, Data: args})
	if err != nil {
		return err
	}

	r.broadcastToRoom(name, websocket.TextMessage, b, exceptID)
	return nil
}

func (a *App) rooms() *RoomRegistry {
	a.roomsOnce.Do(func() {
		opts := a.wsOptions()
		a.roomRegistry = newRoomRegistry(opts.MaxRooms, opts.CleanupInterval)
		a.AddShutdownJob("websocket-rooms", func(ctx context.Context) error {
			a.roomRegistry.close()
			return nil
		})
	})

	return a.roomRegistry
}

// JoinRoom joins ws to the named room via its app's room registry.
func (ws *WSConn) JoinRoom(name string) bool {
	return ws.App.rooms().join(ws, name)
}

// LeaveRoom removes ws from the named room.
func (ws *WSConn) LeaveRoom(name string) {
	ws.App.rooms().leave(ws, name)
}

// BroadcastToRoom sends a raw frame to every other client in room.
func (ws *WSConn) BroadcastToRoom(name string, data []byte) {
	ws.App.rooms().broadcastToRoom(name, websocket.TextMessage, data, ws.ID)
}

// EmitToRoom sends a JSON event envelope to every other client in room,
// excluding the sender -- matching the self-excluded broadcast behavior
// spec section 4's acceptance scenario describes.
func (ws *WSConn) EmitToRoom(name, event string, args interface{}) error {
	return ws.App.rooms().emitToRoom(name, event, args, ws.ID)
}
