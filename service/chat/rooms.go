package chat

import (
	"sync"

	"github.com/gorilla/websocket"
)

// RoomHub maps conversation ids to the connections currently watching them.
// One connection watches at most one room at a time: joining a conversation
// leaves the previous one, so a client switching threads never keeps
// receiving stale-room broadcasts.
type RoomHub struct {
	mu       sync.RWMutex
	sessions map[string]*WsConn            // conn id -> conn
	byUser   map[string]map[string]*WsConn // user id -> conn id -> conn
	rooms    map[string]map[string]*WsConn // conversation id -> conn id -> conn
	connRoom map[string]string             // conn id -> conversation id

	fanout *Fanout
}

func NewRoomHub(fanout *Fanout) *RoomHub {
	return &RoomHub{
		sessions: make(map[string]*WsConn),
		byUser:   make(map[string]map[string]*WsConn),
		rooms:    make(map[string]map[string]*WsConn),
		connRoom: make(map[string]string),
		fanout:   fanout,
	}
}

// Attach registers a connection. A newer socket for the same user replaces
// any older one, enforcing one active socket per user session.
func (h *RoomHub) Attach(c *WsConn) {
	var replaced []*WsConn

	h.mu.Lock()
	if mm := h.byUser[c.UserID]; mm != nil {
		for id, old := range mm {
			replaced = append(replaced, old)
			h.detachLocked(id)
		}
	}
	h.sessions[c.ConnID] = c
	h.byUser[c.UserID] = map[string]*WsConn{c.ConnID: c}
	h.mu.Unlock()

	for _, old := range replaced {
		old.Close(4001, "session replaced")
	}
}

func (h *RoomHub) Detach(c *WsConn) {
	h.mu.Lock()
	h.detachLocked(c.ConnID)
	h.mu.Unlock()
}

func (h *RoomHub) detachLocked(connID string) {
	c, ok := h.sessions[connID]
	if !ok {
		return
	}
	delete(h.sessions, connID)
	if mm := h.byUser[c.UserID]; mm != nil {
		delete(mm, connID)
		if len(mm) == 0 {
			delete(h.byUser, c.UserID)
		}
	}
	h.leaveLocked(connID)
}

// Join moves the connection into the conversation's room, leaving any
// previous room first.
func (h *RoomHub) Join(conversationID string, c *WsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[c.ConnID]; !ok {
		return
	}
	h.leaveLocked(c.ConnID)

	room := h.rooms[conversationID]
	if room == nil {
		room = make(map[string]*WsConn)
		h.rooms[conversationID] = room
	}
	room[c.ConnID] = c
	h.connRoom[c.ConnID] = conversationID
}

func (h *RoomHub) Leave(c *WsConn) {
	h.mu.Lock()
	h.leaveLocked(c.ConnID)
	h.mu.Unlock()
}

func (h *RoomHub) leaveLocked(connID string) {
	convID, ok := h.connRoom[connID]
	if !ok {
		return
	}
	delete(h.connRoom, connID)
	if room := h.rooms[convID]; room != nil {
		delete(room, connID)
		if len(room) == 0 {
			delete(h.rooms, convID)
		}
	}
}

// Members snapshots the connections currently in the room.
func (h *RoomHub) Members(conversationID string) []*WsConn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room := h.rooms[conversationID]
	if len(room) == 0 {
		return nil
	}
	out := make([]*WsConn, 0, len(room))
	for _, c := range room {
		out = append(out, c)
	}
	return out
}

// Room reports which conversation the connection currently watches.
func (h *RoomHub) Room(connID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	convID, ok := h.connRoom[connID]
	return convID, ok
}

// BroadcastLocal delivers payload to every local member of the room.
// An empty room is a no-op; absentees catch up over REST on next open.
func (h *RoomHub) BroadcastLocal(conversationID string, payload []byte) int {
	members := h.Members(conversationID)
	if len(members) == 0 {
		return 0
	}
	h.fanout.Broadcast(members, payload)
	return len(members)
}

// Close tears down every tracked connection.
func (h *RoomHub) Close() {
	h.mu.Lock()
	conns := make([]*WsConn, 0, len(h.sessions))
	for _, c := range h.sessions {
		conns = append(conns, c)
	}
	h.sessions = make(map[string]*WsConn)
	h.byUser = make(map[string]map[string]*WsConn)
	h.rooms = make(map[string]map[string]*WsConn)
	h.connRoom = make(map[string]string)
	h.mu.Unlock()

	for _, c := range conns {
		c.Close(websocket.CloseGoingAway, "hub shutdown")
	}
}
