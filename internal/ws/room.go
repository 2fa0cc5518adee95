package ws

import (
	"sync"

	"github.com/gorilla/websocket"
)

const sendBuffer = 64

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	pageID    string
	sessionID string
	userID    string
}

// trySend queues a frame without blocking. Frames to a client that cannot
// keep up are dropped rather than stalling the room.
func (c *client) trySend(msg []byte) {
	select {
	case c.send <- msg:
	default:
	}
}

// Rooms tracks the connected clients per page.
type Rooms struct {
	mu    sync.Mutex
	rooms map[string]map[*client]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[string]map[*client]struct{})}
}

func (r *Rooms) join(c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[c.pageID]
	if !ok {
		room = make(map[*client]struct{})
		r.rooms[c.pageID] = room
	}
	room[c] = struct{}{}
}

func (r *Rooms) leave(c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[c.pageID]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(r.rooms, c.pageID)
	}
}

// broadcast queues msg for every client in the page's room. When except is
// non-nil that client is skipped.
func (r *Rooms) broadcast(pageID string, except *client, msg []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.rooms[pageID] {
		if c == except {
			continue
		}
		c.trySend(msg)
	}
}

func (r *Rooms) count(pageID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[pageID])
}
