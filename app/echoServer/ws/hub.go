package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
)

// GeneralRoom is the room for connections without a club.
const GeneralRoom = "general"

func RoomFor(clubID *int64) string {
	if clubID == nil {
		return GeneralRoom
	}
	return "club:" + strconv.FormatInt(*clubID, 10)
}

// Hub tracks live connections grouped by room. Register and unregister go
// through Run; broadcasts take the read lock.
type Hub struct {
	rooms map[string]map[*Client]bool
	mu    sync.RWMutex

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	seq atomic.Int64
	log *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run serves register/unregister until ctx is done, then closes every
// connection.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()
	for {
		select {
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	if _, ok := h.rooms[c.room]; !ok {
		h.rooms[c.room] = make(map[*Client]bool)
	}
	h.rooms[c.room][c] = true
	online := h.onlineLocked(c.room)
	h.mu.Unlock()

	h.log.Info("ws client connected", "user_id", c.userID, "room", c.room)
	c.sendEvent(Event{Op: OpReady, Data: ReadyData{Room: c.room, Online: online}})
	h.Broadcast(c.room, Event{Op: OpMemberJoin, Data: PresenceData{UserID: c.userID, Username: c.username, Online: online}}, c)
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	clients, ok := h.rooms[c.room]
	if !ok || !clients[c] {
		h.mu.Unlock()
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.rooms, c.room)
	}
	online := h.onlineLocked(c.room)
	h.mu.Unlock()

	h.log.Info("ws client disconnected", "user_id", c.userID, "room", c.room)
	h.Broadcast(c.room, Event{Op: OpMemberLeave, Data: PresenceData{UserID: c.userID, Username: c.username, Online: online}}, nil)
}

func (h *Hub) shutdown() {
	close(h.done)
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.rooms {
		for c := range clients {
			close(c.send)
		}
	}
	h.rooms = make(map[string]map[*Client]bool)
	h.log.Info("ws hub stopped")
}

// onlineLocked lists distinct user ids in room. Caller holds mu.
func (h *Hub) onlineLocked(room string) []int64 {
	seen := map[int64]bool{}
	ids := []int64{}
	for c := range h.rooms[room] {
		if !seen[c.userID] {
			seen[c.userID] = true
			ids = append(ids, c.userID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Online returns the user ids connected to room.
func (h *Hub) Online(room string) []int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.onlineLocked(room)
}

// Broadcast sends event to every connection in room except skip. Slow
// connections are dropped.
func (h *Hub) Broadcast(room string, event Event, skip *Client) {
	event.Seq = h.seq.Add(1)
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("ws marshal failed", "op", event.Op, "err", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		if c == skip {
			continue
		}
		select {
		case c.send <- data:
		default:
			go h.leave(c)
		}
	}
}

// sendTo queues data for c if it is still registered.
func (h *Hub) sendTo(c *Client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.rooms[c.room][c] {
		return
	}
	select {
	case c.send <- data:
	default:
		go h.leave(c)
	}
}
