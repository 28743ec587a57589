package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/samber/lo"

	"github.com/cwrk-planet/room-chat/internal/domain"
	"github.com/cwrk-planet/room-chat/internal/metrics"
	"github.com/cwrk-planet/room-chat/internal/presence"
)

// Hub maps rooms to live connections. It implements presence.Broadcaster and
// holds no business rules.
type Hub struct {
	log *slog.Logger

	mu    sync.RWMutex
	conns map[presence.ConnID]*Conn
	rooms map[domain.RoomKey]map[presence.ConnID]struct{} // room -> set of connections
}

var _ presence.Broadcaster = (*Hub)(nil)

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:   log,
		conns: make(map[presence.ConnID]*Conn),
		rooms: make(map[domain.RoomKey]map[presence.ConnID]struct{}),
	}
}

func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.id] = c
}

// Unregister forgets the connection and removes it from every room.
func (h *Hub) Unregister(id presence.ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.conns, id)
	for key, rs := range h.rooms {
		delete(rs, id)
		if len(rs) == 0 {
			delete(h.rooms, key)
		}
	}
}

func (h *Hub) Attach(room domain.RoomKey, id presence.ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[id]; !ok {
		return
	}
	rs, ok := h.rooms[room]
	if !ok {
		rs = make(map[presence.ConnID]struct{})
		h.rooms[room] = rs
	}
	rs[id] = struct{}{}
}

func (h *Hub) Detach(room domain.RoomKey, id presence.ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rs, ok := h.rooms[room]; ok {
		delete(rs, id)
		if len(rs) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Broadcast queues ev for every connection attached to room and returns how
// many accepted it. Best-effort: full or closed connections are skipped.
func (h *Hub) Broadcast(room domain.RoomKey, ev presence.Event) int {
	frame, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("ws encode failed", "type", ev.Type, "err", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for id := range h.rooms[room] {
		if h.conns[id].enqueue(frame) {
			delivered++
			continue
		}
		metrics.SendsDropped.Inc()
		h.log.Debug("ws frame dropped", "room", room, "conn", id)
	}
	return delivered
}

func (h *Hub) SendTo(id presence.ConnID, ev presence.Event) {
	frame, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("ws encode failed", "type", ev.Type, "err", err)
		return
	}

	h.mu.RLock()
	c, ok := h.conns[id]
	h.mu.RUnlock()
	if !ok || !c.enqueue(frame) {
		metrics.SendsDropped.Inc()
	}
}

// Members returns the connections attached to room.
func (h *Hub) Members(room domain.RoomKey) []presence.ConnID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return lo.Keys(h.rooms[room])
}

func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
