package network

import (
	"sync"

	"go.uber.org/zap"
)

// Hub is the registry of live clients, keyed by session and then player.
// Each (session, player) pair holds at most one client; registering a new
// one replaces the old.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*Client
	log      *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		sessions: make(map[string]map[string]*Client),
		log:      log.Named("hub"),
	}
}

// register adds c, closing any client it replaces. The replaced client ends
// without an OnDisconnect callback.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	players, ok := h.sessions[c.SessionID()]
	if !ok {
		players = make(map[string]*Client)
		h.sessions[c.SessionID()] = players
	}
	old := players[c.PlayerID()]
	players[c.PlayerID()] = c
	h.mu.Unlock()

	if old != nil && old != c {
		h.log.Debug("connection replaced",
			zap.String("session", c.SessionID()), zap.String("player", c.PlayerID()))
		old.stop()
	}
}

// unregister removes c if it is still the registered handle for its key and
// reports whether it was.
func (h *Hub) unregister(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) bool {
	players, ok := h.sessions[c.SessionID()]
	if !ok || players[c.PlayerID()] != c {
		return false
	}
	delete(players, c.PlayerID())
	if len(players) == 0 {
		delete(h.sessions, c.SessionID())
	}
	return true
}

func (h *Hub) clients(sessionID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	players := h.sessions[sessionID]
	out := make([]*Client, 0, len(players))
	for _, c := range players {
		out = append(out, c)
	}
	return out
}

// Broadcast delivers msg to every client of the session. A client whose
// buffer is full is evicted; its read loop then reports the disconnect.
func (h *Hub) Broadcast(sessionID string, msg Message) {
	for _, c := range h.clients(sessionID) {
		if !c.Send(msg) {
			h.evict(c)
		}
	}
}

// SendTo delivers msg to one player if connected. It reports whether the
// message was queued.
func (h *Hub) SendTo(sessionID, playerID string, msg Message) bool {
	h.mu.RLock()
	c := h.sessions[sessionID][playerID]
	h.mu.RUnlock()
	if c == nil {
		return false
	}
	if !c.Send(msg) {
		h.evict(c)
		return false
	}
	return true
}

// evict drops a client that cannot keep up. The removal and the evicted
// mark happen under the hub lock so the client's read loop always sees one
// of them.
func (h *Hub) evict(c *Client) {
	h.mu.Lock()
	removed := h.removeLocked(c)
	if removed {
		c.markEvicted()
	}
	h.mu.Unlock()
	if !removed {
		return
	}
	h.log.Warn("evicting slow client",
		zap.String("session", c.SessionID()), zap.String("player", c.PlayerID()))
	c.stop()
}

// Connected returns the ids of players with a live client in the session.
func (h *Hub) Connected(sessionID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	players := h.sessions[sessionID]
	out := make([]string, 0, len(players))
	for id := range players {
		out = append(out, id)
	}
	return out
}

// CloseSession ends every client of the session with the given code.
func (h *Hub) CloseSession(sessionID string, code int, reason string) {
	for _, c := range h.clients(sessionID) {
		c.Close(code, reason)
	}
}

// Count returns the number of live clients across all sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, players := range h.sessions {
		n += len(players)
	}
	return n
}
