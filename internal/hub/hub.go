package hub

import (
	"log"
	"sync"
)

// Session is one live transport connection. The server's write pump drains
// Send; the hub only ever queues onto it without blocking.
type Session struct {
	ID       string
	PlayerID string
	GameID   string
	Send     chan []byte

	closed bool
}

func NewSession(id string) *Session {
	return &Session{
		ID:   id,
		Send: make(chan []byte, 256),
	}
}

// Hub is the connection registry: it maps live sessions to participant
// identities and game membership, and owns the unicast/broadcast
// primitives. Delivery to a dead or stalled peer is silently dropped.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session            // session ID -> session
	byPlayer map[string]*Session            // player ID -> bound session
	members  map[string]map[string]struct{} // game ID -> player ID set
}

func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]*Session),
		byPlayer: make(map[string]*Session),
		members:  make(map[string]map[string]struct{}),
	}
}

// Bind associates a session with a participant and its game. Rebinding a
// session replaces its prior association; binding a participant who already
// has a live session supersedes the old session for delivery purposes.
func (h *Hub) Bind(session *Session, playerID, gameID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if session.PlayerID != "" && session.PlayerID != playerID {
		h.removeMembership(session)
		if h.byPlayer[session.PlayerID] == session {
			delete(h.byPlayer, session.PlayerID)
		}
	}

	session.PlayerID = playerID
	session.GameID = gameID
	h.sessions[session.ID] = session
	h.byPlayer[playerID] = session

	if h.members[gameID] == nil {
		h.members[gameID] = make(map[string]struct{})
	}
	h.members[gameID][playerID] = struct{}{}

	log.Printf("Session %s bound to player %s in game %s", session.ID, playerID, gameID)
}

// Unicast queues a message for the participant's bound session. Offline
// participants are a no-op, not an error.
func (h *Hub) Unicast(playerID string, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	session, ok := h.byPlayer[playerID]
	if !ok {
		return
	}
	h.trySend(session, message)
}

// Send queues a message for a specific session, bound or not. The
// dispatcher uses it for replies and targeted errors before any binding
// exists.
func (h *Hub) Send(session *Session, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.trySend(session, message)
}

// Broadcast queues a message for every participant bound to the game.
// Each delivery is independent; a dead session does not block the rest.
func (h *Hub) Broadcast(gameID string, message []byte) {
	h.mu.RLock()
	var stalled []*Session
	for playerID := range h.members[gameID] {
		session, ok := h.byPlayer[playerID]
		if !ok {
			continue
		}
		if !h.trySend(session, message) {
			stalled = append(stalled, session)
		}
	}
	h.mu.RUnlock()

	for _, session := range stalled {
		log.Printf("Session %s send buffer full, dropping connection", session.ID)
		h.Unbind(session)
	}
}

// trySend must be called with at least a read lock held so it cannot race
// the channel close in Unbind.
func (h *Hub) trySend(session *Session, message []byte) bool {
	if session.closed {
		return true
	}
	select {
	case session.Send <- message:
		return true
	default:
		return false
	}
}

// Unbind removes the session's participant from its game's membership on
// transport close. The game state cache is untouched; state does not
// depend on connection count.
func (h *Hub) Unbind(session *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[session.ID]; ok {
		delete(h.sessions, session.ID)
	}
	if session.PlayerID != "" && h.byPlayer[session.PlayerID] == session {
		delete(h.byPlayer, session.PlayerID)
	}
	h.removeMembership(session)

	if !session.closed {
		session.closed = true
		close(session.Send)
	}
}

func (h *Hub) removeMembership(session *Session) {
	if session.GameID == "" || session.PlayerID == "" {
		return
	}
	if set, ok := h.members[session.GameID]; ok {
		// Only drop membership if this session still owns the binding;
		// a reconnect may have superseded it.
		if h.byPlayer[session.PlayerID] == nil || h.byPlayer[session.PlayerID] == session {
			delete(set, session.PlayerID)
		}
		if len(set) == 0 {
			delete(h.members, session.GameID)
		}
	}
}

// CloseSession force-closes the participant's bound session, used when a
// host removes a player.
func (h *Hub) CloseSession(playerID string) {
	h.mu.RLock()
	session, ok := h.byPlayer[playerID]
	h.mu.RUnlock()
	if ok {
		h.Unbind(session)
	}
}

// GamePlayers reports the participant IDs currently bound to a game.
func (h *Hub) GamePlayers(gameID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var ids []string
	for playerID := range h.members[gameID] {
		ids = append(ids, playerID)
	}
	return ids
}

// DropGame removes all membership and bindings for a deleted game.
func (h *Hub) DropGame(gameID string) {
	h.mu.RLock()
	var toClose []*Session
	for playerID := range h.members[gameID] {
		if session, ok := h.byPlayer[playerID]; ok {
			toClose = append(toClose, session)
		}
	}
	h.mu.RUnlock()

	for _, session := range toClose {
		h.Unbind(session)
	}
}
