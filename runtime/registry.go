package runtime

import (
	"chat-relay/contract"
	"sync"
)

// Registry is the single source of truth for "who is online, in which room".
// It keeps two maps in lockstep: a user appears in users iff its connection
// appears in sessions with the same user id.
type Registry struct {
	mu       sync.RWMutex
	users    map[string]contract.Connection           // map user -> connection
	sessions map[contract.Connection]contract.Session // map connection -> session
}

func NewRegistry() *Registry {
	return &Registry{
		users:    make(map[string]contract.Connection),
		sessions: make(map[contract.Connection]contract.Session),
	}
}

// Register binds a connection to a user and a chat.
// The last join wins: if the user was bound to another connection, that connection
// loses its session and is returned so the caller can log it. Its transport stays open.
// If the connection was previously bound to another user, that user goes offline in the registry.
func (r *Registry) Register(conn contract.Connection, userID, chatID string) contract.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted contract.Connection
	if previous, ok := r.users[userID]; ok && previous != conn {
		delete(r.sessions, previous)
		evicted = previous
	}
	if previous, ok := r.sessions[conn]; ok && previous.UserID != userID {
		delete(r.users, previous.UserID)
	}

	r.users[userID] = conn
	r.sessions[conn] = contract.Session{Conn: conn, UserID: userID, ChatID: chatID}
	return evicted
}

func (r *Registry) Lookup(conn contract.Connection) (contract.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[conn]
	return session, ok
}

// Unregister removes the session bound to a connection and returns it.
// A connection without session is a valid idle state, not an error.
func (r *Registry) Unregister(conn contract.Connection) (contract.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[conn]
	if !ok {
		return contract.Session{}, false
	}
	delete(r.sessions, conn)
	if r.users[session.UserID] == conn {
		delete(r.users, session.UserID)
	}
	return session, true
}

// Sessions returns a snapshot of the sessions currently joined to a chat.
// Membership is scanned live instead of being maintained per room.
func (r *Registry) Sessions(chatID string) []contract.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var members []contract.Session
	for _, session := range r.sessions {
		if session.ChatID == chatID {
			members = append(members, session)
		}
	}
	return members
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
