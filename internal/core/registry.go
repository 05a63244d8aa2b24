package core

import (
	"sync"

	"github.com/rs/zerolog"
)

// Registry tracks which account each live connection has authenticated as
// and fans outbound events to every session of an account. It is the only
// shared mutable state in the realtime path; one mutex serializes all
// register/unregister/broadcast operations so no caller ever observes a
// partially updated session set.
type Registry struct {
	mu       sync.Mutex
	byUser   map[int64]map[*Client]struct{}
	byClient map[*Client]int64

	log *zerolog.Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger *zerolog.Logger) *Registry {
	return &Registry{
		byUser:   make(map[int64]map[*Client]struct{}),
		byClient: make(map[*Client]int64),
		log:      logger,
	}
}

// Register binds a client to an account, creating a session. If the client
// already had a session its old binding is removed first, so re-authentication
// rebinds rather than duplicating.
func (r *Registry) Register(c *Client, userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(c)

	sessions, ok := r.byUser[userID]
	if !ok {
		sessions = make(map[*Client]struct{})
		r.byUser[userID] = sessions
	}
	sessions[c] = struct{}{}
	r.byClient[c] = userID
}

// Unregister removes the session bound to the client, if any. Idempotent.
func (r *Registry) Unregister(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(c)
}

// AccountOf reports the account the client is bound to, if authenticated.
func (r *Registry) AccountOf(c *Client) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byClient[c]
	return userID, ok
}

// Sessions reports the number of live sessions for an account.
func (r *Registry) Sessions(userID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.byUser[userID])
}

// Broadcast delivers an event to every session of the account and returns
// the number of sessions it reached. A session that cannot accept the event
// (closed, or its buffer is full) is closed and unregistered; delivery to
// the remaining sessions continues.
func (r *Registry) Broadcast(userID int64, ev *Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	delivered := 0
	for c := range r.byUser[userID] {
		if c.TrySend(ev) {
			delivered++
			continue
		}
		if r.log != nil {
			r.log.Debug().
				Str("client_id", c.ID).
				Int64("user_id", userID).
				Msg("dropping undeliverable session")
		}
		c.Close()
		r.removeLocked(c)
	}
	return delivered
}

// removeLocked deletes the client's session. Caller holds r.mu.
func (r *Registry) removeLocked(c *Client) {
	userID, ok := r.byClient[c]
	if !ok {
		return
	}
	delete(r.byClient, c)

	sessions := r.byUser[userID]
	delete(sessions, c)
	if len(sessions) == 0 {
		delete(r.byUser, userID)
	}
}
