package game

import (
	"sync"

	"github.com/google/uuid"
)

// Registry indexes sessions by id and by user. It never touches session
// state, so its lock is held only for map operations.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	active   map[string]uuid.UUID
	byUser   map[string]map[uuid.UUID]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*Session),
		active:   make(map[string]uuid.UUID),
		byUser:   make(map[string]map[uuid.UUID]struct{}),
	}
}

// Add registers s as the active game of both its players. It fails if either
// player already has an active game.
func (r *Registry) Add(s *Session) error {
	white, black := s.cfg.White.UserID, s.cfg.Black.UserID

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, busy := r.active[white]; busy {
		return ErrAlreadyPlaying
	}
	if _, busy := r.active[black]; busy {
		return ErrAlreadyPlaying
	}
	r.sessions[s.id] = s
	for _, u := range []string{white, black} {
		r.active[u] = s.id
		if r.byUser[u] == nil {
			r.byUser[u] = make(map[uuid.UUID]struct{})
		}
		r.byUser[u][s.id] = struct{}{}
	}
	return nil
}

// Get returns a session that has not been reaped yet.
func (r *Registry) Get(id uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Active returns the running game of userID.
func (r *Registry) Active(userID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.active[userID]
	if !ok {
		return nil, false
	}
	s, ok := r.sessions[id]
	return s, ok
}

// ForUser returns every retained session userID plays in.
func (r *Registry) ForUser(userID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.byUser[userID]))
	for id := range r.byUser[userID] {
		if s, ok := r.sessions[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Retire drops the active-game entries of a finished session. The session
// stays reachable by id until Remove.
func (r *Registry) Retire(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for u, gameID := range r.activeOf(id) {
		if gameID == id {
			delete(r.active, u)
		}
	}
}

func (r *Registry) activeOf(id uuid.UUID) map[string]uuid.UUID {
	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	out := make(map[string]uuid.UUID, 2)
	for _, u := range []string{s.cfg.White.UserID, s.cfg.Black.UserID} {
		if gameID, ok := r.active[u]; ok {
			out[u] = gameID
		}
	}
	return out
}

// Remove forgets a session entirely.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return
	}
	for _, u := range []string{s.cfg.White.UserID, s.cfg.Black.UserID} {
		if r.active[u] == id {
			delete(r.active, u)
		}
		delete(r.byUser[u], id)
		if len(r.byUser[u]) == 0 {
			delete(r.byUser, u)
		}
	}
	delete(r.sessions, id)
}

// Counts returns the number of active and retained sessions.
func (r *Registry) Counts() (active, retained int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make(map[uuid.UUID]struct{}, len(r.active))
	for _, id := range r.active {
		ids[id] = struct{}{}
	}
	return len(ids), len(r.sessions)
}
