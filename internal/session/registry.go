// Package session keeps the in-memory registry of players currently
// present on monitored servers.
package session

import (
	"sync"
	"time"

	"github.com/udisondev/rconherd/internal/model"
)

// Key is the primary session identity.
type Key struct {
	ServerID   int
	GameUserID int
}

type dbKey struct {
	ServerID int
	PlayerID int
}

type steamKey struct {
	ServerID int
	SteamID  string
}

// Registry is a multi-indexed session store. The primary map and the
// three secondary indices mutate in lock-step under one lock; a lookup
// through any index observes the same session value.
type Registry struct {
	mu       sync.RWMutex
	sessions map[Key]*model.PlayerSession
	byDBID   map[dbKey]Key
	bySteam  map[steamKey]Key
	byServer map[int]map[Key]struct{}

	now func() time.Time
}

// Stats is a point-in-time summary of the registry.
type Stats struct {
	TotalSessions      int
	ServerSessions     map[int]int
	BotSessions        int
	RealPlayerSessions int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[Key]*model.PlayerSession),
		byDBID:   make(map[dbKey]Key),
		bySteam:  make(map[steamKey]Key),
		byServer: make(map[int]map[Key]struct{}),
		now:      time.Now,
	}
}

// Create inserts a session, or refreshes the existing one when the
// primary key is already present: the name is updated (if provided) and
// LastSeen bumped, never a duplicate. Returns the stored session copy.
func (r *Registry) Create(s model.PlayerSession) model.PlayerSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := Key{ServerID: s.ServerID, GameUserID: s.GameUserID}
	now := r.now()

	if existing, ok := r.sessions[key]; ok {
		if s.PlayerName != "" {
			existing.PlayerName = s.PlayerName
		}
		existing.LastSeen = now
		return *existing
	}

	s.ConnectedAt = now
	s.LastSeen = now
	stored := s
	r.sessions[key] = &stored
	r.byDBID[dbKey{ServerID: s.ServerID, PlayerID: s.DatabasePlayerID}] = key
	r.bySteam[steamKey{ServerID: s.ServerID, SteamID: s.SteamID}] = key
	bucket, ok := r.byServer[s.ServerID]
	if !ok {
		bucket = make(map[Key]struct{})
		r.byServer[s.ServerID] = bucket
	}
	bucket[key] = struct{}{}
	return stored
}

// Update applies a patch to an existing session. Returns nil when the
// session does not exist.
func (r *Registry) Update(serverID, gameUserID int, patch model.SessionPatch) *model.PlayerSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[Key{ServerID: serverID, GameUserID: gameUserID}]
	if !ok {
		return nil
	}
	if patch.PlayerName != nil {
		s.PlayerName = *patch.PlayerName
	}
	if patch.LastSeen != nil {
		s.LastSeen = *patch.LastSeen
	} else {
		s.LastSeen = r.now()
	}
	out := *s
	return &out
}

// Delete removes one session from every index. Reports whether anything
// was removed.
func (r *Registry) Delete(serverID, gameUserID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteLocked(Key{ServerID: serverID, GameUserID: gameUserID})
}

// DeleteServerSessions drops every session of one server and returns the
// count removed.
func (r *Registry) DeleteServerSessions(serverID int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := r.byServer[serverID]
	removed := 0
	for key := range bucket {
		if r.deleteLocked(key) {
			removed++
		}
	}
	return removed
}

// Clear empties the registry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = make(map[Key]*model.PlayerSession)
	r.byDBID = make(map[dbKey]Key)
	r.bySteam = make(map[steamKey]Key)
	r.byServer = make(map[int]map[Key]struct{})
}

func (r *Registry) deleteLocked(key Key) bool {
	s, ok := r.sessions[key]
	if !ok {
		return false
	}
	delete(r.sessions, key)
	// Secondary keys can collide (bots share SteamID "BOT" and player id
	// 0); only drop an index entry that points at this session.
	if dk := (dbKey{ServerID: s.ServerID, PlayerID: s.DatabasePlayerID}); r.byDBID[dk] == key {
		delete(r.byDBID, dk)
	}
	if sk := (steamKey{ServerID: s.ServerID, SteamID: s.SteamID}); r.bySteam[sk] == key {
		delete(r.bySteam, sk)
	}
	if bucket, ok := r.byServer[s.ServerID]; ok {
		delete(bucket, key)
		if len(bucket) == 0 {
			delete(r.byServer, s.ServerID)
		}
	}
	return true
}

// GetByGameUserID looks up a session by its primary key.
func (r *Registry) GetByGameUserID(serverID, gameUserID int) *model.PlayerSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sessions[Key{ServerID: serverID, GameUserID: gameUserID}]; ok {
		out := *s
		return &out
	}
	return nil
}

// GetByDatabasePlayerID looks up a session through the player-id index.
func (r *Registry) GetByDatabasePlayerID(serverID, playerID int) *model.PlayerSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if key, ok := r.byDBID[dbKey{ServerID: serverID, PlayerID: playerID}]; ok {
		out := *r.sessions[key]
		return &out
	}
	return nil
}

// GetBySteamID looks up a session through the steam-id index.
func (r *Registry) GetBySteamID(serverID int, steamID string) *model.PlayerSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if key, ok := r.bySteam[steamKey{ServerID: serverID, SteamID: steamID}]; ok {
		out := *r.sessions[key]
		return &out
	}
	return nil
}

// ServerSessions returns copies of every session on one server.
func (r *Registry) ServerSessions(serverID int) []model.PlayerSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket := r.byServer[serverID]
	out := make([]model.PlayerSession, 0, len(bucket))
	for key := range bucket {
		out = append(out, *r.sessions[key])
	}
	return out
}

// GetStats summarizes the registry.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Stats{
		TotalSessions:  len(r.sessions),
		ServerSessions: make(map[int]int, len(r.byServer)),
	}
	for serverID, bucket := range r.byServer {
		st.ServerSessions[serverID] = len(bucket)
	}
	for _, s := range r.sessions {
		if s.IsBot {
			st.BotSessions++
		} else {
			st.RealPlayerSessions++
		}
	}
	return st
}
