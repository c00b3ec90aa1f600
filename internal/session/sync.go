package session

import (
	"context"
	"log/slog"

	"github.com/udisondev/rconherd/internal/model"
)

// PlayerResolver maps a steam id to the database player id. Implemented
// by the player-identity store; the zero resolver leaves ids unset.
type PlayerResolver interface {
	ResolvePlayerID(ctx context.Context, steamID string) (int, error)
}

// Sync reconciles a server's registry entries against the player table
// of the latest status snapshot.
type Sync struct {
	registry *Registry
	resolver PlayerResolver
}

// NewSync creates a Sync over the given registry. resolver may be nil.
func NewSync(registry *Registry, resolver PlayerResolver) *Sync {
	return &Sync{registry: registry, resolver: resolver}
}

// SynchronizeServerSessions makes the registry match players: present
// players are created or refreshed, vanished ones removed. Returns the
// number of live sessions after the sync.
func (s *Sync) SynchronizeServerSessions(ctx context.Context, serverID int, players []model.PlayerEntry) int {
	seen := make(map[int]struct{}, len(players))

	for _, p := range players {
		seen[p.UserID] = struct{}{}

		dbID := 0
		if s.resolver != nil && !p.IsBot {
			id, err := s.resolver.ResolvePlayerID(ctx, p.UniqueID)
			if err != nil {
				slog.Warn("resolving player id", "server", serverID, "steam_id", p.UniqueID, "err", err)
			} else {
				dbID = id
			}
		}

		s.registry.Create(model.PlayerSession{
			ServerID:         serverID,
			GameUserID:       p.UserID,
			DatabasePlayerID: dbID,
			SteamID:          p.UniqueID,
			PlayerName:       p.Name,
			IsBot:            p.IsBot,
		})
	}

	for _, existing := range s.registry.ServerSessions(serverID) {
		if _, ok := seen[existing.GameUserID]; !ok {
			s.registry.Delete(serverID, existing.GameUserID)
		}
	}

	return len(s.registry.ServerSessions(serverID))
}
