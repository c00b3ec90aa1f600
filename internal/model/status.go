package model

import "time"

// PlayerEntry is one row of the status player table.
type PlayerEntry struct {
	UserID   int
	Name     string
	UniqueID string // STEAM_x:y:z, [U:1:n] or BOT
	Time     string
	Ping     int
	Loss     int
	State    string
	IsBot    bool
}

// ServerStatus is the typed result of parsing a `status` reply.
// Unparseable fields keep their zero value except Map ("unknown").
type ServerStatus struct {
	Map        string
	Players    int
	MaxPlayers int
	Uptime     int // seconds
	FPS        float64
	Hostname   string
	Version    string
	CPU        float64

	PlayerList      []PlayerEntry
	RealPlayerCount int
	BotCount        int

	Timestamp time.Time
}

// ActivePlayers returns the best player count for load accounting:
// the real-player count when a player table was parsed, the headline
// count otherwise.
func (s ServerStatus) ActivePlayers() int {
	if len(s.PlayerList) > 0 {
		return s.RealPlayerCount
	}
	return s.Players
}
