package model

// ServerInfo is the monitoring view of a server record.
type ServerInfo struct {
	ServerID int
	Name     string
	Game     string
	Address  string
	Port     int
	HasRcon  bool
	// CurrentPlayers is the count from the latest status write-through.
	CurrentPlayers int
	Tags           []string
}

// ServerLoad is one load-history row captured per successful status poll.
// ActivePlayers prefers the real (non-bot) count when the player list was
// parseable.
type ServerLoad struct {
	ServerID      int
	Timestamp     int64 // unix seconds
	ActivePlayers int
	MinPlayers    int
	MaxPlayers    int
	Map           string
	Uptime        string
	FPS           string
}
