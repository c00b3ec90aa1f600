package model

import "time"

// PlayerSession is a live in-memory record of a player currently present
// on a server. Identity is the composite (ServerID, GameUserID); the same
// SteamID on two servers is two independent sessions.
type PlayerSession struct {
	ServerID         int
	GameUserID       int
	DatabasePlayerID int
	SteamID          string
	PlayerName       string
	IsBot            bool
	ConnectedAt      time.Time
	LastSeen         time.Time
}

// SessionPatch carries the mutable fields of an Update call.
// Nil pointers leave the field untouched.
type SessionPatch struct {
	PlayerName *string
	LastSeen   *time.Time
}
