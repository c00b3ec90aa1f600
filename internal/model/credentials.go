package model

import "fmt"

// RconCredentials is everything needed to open an authenticated RCON
// session to one server. Produced by the credentials repository on demand
// with the password already decrypted; never cached across failures.
type RconCredentials struct {
	ServerID int
	Address  string
	Port     int
	Password string
	Engine   GameEngine
}

// Validate checks the credentials are usable before any dial is attempted.
func (c RconCredentials) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("server %d: empty address", c.ServerID)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("server %d: port %d out of range", c.ServerID, c.Port)
	}
	if c.Password == "" {
		return fmt.Errorf("server %d: empty rcon password", c.ServerID)
	}
	return nil
}

// Addr returns the host:port dial target.
func (c RconCredentials) Addr() string {
	return fmt.Sprintf("%s:%d", c.Address, c.Port)
}
