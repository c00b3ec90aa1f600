package protocol

import (
	"context"
	"time"

	"github.com/udisondev/rconherd/internal/model"
)

// Conn is one RCON transport to a single server. Implementations are
// safe for sequential use; concurrent Execute calls must be serialized
// by the caller (GoldSource is half duplex over UDP).
type Conn interface {
	// Connect establishes and authenticates the transport.
	Connect(ctx context.Context) error
	// Execute runs one command and returns the reply body.
	Execute(ctx context.Context, command string) (string, error)
	// Close tears the transport down. Idempotent.
	Close() error
	// Connected reports whether the transport is usable.
	Connected() bool
	// Engine identifies the wire protocol family.
	Engine() model.GameEngine
}

// New builds the transport matching the credentials' engine:
// GoldSource gets the UDP challenge client, both Source branches the TCP
// client.
func New(creds model.RconCredentials, connectTimeout, commandTimeout time.Duration) Conn {
	if creds.Engine == model.EngineGoldSrc {
		return NewGoldsrcConn(creds.Addr(), creds.Password,
			WithGoldsrcTimeouts(connectTimeout, commandTimeout))
	}
	return NewSourceConn(creds.Addr(), creds.Password, creds.Engine,
		WithSourceTimeouts(connectTimeout, commandTimeout))
}
