package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/udisondev/rconherd/internal/crypto"
	"github.com/udisondev/rconherd/internal/model"
)

// CredentialsRepository materializes connection credentials from server
// rows. Passwords are stored blowfish-encrypted and decrypted on every
// read, never cached.
type CredentialsRepository struct {
	pool  *pgxpool.Pool
	vault *crypto.Vault
}

// NewCredentialsRepository creates a new credentials repository.
func NewCredentialsRepository(pool *pgxpool.Pool, vault *crypto.Vault) *CredentialsRepository {
	return &CredentialsRepository{pool: pool, vault: vault}
}

// GetRconCredentials loads and decrypts the credentials of one server.
// Returns nil, nil when the server is absent or has no stored password.
func (r *CredentialsRepository) GetRconCredentials(ctx context.Context, serverID int) (*model.RconCredentials, error) {
	var (
		address   string
		port      int
		game      string
		encrypted string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT address, port, game, rcon FROM servers WHERE server_id = $1`, serverID,
	).Scan(&address, &port, &game, &encrypted)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading credentials for server %d: %w", serverID, err)
	}
	if encrypted == "" {
		return nil, nil
	}

	password, err := r.vault.Decrypt(encrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypting rcon password for server %d: %w", serverID, err)
	}

	return &model.RconCredentials{
		ServerID: serverID,
		Address:  address,
		Port:     port,
		Password: password,
		Engine:   model.ClassifyEngine(game),
	}, nil
}

// UpdateServerStatus writes the latest status snapshot through to the
// server row.
func (r *CredentialsRepository) UpdateServerStatus(ctx context.Context, serverID int, st model.ServerStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE servers
		 SET act_players = $1, max_players = $2, act_map = $3, hostname = $4, last_event = $5
		 WHERE server_id = $6`,
		st.ActivePlayers(), st.MaxPlayers, st.Map, st.Hostname, time.Now(), serverID,
	)
	if err != nil {
		return fmt.Errorf("updating status for server %d: %w", serverID, err)
	}
	return nil
}
