package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ServerConfigRepository reads the layered command configuration: a
// per-server value, a per-mod default, a process-wide default. Absent
// values come back as "".
type ServerConfigRepository struct {
	pool *pgxpool.Pool
}

// NewServerConfigRepository creates a new config repository.
func NewServerConfigRepository(pool *pgxpool.Pool) *ServerConfigRepository {
	return &ServerConfigRepository{pool: pool}
}

// GetServerConfig returns the per-server value of a parameter.
func (r *ServerConfigRepository) GetServerConfig(ctx context.Context, serverID int, parameter string) (string, error) {
	var value string
	err := r.pool.QueryRow(ctx,
		`SELECT value FROM servers_config WHERE server_id = $1 AND parameter = $2`,
		serverID, parameter,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading config %q for server %d: %w", parameter, serverID, err)
	}
	return value, nil
}

// GetModDefault returns the per-mod default of a parameter.
func (r *ServerConfigRepository) GetModDefault(ctx context.Context, game, parameter string) (string, error) {
	var value string
	err := r.pool.QueryRow(ctx,
		`SELECT value FROM mods_defaults WHERE code = $1 AND parameter = $2`,
		game, parameter,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading mod default %q for %q: %w", parameter, game, err)
	}
	return value, nil
}

// GetServerConfigDefault returns the process-wide default of a parameter.
func (r *ServerConfigRepository) GetServerConfigDefault(ctx context.Context, parameter string) (string, error) {
	var value string
	err := r.pool.QueryRow(ctx,
		`SELECT value FROM config_defaults WHERE parameter = $1`, parameter,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading config default %q: %w", parameter, err)
	}
	return value, nil
}
