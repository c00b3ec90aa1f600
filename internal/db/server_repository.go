package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/udisondev/rconherd/internal/model"
)

// ServerRepository reads the server records the daemon monitors.
type ServerRepository struct {
	pool *pgxpool.Pool
}

// NewServerRepository creates a new server repository.
func NewServerRepository(pool *pgxpool.Pool) *ServerRepository {
	return &ServerRepository{pool: pool}
}

// FindActiveServersWithRcon returns every server carrying a stored RCON
// password, ordered by id.
func (r *ServerRepository) FindActiveServersWithRcon(ctx context.Context) ([]model.ServerInfo, error) {
	query := `
		SELECT server_id, name, game, address, port, rcon <> '', act_players, tags
		FROM servers
		WHERE rcon <> ''
		ORDER BY server_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("loading servers with rcon: %w", err)
	}
	defer rows.Close()

	var servers []model.ServerInfo
	for rows.Next() {
		var s model.ServerInfo
		if err := rows.Scan(&s.ServerID, &s.Name, &s.Game, &s.Address, &s.Port,
			&s.HasRcon, &s.CurrentPlayers, &s.Tags); err != nil {
			return nil, fmt.Errorf("scanning server row: %w", err)
		}
		servers = append(servers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating server rows: %w", err)
	}

	return servers, nil
}

// FindByID loads one server record. Returns nil, nil when absent.
func (r *ServerRepository) FindByID(ctx context.Context, serverID int) (*model.ServerInfo, error) {
	query := `
		SELECT server_id, name, game, address, port, rcon <> '', act_players, tags
		FROM servers
		WHERE server_id = $1
	`

	var s model.ServerInfo
	err := r.pool.QueryRow(ctx, query, serverID).Scan(
		&s.ServerID, &s.Name, &s.Game, &s.Address, &s.Port,
		&s.HasRcon, &s.CurrentPlayers, &s.Tags)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading server %d: %w", serverID, err)
	}

	return &s, nil
}

// HasRconCredentials reports whether a server row exists with a
// non-empty stored password.
func (r *ServerRepository) HasRconCredentials(ctx context.Context, serverID int) (bool, error) {
	var has bool
	err := r.pool.QueryRow(ctx,
		`SELECT rcon <> '' FROM servers WHERE server_id = $1`, serverID,
	).Scan(&has)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking rcon for server %d: %w", serverID, err)
	}
	return has, nil
}
