package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PlayerRepository maps Steam unique ids to database player ids for the
// session registry. Unknown ids resolve to 0.
type PlayerRepository struct {
	pool *pgxpool.Pool
}

// NewPlayerRepository creates a new player repository.
func NewPlayerRepository(pool *pgxpool.Pool) *PlayerRepository {
	return &PlayerRepository{pool: pool}
}

// ResolvePlayerID returns the database player id behind a Steam id, 0
// when unmapped.
func (r *PlayerRepository) ResolvePlayerID(ctx context.Context, steamID string) (int, error) {
	var playerID int
	err := r.pool.QueryRow(ctx,
		`SELECT player_id FROM player_uniqueids WHERE unique_id = $1`, steamID,
	).Scan(&playerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("resolving player id for %q: %w", steamID, err)
	}
	return playerID, nil
}
