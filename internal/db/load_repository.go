package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/udisondev/rconherd/internal/model"
)

// LoadRepository appends load-history rows, one per status poll.
type LoadRepository struct {
	pool *pgxpool.Pool
}

// NewLoadRepository creates a new load repository.
func NewLoadRepository(pool *pgxpool.Pool) *LoadRepository {
	return &LoadRepository{pool: pool}
}

// Insert appends one load row.
func (r *LoadRepository) Insert(ctx context.Context, load model.ServerLoad) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO server_load (server_id, timestamp, act_players, min_players, max_players, map, uptime, fps)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		load.ServerID, load.Timestamp, load.ActivePlayers, load.MinPlayers,
		load.MaxPlayers, load.Map, load.Uptime, load.FPS,
	)
	if err != nil {
		return fmt.Errorf("inserting load row for server %d: %w", load.ServerID, err)
	}
	return nil
}
