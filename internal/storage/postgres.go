package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codequest/quest-engine/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository.
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 5
	}
	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Ping checks database connectivity.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// GetProgression retrieves a player's progression record. Returns
// (nil, nil) when the player has no record yet.
func (r *PostgresRepository) GetProgression(ctx context.Context, playerID string) (*models.PlayerProgression, error) {
	query := `
		SELECT player_id, total_xp, completed_quests, current_level_id, updated_at
		FROM player_progressions
		WHERE player_id = $1
	`

	var p models.PlayerProgression
	var completedJSON []byte

	err := r.pool.QueryRow(ctx, query, playerID).Scan(
		&p.PlayerID,
		&p.TotalXP,
		&completedJSON,
		&p.CurrentLevelID,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get progression: %w", err)
	}

	if err := json.Unmarshal(completedJSON, &p.CompletedQuests); err != nil {
		return nil, fmt.Errorf("failed to unmarshal completed quests: %w", err)
	}
	if p.CompletedQuests == nil {
		p.CompletedQuests = make(map[string]bool)
	}

	return &p, nil
}

// GetProgressionForUpdate reads the current record. Postgres is the
// authoritative store, so this is the same read as GetProgression.
func (r *PostgresRepository) GetProgressionForUpdate(ctx context.Context, playerID string) (*models.PlayerProgression, error) {
	return r.GetProgression(ctx, playerID)
}

// SaveProgression upserts the whole progression record in one statement.
func (r *PostgresRepository) SaveProgression(ctx context.Context, p *models.PlayerProgression) error {
	completedJSON, err := json.Marshal(p.CompletedQuests)
	if err != nil {
		return fmt.Errorf("failed to marshal completed quests: %w", err)
	}

	query := `
		INSERT INTO player_progressions (player_id, total_xp, completed_quests, current_level_id, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (player_id) DO UPDATE SET
			total_xp = EXCLUDED.total_xp,
			completed_quests = EXCLUDED.completed_quests,
			current_level_id = EXCLUDED.current_level_id,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.pool.Exec(ctx, query,
		p.PlayerID,
		p.TotalXP,
		completedJSON,
		p.CurrentLevelID,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save progression: %w", err)
	}
	return nil
}
