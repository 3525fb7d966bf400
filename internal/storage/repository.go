// Package storage persists player progression records.
package storage

import (
	"context"

	"github.com/codequest/quest-engine/internal/models"
)

// Repository is the persistence contract for progression records.
// GetProgression returns (nil, nil) when no record exists for the
// player and may serve a cached snapshot. GetProgressionForUpdate
// always reads the authoritative store; read-modify-write cycles must
// load through it or a stale cache read turns into a lost update.
// SaveProgression replaces the whole record atomically.
type Repository interface {
	GetProgression(ctx context.Context, playerID string) (*models.PlayerProgression, error)
	GetProgressionForUpdate(ctx context.Context, playerID string) (*models.PlayerProgression, error)
	SaveProgression(ctx context.Context, p *models.PlayerProgression) error
	Ping(ctx context.Context) error
	Close() error
}
