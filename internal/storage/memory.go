package storage

import (
	"context"
	"sync"

	"github.com/codequest/quest-engine/internal/models"
)

// MemoryRepository is an in-memory Repository for tests and
// single-node development. Records are deep-copied on both reads and
// writes so callers never share state with the store.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*models.PlayerProgression
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*models.PlayerProgression)}
}

func (r *MemoryRepository) GetProgression(ctx context.Context, playerID string) (*models.PlayerProgression, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.records[playerID]
	if !ok {
		return nil, nil
	}
	return p.Clone(), nil
}

func (r *MemoryRepository) GetProgressionForUpdate(ctx context.Context, playerID string) (*models.PlayerProgression, error) {
	return r.GetProgression(ctx, playerID)
}

func (r *MemoryRepository) SaveProgression(ctx context.Context, p *models.PlayerProgression) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[p.PlayerID] = p.Clone()
	return nil
}

func (r *MemoryRepository) Ping(ctx context.Context) error { return nil }

func (r *MemoryRepository) Close() error { return nil }
