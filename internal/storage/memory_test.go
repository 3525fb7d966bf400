package storage

import (
	"context"
	"testing"
	"time"

	"github.com/codequest/quest-engine/internal/models"
)

func TestMemoryRepositoryMissingPlayer(t *testing.T) {
	repo := NewMemoryRepository()

	p, err := repo.GetProgression(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("GetProgression() error = %v", err)
	}
	if p != nil {
		t.Errorf("GetProgression() = %+v, want nil", p)
	}
}

func TestMemoryRepositoryRoundTrip(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	in := &models.PlayerProgression{
		PlayerID:        "alice",
		TotalXP:         60,
		CompletedQuests: map[string]bool{"L01E01": true, "L01E02": true},
		CurrentLevelID:  "L01",
		UpdatedAt:       time.Now().UTC(),
	}
	if err := repo.SaveProgression(ctx, in); err != nil {
		t.Fatalf("SaveProgression() error = %v", err)
	}

	out, err := repo.GetProgression(ctx, "alice")
	if err != nil {
		t.Fatalf("GetProgression() error = %v", err)
	}
	if out.TotalXP != 60 || !out.CompletedQuests["L01E02"] {
		t.Errorf("round trip lost data: %+v", out)
	}
}

func TestMemoryRepositoryIsolatesCallers(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	in := &models.PlayerProgression{
		PlayerID:        "bob",
		CompletedQuests: map[string]bool{"L01E01": true},
		CurrentLevelID:  "L01",
	}
	if err := repo.SaveProgression(ctx, in); err != nil {
		t.Fatalf("SaveProgression() error = %v", err)
	}

	// Mutating the saved value must not affect the store.
	in.CompletedQuests["L01E02"] = true

	out, err := repo.GetProgression(ctx, "bob")
	if err != nil {
		t.Fatalf("GetProgression() error = %v", err)
	}
	if out.CompletedQuests["L01E02"] {
		t.Error("store shares state with caller")
	}

	// Mutating a read value must not affect later reads.
	out.TotalXP = 999
	again, _ := repo.GetProgression(ctx, "bob")
	if again.TotalXP == 999 {
		t.Error("reads share state between callers")
	}
}
