// Package progression tracks per-player quest completion, XP and level
// unlocking. All mutations for a player are serialized and persisted as
// a single atomic record write; level completion is always derived from
// the completed-quest set against the catalog, never stored on its own.
package progression

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/codequest/quest-engine/internal/catalog"
	"github.com/codequest/quest-engine/internal/models"
	"github.com/codequest/quest-engine/internal/storage"
)

// ErrStoreUnavailable marks persistence failures. The player's prior
// state is untouched and the operation can be retried.
var ErrStoreUnavailable = errors.New("progression store unavailable")

// Machine applies completions and answers progression queries.
type Machine struct {
	catalog *catalog.Loader
	repo    storage.Repository

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	onChange func(models.ProgressionEvent)
}

// New creates a Machine backed by the given catalog and repository.
func New(cat *catalog.Loader, repo storage.Repository) *Machine {
	return &Machine{
		catalog: cat,
		repo:    repo,
		locks:   make(map[string]*sync.Mutex),
	}
}

// SetOnChange registers a hook invoked after every successful mutation.
// The hook runs on the mutating goroutine and must not block.
func (m *Machine) SetOnChange(fn func(models.ProgressionEvent)) {
	m.onChange = fn
}

// playerLock returns the mutex serializing mutations for one player.
func (m *Machine) playerLock(playerID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[playerID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[playerID] = lock
	}
	return lock
}

// load fetches the player's record for queries, defaulting to a fresh
// one positioned at the first level. May be served from a cache.
func (m *Machine) load(ctx context.Context, playerID string) (*models.PlayerProgression, error) {
	p, err := m.repo.GetProgression(ctx, playerID)
	return m.defaulted(p, err, playerID)
}

// loadForUpdate fetches the authoritative record for a mutation.
// Mutations must never start from a cached snapshot: a concurrent
// read-through can re-cache pre-mutation state, and a read-modify-write
// seeded from it would drop the earlier completion.
func (m *Machine) loadForUpdate(ctx context.Context, playerID string) (*models.PlayerProgression, error) {
	p, err := m.repo.GetProgressionForUpdate(ctx, playerID)
	return m.defaulted(p, err, playerID)
}

func (m *Machine) defaulted(p *models.PlayerProgression, err error, playerID string) (*models.PlayerProgression, error) {
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if p == nil {
		p = models.NewPlayerProgression(playerID, m.catalog.FirstLevelID())
	}
	return p, nil
}

// RecordQuestCompletion marks a quest completed for a player. Repeat
// completions are no-ops that award nothing and report the current
// state. On success the delta lists newly completed and newly unlocked
// level ids.
func (m *Machine) RecordQuestCompletion(ctx context.Context, playerID, questID string) (*models.ProgressionDelta, *models.ProgressSummary, error) {
	quest, _, err := m.catalog.Quest(questID)
	if err != nil {
		return nil, nil, err
	}

	lock := m.playerLock(playerID)
	lock.Lock()
	defer lock.Unlock()

	current, err := m.loadForUpdate(ctx, playerID)
	if err != nil {
		return nil, nil, err
	}

	if current.QuestCompleted(questID) {
		delta := &models.ProgressionDelta{QuestID: questID, AlreadyCompleted: true, NewTotalXP: current.TotalXP}
		return delta, m.snapshot(current), nil
	}

	beforeCompleted := m.completedLevelIDs(current)
	beforeUnlocked := m.unlockedLevelIDs(current)

	next := current.Clone()
	next.CompletedQuests[questID] = true
	next.TotalXP += quest.XPReward
	next.CurrentLevelID = m.currentLevelID(next)
	next.UpdatedAt = time.Now().UTC()

	if err := m.repo.SaveProgression(ctx, next); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	delta := &models.ProgressionDelta{
		QuestID:           questID,
		XPAwarded:         quest.XPReward,
		NewTotalXP:        next.TotalXP,
		CompletedLevelIDs: diff(m.completedLevelIDs(next), beforeCompleted),
		UnlockedLevelIDs:  diff(m.unlockedLevelIDs(next), beforeUnlocked),
	}

	slog.Info("quest completed",
		"player_id", playerID,
		"quest_id", questID,
		"xp_awarded", delta.XPAwarded,
		"total_xp", delta.NewTotalXP,
		"unlocked_levels", delta.UnlockedLevelIDs)

	if m.onChange != nil {
		m.onChange(models.ProgressionEvent{
			Type:              "quest_completed",
			PlayerID:          playerID,
			QuestID:           questID,
			XPAwarded:         delta.XPAwarded,
			TotalXP:           delta.NewTotalXP,
			CompletedLevelIDs: delta.CompletedLevelIDs,
			UnlockedLevelIDs:  delta.UnlockedLevelIDs,
			At:                next.UpdatedAt,
		})
	}

	return delta, m.snapshot(next), nil
}

// AvailableLevels returns every level with its derived state for the
// player, in catalog order.
func (m *Machine) AvailableLevels(ctx context.Context, playerID string) ([]models.LevelSummary, error) {
	p, err := m.load(ctx, playerID)
	if err != nil {
		return nil, err
	}

	unlocked := toSet(m.unlockedLevelIDs(p))
	summaries := make([]models.LevelSummary, 0, len(m.catalog.Levels()))
	for _, level := range m.catalog.Levels() {
		done := m.completedQuestCount(p, level)
		state := models.LevelLocked
		switch {
		case done == len(level.Quests):
			state = models.LevelCompleted
		case unlocked[level.ID]:
			state = models.LevelInProgress
		}
		summaries = append(summaries, models.LevelSummary{
			LevelID:             level.ID,
			Title:               level.Title,
			Concept:             level.Concept,
			State:               state,
			Locked:              state == models.LevelLocked,
			Completed:           state == models.LevelCompleted,
			CompletedQuestCount: done,
			TotalQuestCount:     len(level.Quests),
		})
	}
	return summaries, nil
}

// LevelQuests returns the player's view of one level's quests in
// declared order. Quests in a locked level are locked; quests in an
// unlocked level are available until completed.
func (m *Machine) LevelQuests(ctx context.Context, playerID, levelID string) ([]models.QuestInfo, error) {
	level, err := m.catalog.Level(levelID)
	if err != nil {
		return nil, err
	}
	p, err := m.load(ctx, playerID)
	if err != nil {
		return nil, err
	}

	unlocked := toSet(m.unlockedLevelIDs(p))[levelID]
	infos := make([]models.QuestInfo, 0, len(level.Quests))
	for _, quest := range level.Quests {
		state := models.QuestLocked
		switch {
		case p.QuestCompleted(quest.ID):
			state = models.QuestCompleted
		case unlocked:
			state = models.QuestAvailable
		}
		infos = append(infos, models.QuestInfo{
			QuestID:   quest.ID,
			Title:     quest.Title,
			Order:     quest.Order,
			XPReward:  quest.XPReward,
			State:     state,
			Completed: state == models.QuestCompleted,
			Template:  quest.Template,
			Signature: quest.Signature,
			HintCount: len(quest.Hints),
		})
	}
	return infos, nil
}

// Progress returns the compact progress snapshot for a player.
func (m *Machine) Progress(ctx context.Context, playerID string) (*models.ProgressSummary, error) {
	p, err := m.load(ctx, playerID)
	if err != nil {
		return nil, err
	}
	return m.snapshot(p), nil
}

func (m *Machine) snapshot(p *models.PlayerProgression) *models.ProgressSummary {
	completed := make([]string, 0, len(p.CompletedQuests))
	for id := range p.CompletedQuests {
		completed = append(completed, id)
	}
	sort.Strings(completed)

	return &models.ProgressSummary{
		PlayerID:          p.PlayerID,
		TotalXP:           p.TotalXP,
		CompletedQuestIDs: completed,
		CompletedLevelIDs: m.completedLevelIDs(p),
		CurrentLevelID:    p.CurrentLevelID,
	}
}

func (m *Machine) completedQuestCount(p *models.PlayerProgression, level *models.LevelDefinition) int {
	n := 0
	for _, quest := range level.Quests {
		if p.QuestCompleted(quest.ID) {
			n++
		}
	}
	return n
}

func (m *Machine) levelCompleted(p *models.PlayerProgression, level *models.LevelDefinition) bool {
	return m.completedQuestCount(p, level) == len(level.Quests)
}

// completedLevelIDs derives completed levels in catalog order.
func (m *Machine) completedLevelIDs(p *models.PlayerProgression) []string {
	var ids []string
	for _, level := range m.catalog.Levels() {
		if m.levelCompleted(p, level) {
			ids = append(ids, level.ID)
		}
	}
	return ids
}

// unlockedLevelIDs derives unlocked levels: the first level is always
// unlocked, and each further level unlocks once every quest of its
// predecessor is completed.
func (m *Machine) unlockedLevelIDs(p *models.PlayerProgression) []string {
	levels := m.catalog.Levels()
	ids := make([]string, 0, len(levels))
	for i, level := range levels {
		if i > 0 && !m.levelCompleted(p, levels[i-1]) {
			break
		}
		ids = append(ids, level.ID)
	}
	return ids
}

// currentLevelID is the first unlocked level that is not yet completed,
// or the last level once everything is done.
func (m *Machine) currentLevelID(p *models.PlayerProgression) string {
	unlocked := m.unlockedLevelIDs(p)
	for _, id := range unlocked {
		level, _ := m.catalog.Level(id)
		if !m.levelCompleted(p, level) {
			return id
		}
	}
	return unlocked[len(unlocked)-1]
}

// diff returns the elements of after that are not in before.
func diff(after, before []string) []string {
	seen := toSet(before)
	var out []string
	for _, id := range after {
		if !seen[id] {
			out = append(out, id)
		}
	}
	return out
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
