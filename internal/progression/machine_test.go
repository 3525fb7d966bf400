package progression

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/codequest/quest-engine/internal/catalog"
	"github.com/codequest/quest-engine/internal/models"
	"github.com/codequest/quest-engine/internal/storage"
)

func testQuest(id string, xp int) *models.QuestDefinition {
	return &models.QuestDefinition{
		ID:    id,
		Title: "Quest " + id,
		Mode:  models.ModeFunction,
		Signature: &models.FunctionSignature{
			Name:       "getSum",
			ReturnType: models.TypeInt,
			Params: []models.Parameter{
				{Name: "a", Type: models.TypeInt},
				{Name: "b", Type: models.TypeInt},
			},
		},
		Template:  "int getSum(int a, int b) {\n\treturn 0;\n}\n",
		TestCases: []models.TestCase{{Input: []any{2, 3}, Expected: "5", Sample: true}},
		XPReward:  xp,
	}
}

func testCatalog(t *testing.T) *catalog.Loader {
	t.Helper()
	levels := []*models.LevelDefinition{
		{
			ID:       "L01",
			Title:    "Variables",
			Concept:  "variables",
			XPReward: 90,
			Quests: []*models.QuestDefinition{
				testQuest("L01E01", 30),
				testQuest("L01E02", 30),
				testQuest("L01E03", 30),
			},
		},
		{
			ID:       "L02",
			Title:    "Conditionals",
			Concept:  "conditionals",
			XPReward: 60,
			Quests: []*models.QuestDefinition{
				testQuest("L02E01", 30),
				testQuest("L02E02", 30),
			},
		},
	}
	cat, err := catalog.New(levels)
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}
	return cat
}

func newTestMachine(t *testing.T) *Machine {
	t.Helper()
	return New(testCatalog(t), storage.NewMemoryRepository())
}

func TestNewPlayerSeesFirstLevelUnlocked(t *testing.T) {
	m := newTestMachine(t)

	levels, err := m.AvailableLevels(context.Background(), "alice")
	if err != nil {
		t.Fatalf("AvailableLevels() error = %v", err)
	}
	if len(levels) != 2 {
		t.Fatalf("got %d levels, want 2", len(levels))
	}
	if levels[0].State != models.LevelInProgress {
		t.Errorf("L01 state = %s, want %s", levels[0].State, models.LevelInProgress)
	}
	if levels[1].State != models.LevelLocked {
		t.Errorf("L02 state = %s, want %s", levels[1].State, models.LevelLocked)
	}
}

func TestRecordQuestCompletionUnknownQuest(t *testing.T) {
	m := newTestMachine(t)

	_, _, err := m.RecordQuestCompletion(context.Background(), "alice", "nope")
	if !errors.Is(err, catalog.ErrQuestNotFound) {
		t.Errorf("error = %v, want ErrQuestNotFound", err)
	}
}

func TestRecordQuestCompletionAwardsXP(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	delta, snapshot, err := m.RecordQuestCompletion(ctx, "alice", "L01E01")
	if err != nil {
		t.Fatalf("RecordQuestCompletion() error = %v", err)
	}
	if delta.AlreadyCompleted {
		t.Error("first completion reported AlreadyCompleted")
	}
	if delta.XPAwarded != 30 || delta.NewTotalXP != 30 {
		t.Errorf("delta = %+v, want 30 XP awarded and total", delta)
	}
	if len(delta.CompletedLevelIDs) != 0 || len(delta.UnlockedLevelIDs) != 0 {
		t.Errorf("single quest changed levels: %+v", delta)
	}
	if snapshot.TotalXP != 30 || len(snapshot.CompletedQuestIDs) != 1 {
		t.Errorf("snapshot = %+v", snapshot)
	}
}

func TestRecordQuestCompletionIdempotent(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	if _, _, err := m.RecordQuestCompletion(ctx, "alice", "L01E01"); err != nil {
		t.Fatalf("first completion error = %v", err)
	}

	delta, snapshot, err := m.RecordQuestCompletion(ctx, "alice", "L01E01")
	if err != nil {
		t.Fatalf("repeat completion error = %v", err)
	}
	if !delta.AlreadyCompleted {
		t.Error("repeat completion not flagged AlreadyCompleted")
	}
	if delta.XPAwarded != 0 {
		t.Errorf("repeat completion awarded %d XP", delta.XPAwarded)
	}
	if snapshot.TotalXP != 30 {
		t.Errorf("TotalXP = %d, want 30", snapshot.TotalXP)
	}
}

func TestCompletingLevelUnlocksNext(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	for _, questID := range []string{"L01E01", "L01E02"} {
		if _, _, err := m.RecordQuestCompletion(ctx, "alice", questID); err != nil {
			t.Fatalf("completion error = %v", err)
		}
	}

	delta, snapshot, err := m.RecordQuestCompletion(ctx, "alice", "L01E03")
	if err != nil {
		t.Fatalf("final completion error = %v", err)
	}
	if len(delta.CompletedLevelIDs) != 1 || delta.CompletedLevelIDs[0] != "L01" {
		t.Errorf("CompletedLevelIDs = %v, want [L01]", delta.CompletedLevelIDs)
	}
	if len(delta.UnlockedLevelIDs) != 1 || delta.UnlockedLevelIDs[0] != "L02" {
		t.Errorf("UnlockedLevelIDs = %v, want [L02]", delta.UnlockedLevelIDs)
	}
	if delta.NewTotalXP != 90 {
		t.Errorf("NewTotalXP = %d, want 90", delta.NewTotalXP)
	}
	if snapshot.CurrentLevelID != "L02" {
		t.Errorf("CurrentLevelID = %s, want L02", snapshot.CurrentLevelID)
	}

	levels, err := m.AvailableLevels(ctx, "alice")
	if err != nil {
		t.Fatalf("AvailableLevels() error = %v", err)
	}
	if levels[0].State != models.LevelCompleted {
		t.Errorf("L01 state = %s, want %s", levels[0].State, models.LevelCompleted)
	}
	if levels[1].State != models.LevelInProgress {
		t.Errorf("L02 state = %s, want %s", levels[1].State, models.LevelInProgress)
	}
}

func TestLevelQuestsStates(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	if _, _, err := m.RecordQuestCompletion(ctx, "alice", "L01E01"); err != nil {
		t.Fatalf("completion error = %v", err)
	}

	quests, err := m.LevelQuests(ctx, "alice", "L01")
	if err != nil {
		t.Fatalf("LevelQuests() error = %v", err)
	}
	if quests[0].State != models.QuestCompleted {
		t.Errorf("L01E01 state = %s, want %s", quests[0].State, models.QuestCompleted)
	}
	if quests[1].State != models.QuestAvailable {
		t.Errorf("L01E02 state = %s, want %s", quests[1].State, models.QuestAvailable)
	}

	locked, err := m.LevelQuests(ctx, "alice", "L02")
	if err != nil {
		t.Fatalf("LevelQuests(L02) error = %v", err)
	}
	for _, q := range locked {
		if q.State != models.QuestLocked {
			t.Errorf("%s state = %s, want %s", q.QuestID, q.State, models.QuestLocked)
		}
	}

	if _, err := m.LevelQuests(ctx, "alice", "L99"); !errors.Is(err, catalog.ErrLevelNotFound) {
		t.Errorf("unknown level error = %v, want ErrLevelNotFound", err)
	}
}

func TestPlayersProgressIndependently(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	if _, _, err := m.RecordQuestCompletion(ctx, "alice", "L01E01"); err != nil {
		t.Fatalf("completion error = %v", err)
	}

	progress, err := m.Progress(ctx, "bob")
	if err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	if progress.TotalXP != 0 || len(progress.CompletedQuestIDs) != 0 {
		t.Errorf("bob inherited alice's progress: %+v", progress)
	}
}

func TestOnChangeHook(t *testing.T) {
	m := newTestMachine(t)

	var events []models.ProgressionEvent
	m.SetOnChange(func(ev models.ProgressionEvent) { events = append(events, ev) })

	ctx := context.Background()
	if _, _, err := m.RecordQuestCompletion(ctx, "alice", "L01E01"); err != nil {
		t.Fatalf("completion error = %v", err)
	}
	// Idempotent repeat must not emit.
	if _, _, err := m.RecordQuestCompletion(ctx, "alice", "L01E01"); err != nil {
		t.Fatalf("repeat error = %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].QuestID != "L01E01" || events[0].TotalXP != 30 {
		t.Errorf("event = %+v", events[0])
	}
}

func TestConcurrentCompletionsAwardEachQuestOnce(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	quests := []string{"L01E01", "L01E02", "L01E03"}
	const attemptsPerQuest = 4

	var wg sync.WaitGroup
	var mu sync.Mutex
	awarded := 0
	repeats := 0
	for _, questID := range quests {
		for i := 0; i < attemptsPerQuest; i++ {
			wg.Add(1)
			go func(questID string) {
				defer wg.Done()
				delta, _, err := m.RecordQuestCompletion(ctx, "alice", questID)
				if err != nil {
					t.Errorf("RecordQuestCompletion(%s) error = %v", questID, err)
					return
				}
				mu.Lock()
				awarded += delta.XPAwarded
				if delta.AlreadyCompleted {
					repeats++
				}
				mu.Unlock()
			}(questID)
		}
	}
	wg.Wait()

	if awarded != 90 {
		t.Errorf("total XP awarded across racing calls = %d, want 90", awarded)
	}
	if repeats != len(quests)*(attemptsPerQuest-1) {
		t.Errorf("repeat completions = %d, want %d", repeats, len(quests)*(attemptsPerQuest-1))
	}

	progress, err := m.Progress(ctx, "alice")
	if err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	if progress.TotalXP != 90 || len(progress.CompletedQuestIDs) != 3 {
		t.Errorf("racing completions lost an update: %+v", progress)
	}
}

func TestCompletionNotFooledByStaleCacheEntry(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	inner := storage.NewMemoryRepository()
	repo := storage.NewCachedRepository(inner, rdb, time.Minute)
	m := New(testCatalog(t), repo)
	ctx := context.Background()

	if _, _, err := m.RecordQuestCompletion(ctx, "alice", "L01E01"); err != nil {
		t.Fatalf("first completion error = %v", err)
	}

	// A read-through racing that mutation can re-cache the player's
	// pre-completion snapshot. The next mutation must still see the
	// committed record, not the cache.
	stale, _ := json.Marshal(models.NewPlayerProgression("alice", "L01"))
	if err := mr.Set("progression:alice", string(stale)); err != nil {
		t.Fatalf("seed cache error = %v", err)
	}

	delta, snapshot, err := m.RecordQuestCompletion(ctx, "alice", "L01E02")
	if err != nil {
		t.Fatalf("second completion error = %v", err)
	}
	if delta.NewTotalXP != 60 {
		t.Errorf("NewTotalXP = %d, want 60", delta.NewTotalXP)
	}
	if len(snapshot.CompletedQuestIDs) != 2 {
		t.Errorf("CompletedQuestIDs = %v, want both quests", snapshot.CompletedQuestIDs)
	}

	persisted, err := inner.GetProgression(ctx, "alice")
	if err != nil {
		t.Fatalf("inner read error = %v", err)
	}
	if persisted.TotalXP != 60 || !persisted.CompletedQuests["L01E01"] || !persisted.CompletedQuests["L01E02"] {
		t.Errorf("persisted record lost the first completion: %+v", persisted)
	}
}

type failingRepo struct {
	*storage.MemoryRepository
	failSave bool
}

func (r *failingRepo) SaveProgression(ctx context.Context, p *models.PlayerProgression) error {
	if r.failSave {
		return fmt.Errorf("connection refused")
	}
	return r.MemoryRepository.SaveProgression(ctx, p)
}

func TestSaveFailureLeavesStateUntouched(t *testing.T) {
	repo := &failingRepo{MemoryRepository: storage.NewMemoryRepository()}
	m := New(testCatalog(t), repo)
	ctx := context.Background()

	if _, _, err := m.RecordQuestCompletion(ctx, "alice", "L01E01"); err != nil {
		t.Fatalf("completion error = %v", err)
	}

	repo.failSave = true
	_, _, err := m.RecordQuestCompletion(ctx, "alice", "L01E02")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("error = %v, want ErrStoreUnavailable", err)
	}

	repo.failSave = false
	progress, err := m.Progress(ctx, "alice")
	if err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	if progress.TotalXP != 30 || len(progress.CompletedQuestIDs) != 1 {
		t.Errorf("failed save mutated state: %+v", progress)
	}
}
