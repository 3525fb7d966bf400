// Package catalog loads and validates the static level/quest definitions
// at process start. Definitions are immutable for the process lifetime;
// any validation failure refuses startup.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/codequest/quest-engine/internal/harness"
	"github.com/codequest/quest-engine/internal/models"
)

// Common errors
var (
	ErrLevelNotFound = errors.New("level not found")
	ErrQuestNotFound = errors.New("quest not found")
	ErrNoMoreHints   = errors.New("no more hints")
)

// Loader holds the validated catalog. Read-only after construction.
type Loader struct {
	levels  []*models.LevelDefinition
	byLevel map[string]*models.LevelDefinition
	byQuest map[string]*models.QuestDefinition
}

// Load reads all YAML level files from a directory, one level per file,
// and validates the resulting catalog.
func Load(dir string) (*Loader, error) {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no level files found in %s", dir)
	}
	sort.Strings(files)

	levels := make([]*models.LevelDefinition, 0, len(files))
	for _, file := range files {
		level, err := loadFile(file)
		if err != nil {
			return nil, fmt.Errorf("level file %s: %w", filepath.Base(file), err)
		}
		levels = append(levels, level)
	}

	return New(levels)
}

// loadFile parses a single level YAML file.
func loadFile(path string) (*models.LevelDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var level models.LevelDefinition
	if err := yaml.Unmarshal(data, &level); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &level, nil
}

// New validates the given levels and builds the lookup indexes.
// Levels are ordered by id; unlock progression follows that order.
func New(levels []*models.LevelDefinition) (*Loader, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("catalog has no levels")
	}

	sorted := make([]*models.LevelDefinition, len(levels))
	copy(sorted, levels)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	l := &Loader{
		levels:  sorted,
		byLevel: make(map[string]*models.LevelDefinition),
		byQuest: make(map[string]*models.QuestDefinition),
	}

	for _, level := range sorted {
		if err := l.validateLevel(level); err != nil {
			return nil, fmt.Errorf("level %q: %w", level.ID, err)
		}
		l.byLevel[level.ID] = level
	}

	slog.Info("catalog loaded", "levels", len(sorted), "quests", len(l.byQuest))
	return l, nil
}

// validateLevel enforces the load-time invariants for one level.
func (l *Loader) validateLevel(level *models.LevelDefinition) error {
	if level.ID == "" {
		return fmt.Errorf("level id is required")
	}
	if _, dup := l.byLevel[level.ID]; dup {
		return fmt.Errorf("duplicate level id")
	}
	if level.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(level.Quests) == 0 {
		return fmt.Errorf("at least one quest is required")
	}

	xpSum := 0
	for _, quest := range level.Quests {
		if err := l.validateQuest(quest); err != nil {
			return fmt.Errorf("quest %q: %w", quest.ID, err)
		}
		quest.LevelID = level.ID
		l.byQuest[quest.ID] = quest
		xpSum += quest.XPReward
	}

	if xpSum != level.XPReward {
		return fmt.Errorf("quest xp rewards sum to %d, level declares %d", xpSum, level.XPReward)
	}
	return nil
}

// validateQuest enforces the load-time invariants for one quest,
// including type-checking every test case input against the signature.
func (l *Loader) validateQuest(quest *models.QuestDefinition) error {
	if quest.ID == "" {
		return fmt.Errorf("quest id is required")
	}
	if _, dup := l.byQuest[quest.ID]; dup {
		return fmt.Errorf("duplicate quest id")
	}
	if quest.Template == "" {
		return fmt.Errorf("code template is required")
	}
	if quest.XPReward <= 0 {
		return fmt.Errorf("xp reward must be positive")
	}
	if quest.Mode == "" {
		quest.Mode = models.ModeFunction
	}
	if len(quest.TestCases) == 0 {
		return fmt.Errorf("at least one test case is required")
	}

	hasSample := false
	for _, tc := range quest.TestCases {
		if tc.Sample {
			hasSample = true
		}
	}
	if !hasSample {
		return fmt.Errorf("at least one test case must be marked sample")
	}

	switch quest.Mode {
	case models.ModeFunction:
		return l.validateSignature(quest)
	case models.ModeProgram:
		if quest.Signature != nil {
			return fmt.Errorf("program quests must not declare a signature")
		}
		for i, tc := range quest.TestCases {
			if len(tc.Input) > 0 {
				return fmt.Errorf("test case %d: program quests take stdin, not typed inputs", i)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown quest mode %q", quest.Mode)
	}
}

func (l *Loader) validateSignature(quest *models.QuestDefinition) error {
	sig := quest.Signature
	if sig == nil {
		return fmt.Errorf("function quests require a signature")
	}
	if sig.Name == "" {
		return fmt.Errorf("signature name is required")
	}
	if !models.ValidReturnType(sig.ReturnType) {
		return fmt.Errorf("unrecognized return type %q", sig.ReturnType)
	}
	for _, p := range sig.Params {
		if !models.ValidParamType(p.Type) {
			return fmt.Errorf("unrecognized parameter type %q", p.Type)
		}
	}
	for i, tc := range quest.TestCases {
		if _, err := harness.FormatArgs(sig.Params, tc.Input); err != nil {
			return fmt.Errorf("test case %d: %w", i, err)
		}
	}
	return nil
}

// Levels returns all levels in catalog order.
func (l *Loader) Levels() []*models.LevelDefinition {
	return l.levels
}

// FirstLevelID returns the id of the first level in catalog order.
func (l *Loader) FirstLevelID() string {
	return l.levels[0].ID
}

// Level returns a level by id.
func (l *Loader) Level(id string) (*models.LevelDefinition, error) {
	level, ok := l.byLevel[id]
	if !ok {
		return nil, ErrLevelNotFound
	}
	return level, nil
}

// Quest returns a quest and its containing level by quest id.
func (l *Loader) Quest(id string) (*models.QuestDefinition, *models.LevelDefinition, error) {
	quest, ok := l.byQuest[id]
	if !ok {
		return nil, nil, ErrQuestNotFound
	}
	return quest, l.byLevel[quest.LevelID], nil
}

// Hint returns hint i for a quest, or ErrNoMoreHints past the end.
// Hints are pure catalog lookups, independent across quests.
func (l *Loader) Hint(questID string, index int) (string, error) {
	quest, ok := l.byQuest[questID]
	if !ok {
		return "", ErrQuestNotFound
	}
	if index < 0 || index >= len(quest.Hints) {
		return "", ErrNoMoreHints
	}
	return quest.Hints[index], nil
}
