package models

import "time"

// QuestState is the per-player state of a single quest.
type QuestState string

const (
	QuestLocked    QuestState = "locked"
	QuestAvailable QuestState = "available"
	QuestCompleted QuestState = "completed"
)

// LevelState is the derived per-player state of a level. A level is
// completed iff every quest in it is completed; it is never set directly.
type LevelState string

const (
	LevelLocked     LevelState = "locked"
	LevelInProgress LevelState = "in_progress"
	LevelCompleted  LevelState = "completed"
)

// PlayerProgression is the persisted per-player record. Total XP is
// monotonically non-decreasing; completed level ids are always derived
// from CompletedQuests against the catalog, never stored.
type PlayerProgression struct {
	PlayerID        string          `json:"player_id"`
	TotalXP         int             `json:"total_xp"`
	CompletedQuests map[string]bool `json:"completed_quests"`
	CurrentLevelID  string          `json:"current_level_id"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewPlayerProgression returns the default record for first contact:
// zero XP, nothing completed, positioned at the first level.
func NewPlayerProgression(playerID, firstLevelID string) *PlayerProgression {
	return &PlayerProgression{
		PlayerID:        playerID,
		CompletedQuests: make(map[string]bool),
		CurrentLevelID:  firstLevelID,
		UpdatedAt:       time.Now().UTC(),
	}
}

// Clone returns a deep copy so callers can build the next state without
// touching the prior one.
func (p *PlayerProgression) Clone() *PlayerProgression {
	cp := *p
	cp.CompletedQuests = make(map[string]bool, len(p.CompletedQuests))
	for k, v := range p.CompletedQuests {
		cp.CompletedQuests[k] = v
	}
	return &cp
}

// QuestCompleted reports whether the player finished the given quest.
func (p *PlayerProgression) QuestCompleted(questID string) bool {
	return p.CompletedQuests[questID]
}

// ProgressionDelta describes what a single recorded completion changed.
// AlreadyCompleted marks the idempotent no-op case.
type ProgressionDelta struct {
	QuestID           string   `json:"quest_id"`
	AlreadyCompleted  bool     `json:"already_completed"`
	XPAwarded         int      `json:"xp_awarded"`
	NewTotalXP        int      `json:"new_total_xp"`
	CompletedLevelIDs []string `json:"completed_level_ids,omitempty"`
	UnlockedLevelIDs  []string `json:"unlocked_level_ids,omitempty"`
}

// LevelSummary is the per-level view returned by getAvailableLevels.
type LevelSummary struct {
	LevelID             string     `json:"level_id"`
	Title               string     `json:"title"`
	Concept             string     `json:"concept"`
	State               LevelState `json:"state"`
	Locked              bool       `json:"locked"`
	Completed           bool       `json:"completed"`
	CompletedQuestCount int        `json:"completed_quest_count"`
	TotalQuestCount     int        `json:"total_quest_count"`
}

// QuestInfo is the per-quest view returned by getLevelQuests.
type QuestInfo struct {
	QuestID   string             `json:"quest_id"`
	Title     string             `json:"title"`
	Order     int                `json:"order"`
	XPReward  int                `json:"xp_reward"`
	State     QuestState         `json:"state"`
	Completed bool               `json:"completed"`
	Template  string             `json:"template"`
	Signature *FunctionSignature `json:"signature,omitempty"`
	HintCount int                `json:"hint_count"`
}

// ProgressSummary is the compact view returned by getProgress.
type ProgressSummary struct {
	PlayerID          string   `json:"player_id"`
	TotalXP           int      `json:"total_xp"`
	CompletedQuestIDs []string `json:"completed_quest_ids"`
	CompletedLevelIDs []string `json:"completed_level_ids"`
	CurrentLevelID    string   `json:"current_level_id"`
}

// ProgressionEvent is emitted through the change-notification hook after
// a successful mutation.
type ProgressionEvent struct {
	Type              string    `json:"type"`
	PlayerID          string    `json:"player_id"`
	QuestID           string    `json:"quest_id"`
	XPAwarded         int       `json:"xp_awarded"`
	TotalXP           int       `json:"total_xp"`
	CompletedLevelIDs []string  `json:"completed_level_ids,omitempty"`
	UnlockedLevelIDs  []string  `json:"unlocked_level_ids,omitempty"`
	At                time.Time `json:"at"`
}
