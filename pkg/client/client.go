// Package client is a Go SDK for the quest-engine HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a Go SDK for the quest-engine API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new quest-engine client
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// TestCaseResult is one graded test case.
type TestCaseResult struct {
	Index        int    `json:"index"`
	Sample       bool   `json:"sample"`
	Passed       bool   `json:"passed"`
	Input        []any  `json:"input,omitempty"`
	Stdin        string `json:"stdin,omitempty"`
	Expected     string `json:"expected,omitempty"`
	Actual       string `json:"actual,omitempty"`
	Stderr       string `json:"stderr,omitempty"`
	ExitCode     *int   `json:"exit_code"`
	CompileError string `json:"compile_error,omitempty"`
	TimedOut     bool   `json:"timed_out"`
	DurationMs   int64  `json:"duration_ms"`
}

// ProgressionDelta describes what a successful submission changed.
type ProgressionDelta struct {
	QuestID           string   `json:"quest_id"`
	AlreadyCompleted  bool     `json:"already_completed"`
	XPAwarded         int      `json:"xp_awarded"`
	NewTotalXP        int      `json:"new_total_xp"`
	CompletedLevelIDs []string `json:"completed_level_ids,omitempty"`
	UnlockedLevelIDs  []string `json:"unlocked_level_ids,omitempty"`
}

// SubmissionResult is the graded outcome of one submission.
type SubmissionResult struct {
	SubmissionID string            `json:"submission_id"`
	QuestID      string            `json:"quest_id"`
	PlayerID     string            `json:"player_id"`
	TestOnly     bool              `json:"test_only"`
	Success      bool              `json:"success"`
	CompileError string            `json:"compile_error,omitempty"`
	TestCases    []TestCaseResult  `json:"test_cases"`
	DurationMs   int64             `json:"duration_ms"`
	SubmittedAt  time.Time         `json:"submitted_at"`
	Progression  *ProgressionDelta `json:"progression,omitempty"`
}

// LevelSummary is the per-player view of one level.
type LevelSummary struct {
	LevelID             string `json:"level_id"`
	Title               string `json:"title"`
	Concept             string `json:"concept"`
	State               string `json:"state"`
	Locked              bool   `json:"locked"`
	Completed           bool   `json:"completed"`
	CompletedQuestCount int    `json:"completed_quest_count"`
	TotalQuestCount     int    `json:"total_quest_count"`
}

// QuestInfo is the per-player view of one quest.
type QuestInfo struct {
	QuestID   string `json:"quest_id"`
	Title     string `json:"title"`
	Order     int    `json:"order"`
	XPReward  int    `json:"xp_reward"`
	State     string `json:"state"`
	Completed bool   `json:"completed"`
	Template  string `json:"template"`
	HintCount int    `json:"hint_count"`
}

// ProgressSummary is a player's compact progress snapshot.
type ProgressSummary struct {
	PlayerID          string   `json:"player_id"`
	TotalXP           int      `json:"total_xp"`
	CompletedQuestIDs []string `json:"completed_quest_ids"`
	CompletedLevelIDs []string `json:"completed_level_ids"`
	CurrentLevelID    string   `json:"current_level_id"`
}

// Hint is one quest hint.
type Hint struct {
	QuestID string `json:"quest_id"`
	Index   int    `json:"index"`
	Hint    string `json:"hint"`
}

// SubmitRequest is the body for Submit.
type SubmitRequest struct {
	PlayerID string `json:"player_id"`
	Code     string `json:"code"`
	TestOnly bool   `json:"test_only,omitempty"`
}

// Submit posts code for a quest and returns the graded result.
func (c *Client) Submit(ctx context.Context, questID string, req SubmitRequest) (*SubmissionResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.doRequest(ctx, "POST", fmt.Sprintf("/api/v1/quests/%s/submissions", questID), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var result SubmissionResult
	if err := decodeData(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetHint fetches hint number index for a quest.
func (c *Client) GetHint(ctx context.Context, questID string, index int) (*Hint, error) {
	resp, err := c.doRequest(ctx, "GET", fmt.Sprintf("/api/v1/quests/%s/hints/%d", questID, index), nil)
	if err != nil {
		return nil, err
	}

	var hint Hint
	if err := decodeData(resp, &hint); err != nil {
		return nil, err
	}
	return &hint, nil
}

// ListLevels returns all levels with the player's state for each.
func (c *Client) ListLevels(ctx context.Context, playerID string) ([]LevelSummary, error) {
	resp, err := c.doRequest(ctx, "GET", fmt.Sprintf("/api/v1/players/%s/levels", playerID), nil)
	if err != nil {
		return nil, err
	}

	var levels []LevelSummary
	if err := decodeData(resp, &levels); err != nil {
		return nil, err
	}
	return levels, nil
}

// ListLevelQuests returns one level's quests with the player's state.
func (c *Client) ListLevelQuests(ctx context.Context, playerID, levelID string) ([]QuestInfo, error) {
	resp, err := c.doRequest(ctx, "GET", fmt.Sprintf("/api/v1/players/%s/levels/%s/quests", playerID, levelID), nil)
	if err != nil {
		return nil, err
	}

	var quests []QuestInfo
	if err := decodeData(resp, &quests); err != nil {
		return nil, err
	}
	return quests, nil
}

// GetProgress returns the player's progress snapshot.
func (c *Client) GetProgress(ctx context.Context, playerID string) (*ProgressSummary, error) {
	resp, err := c.doRequest(ctx, "GET", fmt.Sprintf("/api/v1/players/%s/progress", playerID), nil)
	if err != nil {
		return nil, err
	}

	var progress ProgressSummary
	if err := decodeData(resp, &progress); err != nil {
		return nil, err
	}
	return &progress, nil
}

// decodeData unwraps the API response envelope into out.
func decodeData(body []byte, out interface{}) error {
	var result struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		if result.Error != nil {
			return fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
		}
		return fmt.Errorf("API error: request failed")
	}

	if err := json.Unmarshal(result.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return respBody, nil
}
