package models

import "time"

// TestCaseResult records the outcome of one test case invocation.
// For hidden (non-sample) failures Input, Stdin, Expected, Actual and
// Stderr are redacted before the result leaves the evaluator.
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

// SubmissionResult is the ephemeral outcome of one code submission.
// It is never persisted; the progression state machine stores only the
// effect of a successful submission.
type SubmissionResult struct {
	SubmissionID string           `json:"submission_id"`
	QuestID      string           `json:"quest_id"`
	PlayerID     string           `json:"player_id"`
	TestOnly     bool             `json:"test_only"`
	Success      bool             `json:"success"`
	CompileError string           `json:"compile_error,omitempty"`
	TestCases    []TestCaseResult `json:"test_cases"`
	DurationMs   int64            `json:"duration_ms"`
	SubmittedAt  time.Time        `json:"submitted_at"`

	// Progression is set only when the submission mutated player state.
	Progression *ProgressionDelta `json:"progression,omitempty"`
	Snapshot    *ProgressSummary  `json:"snapshot,omitempty"`
}
