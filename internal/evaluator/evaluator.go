// Package evaluator runs a submission against a quest's test cases and
// turns sandbox results into a graded SubmissionResult.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codequest/quest-engine/internal/catalog"
	"github.com/codequest/quest-engine/internal/harness"
	"github.com/codequest/quest-engine/internal/models"
	"github.com/codequest/quest-engine/internal/progression"
	"github.com/codequest/quest-engine/internal/sandbox"
)

// ErrInvalidSubmission rejects submissions that cannot be evaluated at
// all, such as empty code.
var ErrInvalidSubmission = errors.New("invalid submission")

// Options configure per-test-case resource limits.
type Options struct {
	Timeout          time.Duration
	MemoryLimitBytes int64
	OutputLimitBytes int64
}

// SubmitRequest is one attempt at a quest. TestOnly runs the test
// cases without recording progression.
type SubmitRequest struct {
	PlayerID string
	QuestID  string
	Code     string
	TestOnly bool
}

// Evaluator grades submissions. Test cases run in declared order; a
// compile failure on the first run fails every case with the same
// diagnostic without invoking the sandbox again.
type Evaluator struct {
	catalog *catalog.Loader
	runner  sandbox.Runner
	machine *progression.Machine
	opts    Options
}

// New creates an Evaluator.
func New(cat *catalog.Loader, runner sandbox.Runner, machine *progression.Machine, opts Options) *Evaluator {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &Evaluator{catalog: cat, runner: runner, machine: machine, opts: opts}
}

// Submit evaluates one submission to completion.
func (e *Evaluator) Submit(ctx context.Context, req SubmitRequest) (*models.SubmissionResult, error) {
	quest, _, err := e.catalog.Quest(req.QuestID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Code) == "" {
		return nil, fmt.Errorf("%w: code is empty", ErrInvalidSubmission)
	}
	if req.PlayerID == "" {
		return nil, fmt.Errorf("%w: player id is required", ErrInvalidSubmission)
	}

	submissionID := uuid.NewString()
	start := time.Now()

	result := &models.SubmissionResult{
		SubmissionID: submissionID,
		QuestID:      quest.ID,
		PlayerID:     req.PlayerID,
		TestOnly:     req.TestOnly,
		SubmittedAt:  start.UTC(),
	}

	results, compileErr, err := e.runTestCases(ctx, submissionID, quest, req.Code)
	if err != nil {
		return nil, err
	}

	result.TestCases = redactHidden(results)
	result.CompileError = compileErr
	result.DurationMs = time.Since(start).Milliseconds()

	result.Success = compileErr == ""
	for _, tc := range result.TestCases {
		if !tc.Passed {
			result.Success = false
		}
	}

	slog.Info("submission evaluated",
		"submission_id", submissionID,
		"quest_id", quest.ID,
		"player_id", req.PlayerID,
		"success", result.Success,
		"test_only", req.TestOnly,
		"duration_ms", result.DurationMs)

	if result.Success && !req.TestOnly {
		delta, snapshot, err := e.machine.RecordQuestCompletion(ctx, req.PlayerID, quest.ID)
		if err != nil {
			return nil, err
		}
		result.Progression = delta
		result.Snapshot = snapshot
	}
	return result, nil
}

// runTestCases executes every test case in order. A compile error from
// the first invocation is returned once and applied to all cases by
// the caller loop, without further sandbox calls.
func (e *Evaluator) runTestCases(ctx context.Context, submissionID string, quest *models.QuestDefinition, code string) ([]models.TestCaseResult, string, error) {
	results := make([]models.TestCaseResult, 0, len(quest.TestCases))
	compileErr := ""

	for i, tc := range quest.TestCases {
		tcr := models.TestCaseResult{
			Index:    i,
			Sample:   tc.Sample,
			Input:    tc.Input,
			Stdin:    tc.Stdin,
			Expected: tc.Expected,
		}

		if compileErr != "" {
			tcr.CompileError = compileErr
			results = append(results, tcr)
			continue
		}

		source := code
		if quest.Mode == models.ModeFunction {
			var err error
			source, err = harness.Generate(code, quest.Signature, tc)
			if err != nil {
				return nil, "", fmt.Errorf("failed to build test harness: %w", err)
			}
		}

		run, err := e.runner.Run(ctx, sandbox.Request{
			SubmissionID:     submissionID,
			TestID:           fmt.Sprintf("tc-%d", i),
			Source:           source,
			Stdin:            tc.Stdin,
			Timeout:          e.opts.Timeout,
			MemoryLimitBytes: e.opts.MemoryLimitBytes,
			OutputLimitBytes: e.opts.OutputLimitBytes,
		})
		if err != nil {
			return nil, "", err
		}

		if run.CompileError != nil {
			compileErr = *run.CompileError
			tcr.CompileError = compileErr
			results = append(results, tcr)
			continue
		}

		tcr.Actual = run.Stdout
		tcr.Stderr = run.Stderr
		tcr.ExitCode = run.ExitCode
		tcr.TimedOut = run.TimedOut
		tcr.DurationMs = run.Duration.Milliseconds()
		tcr.Passed = !run.TimedOut &&
			run.ExitCode != nil && *run.ExitCode == 0 &&
			Compare(run.Stdout, tc.Expected)
		results = append(results, tcr)
	}
	return results, compileErr, nil
}

// redactHidden strips the details of failing non-sample test cases so
// hidden inputs and expected outputs never leak to the client.
func redactHidden(results []models.TestCaseResult) []models.TestCaseResult {
	for i := range results {
		r := &results[i]
		if r.Sample || r.Passed {
			continue
		}
		r.Input = nil
		r.Stdin = ""
		r.Expected = ""
		r.Actual = ""
		r.Stderr = ""
	}
	return results
}
