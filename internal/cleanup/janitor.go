// Package cleanup removes stale sandbox work directories. Runners
// delete their own directories on the happy path; the janitor catches
// what crashes and kills leave behind.
package cleanup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Janitor sweeps the sandbox work root on a ticker.
type Janitor struct {
	workRoot string
	interval time.Duration
	maxAge   time.Duration
}

// NewJanitor creates a cleanup worker for workRoot. Directories older
// than maxAge are removed each cycle.
func NewJanitor(workRoot string, interval, maxAge time.Duration) *Janitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if maxAge <= 0 {
		maxAge = time.Hour
	}

	return &Janitor{
		workRoot: workRoot,
		interval: interval,
		maxAge:   maxAge,
	}
}

// Start begins the cleanup worker in a goroutine.
func (j *Janitor) Start(ctx context.Context) {
	go j.run(ctx)
}

func (j *Janitor) run(ctx context.Context) {
	slog.Info("cleanup worker started", "work_root", j.workRoot, "interval", j.interval)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run immediately on start
	j.sweep()

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

// sweep removes work directories whose modification time is past maxAge.
func (j *Janitor) sweep() {
	entries, err := os.ReadDir(j.workRoot)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("failed to read work root", "error", err)
		}
		return
	}

	cutoff := time.Now().Add(-j.maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(j.workRoot, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			slog.Error("failed to remove stale work dir", "path", path, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		slog.Info("removed stale work dirs", "count", removed)
	}
}
