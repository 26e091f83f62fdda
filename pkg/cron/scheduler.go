// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/FACorreiaa/family-finance-tracker/internal/domain/cloudsync"
	"github.com/FACorreiaa/family-finance-tracker/internal/domain/workspace"
)

// DefaultSyncSchedule pushes loaded workspaces every 30 minutes
const DefaultSyncSchedule = "*/30 * * * *"

// WorkspaceSource lists the workspaces currently held in memory
type WorkspaceSource interface {
	Loaded() []*workspace.Workspace
}

// Pusher uploads one workspace to the document store
type Pusher interface {
	Push(ctx context.Context, ws *workspace.Workspace) (*cloudsync.Result, error)
}

// SyncSummary is the outcome of one background sync run
type SyncSummary struct {
	Synced    int
	Failed    int
	Documents int
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron       *cron.Cron
	workspaces WorkspaceSource
	pusher     Pusher
	schedule   string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewScheduler creates a new job scheduler. An empty schedule uses DefaultSyncSchedule.
func NewScheduler(workspaces WorkspaceSource, pusher Pusher, schedule string, logger *slog.Logger) *Scheduler {
	// Create cron with seconds disabled (standard 5-field format)
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	if schedule == "" {
		schedule = DefaultSyncSchedule
	}
	return &Scheduler{
		cron:       c,
		workspaces: workspaces,
		pusher:     pusher,
		schedule:   schedule,
		timeout:    10 * time.Minute,
		logger:     logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() { s.syncLoadedWorkspaces() })
	if err != nil {
		return fmt.Errorf("failed to schedule cloud sync %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
		slog.String("sync_schedule", s.schedule),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow manually triggers the cloud sync job (for testing/admin).
func (s *Scheduler) RunNow() {
	go s.syncLoadedWorkspaces()
}

// syncLoadedWorkspaces pushes every workspace in memory. A failing user is
// logged and skipped.
func (s *Scheduler) syncLoadedWorkspaces() SyncSummary {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	loaded := s.workspaces.Loaded()
	s.logger.Info("starting scheduled cloud sync", slog.Int("workspaces", len(loaded)))

	var summary SyncSummary
	for _, ws := range loaded {
		res, err := s.pusher.Push(ctx, ws)
		if err != nil {
			s.logger.Warn("failed to sync workspace",
				slog.String("user_id", ws.UserID),
				slog.Any("error", err),
			)
			summary.Failed++
			continue
		}

		s.logger.Debug("synced workspace",
			slog.String("user_id", ws.UserID),
			slog.Int("documents", res.Total),
			slog.Int("removed", res.Removed),
		)
		summary.Synced++
		summary.Documents += res.Total
	}

	s.logger.Info("scheduled cloud sync completed",
		slog.Int("workspaces_synced", summary.Synced),
		slog.Int("workspaces_failed", summary.Failed),
		slog.Int("documents", summary.Documents),
	)
	return summary
}
