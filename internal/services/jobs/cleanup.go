package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/tradewatch/tradewatch/internal/models"
)

// runCleanupSnapshots applies the retention window to snapshots and
// terminal job runs. The storage layer preserves the newest snapshot
// per (widget_key, scope) regardless of age, so the dashboard never
// loses its only data point to retention.
func (s *Service) runCleanupSnapshots(ctx context.Context, runID string, params *models.JobParams) (string, error) {
	cutoff := time.Now().AddDate(0, 0, -params.KeepDays)

	snapshotsDeleted, err := s.snapshots.DeleteSnapshotsBefore(ctx, cutoff)
	if err != nil {
		return "", fmt.Errorf("failed to delete old snapshots: %w", err)
	}

	runsDeleted, err := s.jobRuns.DeleteTerminalRunsBefore(ctx, cutoff)
	if err != nil {
		return "", fmt.Errorf("failed to delete old job runs: %w", err)
	}

	s.logger.Info().
		Int("snapshots_deleted", snapshotsDeleted).
		Int("runs_deleted", runsDeleted).
		Int("keep_days", params.KeepDays).
		Msg("Retention cleanup complete")

	return fmt.Sprintf("cleanup done: snapshots=%d, runs=%d, keep_days=%d", snapshotsDeleted, runsDeleted, params.KeepDays), nil
}
