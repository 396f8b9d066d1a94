package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/tradewatch/tradewatch/internal/common"
	"github.com/tradewatch/tradewatch/internal/interfaces"
	"github.com/tradewatch/tradewatch/internal/models"
	"github.com/tradewatch/tradewatch/internal/services/jobs"
)

const warmupStagger = 2 * time.Second

// jobEntry is the scheduler's live state for one registered job
type jobEntry struct {
	def       *models.JobDefinition
	cronID    cron.EntryID
	scheduled bool
	inFlight  bool
	lastRun   *time.Time
	lastError string
}

// Service implements interfaces.SchedulerService. It owns the JobRun
// lifecycle: every admitted trigger creates exactly one run row, which
// receives exactly one terminal update, panic or not.
type Service struct {
	config    *common.Config
	logger    arbor.ILogger
	registry  *jobs.Service
	defs      interfaces.JobDefinitionStorage
	runs      interfaces.JobRunStorage
	snapshots interfaces.SnapshotStorage
	cron      *cron.Cron

	mu      sync.Mutex
	entries map[string]*jobEntry
	running bool
	stop    chan struct{}
}

// NewService creates the scheduler service
func NewService(
	config *common.Config,
	registry *jobs.Service,
	defs interfaces.JobDefinitionStorage,
	runs interfaces.JobRunStorage,
	snapshots interfaces.SnapshotStorage,
	logger arbor.ILogger,
) interfaces.SchedulerService {
	return &Service{
		config:    config,
		logger:    logger,
		registry:  registry,
		defs:      defs,
		runs:      runs,
		snapshots: snapshots,
		cron:      cron.New(),
		entries:   make(map[string]*jobEntry),
		stop:      make(chan struct{}),
	}
}

// Start fails orphaned runs, registers every stored definition with the
// cron runner, launches the stale-run detector, and warms the snapshot
// table when it is empty.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	if n, err := s.runs.FailOrphanedRuns(ctx, "service restarted while job was running"); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to clean up orphaned runs")
	} else if n > 0 {
		s.logger.Info().Int("count", n).Msg("Marked orphaned runs as failed")
	}

	defs, err := s.defs.ListJobDefinitions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load job definitions: %w", err)
	}
	for _, def := range defs {
		if s.registry.Spec(def.ID) == nil {
			s.logger.Warn().Str("job_id", def.ID).Msg("Stored definition has no registered job; skipping")
			continue
		}
		if err := s.register(def); err != nil {
			s.logger.Error().Str("job_id", def.ID).Err(err).Msg("Failed to schedule job")
		}
	}

	s.cron.Start()
	go s.staleRunLoop()

	s.logger.Info().
		Int("jobs", len(defs)).
		Bool("globally_enabled", s.config.Jobs.Enabled).
		Msg("Scheduler started")

	if s.config.Jobs.WarmupOnStart {
		go s.warmup()
	}
	return nil
}

// Stop halts cron dispatch and the stale-run detector. Job bodies
// already running are left to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()

	s.cron.Stop()
	s.logger.Info().Msg("Scheduler stopped")
}

// IsGloballyEnabled reports the global job switch. When off, scheduled
// and manual triggers are both rejected.
func (s *Service) IsGloballyEnabled() bool {
	return s.config.Jobs.Enabled
}

// register places one definition into the live table and, when enabled,
// onto the cron schedule.
func (s *Service) register(def *models.JobDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[def.ID]
	if !exists {
		entry = &jobEntry{}
		s.entries[def.ID] = entry
	}
	if entry.scheduled {
		s.cron.Remove(entry.cronID)
		entry.scheduled = false
	}
	entry.def = def

	if !def.Enabled {
		return nil
	}

	jobID := def.ID
	cronID, err := s.cron.AddFunc(def.CronSpec(), func() {
		s.Trigger(context.Background(), jobID, nil, models.TriggerSourceScheduler)
	})
	if err != nil {
		return fmt.Errorf("failed to register cron entry for %s: %w", def.ID, err)
	}
	entry.cronID = cronID
	entry.scheduled = true

	s.logger.Info().
		Str("job_id", def.ID).
		Str("schedule", def.Schedule).
		Str("timezone", def.Timezone).
		Msg("Job scheduled")
	return nil
}

// Reload re-reads one definition from storage and reschedules it,
// picking up operator changes to cron, timezone or the enabled flag.
func (s *Service) Reload(ctx context.Context, jobID string) error {
	def, err := s.defs.GetJobDefinition(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to reload job definition %s: %w", jobID, err)
	}
	return s.register(def)
}

// Trigger starts a job if admission passes, running the body on the
// caller's goroutine.
func (s *Service) Trigger(ctx context.Context, jobID string, paramsOverride map[string]interface{}, triggeredBy models.TriggerSource) *interfaces.TriggerResult {
	run, spec, params, result := s.admit(ctx, jobID, paramsOverride, triggeredBy)
	if result != nil {
		return result
	}
	s.execute(ctx, run, spec, params)
	return &interfaces.TriggerResult{Status: interfaces.TriggerStatusStarted, RunID: run.ID}
}

// TriggerAsync starts the job body on its own goroutine and returns the
// admission decision immediately.
func (s *Service) TriggerAsync(ctx context.Context, jobID string, paramsOverride map[string]interface{}, triggeredBy models.TriggerSource) *interfaces.TriggerResult {
	run, spec, params, result := s.admit(ctx, jobID, paramsOverride, triggeredBy)
	if result != nil {
		return result
	}
	go s.execute(context.WithoutCancel(ctx), run, spec, params)
	return &interfaces.TriggerResult{Status: interfaces.TriggerStatusStarted, RunID: run.ID}
}

// admit performs the synchronous part of a trigger: gate checks, param
// merge and normalization, and the running JobRun row. A non-nil
// TriggerResult means the trigger was rejected; otherwise the caller
// owns the in-flight flag and must run execute exactly once.
func (s *Service) admit(ctx context.Context, jobID string, paramsOverride map[string]interface{}, triggeredBy models.TriggerSource) (*models.JobRun, *jobs.Spec, *models.JobParams, *interfaces.TriggerResult) {
	spec := s.registry.Spec(jobID)

	s.mu.Lock()
	entry, exists := s.entries[jobID]
	if spec == nil || !exists {
		s.mu.Unlock()
		return nil, nil, nil, &interfaces.TriggerResult{Status: interfaces.TriggerStatusNotFound, Reason: "unknown job"}
	}
	if !s.config.Jobs.Enabled {
		s.mu.Unlock()
		return nil, nil, nil, &interfaces.TriggerResult{Status: interfaces.TriggerStatusRejectedDisabled, Reason: "jobs are globally disabled"}
	}
	if !entry.def.Enabled {
		s.mu.Unlock()
		return nil, nil, nil, &interfaces.TriggerResult{Status: interfaces.TriggerStatusRejectedDisabled, Reason: "job is disabled"}
	}
	if entry.inFlight {
		s.mu.Unlock()
		return nil, nil, nil, &interfaces.TriggerResult{Status: interfaces.TriggerStatusRejectedRunning, Reason: "job is already running"}
	}
	entry.inFlight = true
	defaults := entry.def.DefaultParams
	s.mu.Unlock()

	merged := jobs.MergeParams(defaults, paramsOverride)
	params := spec.Normalize(merged)

	run := &models.JobRun{
		ID:          common.NewRunID(),
		JobID:       jobID,
		TriggeredBy: triggeredBy,
		Params:      merged,
		StartedAt:   time.Now(),
	}
	if err := s.runs.CreateJobRun(ctx, run); err != nil {
		s.clearInFlight(jobID)
		s.logger.Error().Str("job_id", jobID).Err(err).Msg("Failed to create job run")
		return nil, nil, nil, &interfaces.TriggerResult{Status: interfaces.TriggerStatusNotFound, Reason: "failed to create run record"}
	}

	if err := s.defs.TouchLastScheduled(ctx, jobID, run.StartedAt); err != nil {
		s.logger.Warn().Str("job_id", jobID).Err(err).Msg("Failed to update last_scheduled_at")
	}

	s.logger.Info().
		Str("job_id", jobID).
		Str("run_id", run.ID).
		Str("triggered_by", string(triggeredBy)).
		Msg("Job run started")
	return run, spec, params, nil
}

// execute runs the job body and writes the single terminal update.
// A panic inside the body becomes a failed run, never a crash.
func (s *Service) execute(ctx context.Context, run *models.JobRun, spec *jobs.Spec, params *models.JobParams) {
	defer s.clearInFlight(run.JobID)

	var (
		message string
		runErr  error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("panic: %v", r)
				s.logger.Error().
					Str("job_id", run.JobID).
					Str("run_id", run.ID).
					Str("panic", fmt.Sprintf("%v", r)).
					Msg("Recovered panic in job body")
			}
		}()
		message, runErr = spec.Run(ctx, run.ID, params)
	}()

	now := time.Now()
	if runErr != nil {
		if err := s.runs.CompleteJobRun(ctx, run.ID, models.JobRunStatusFailed, "", runErr.Error()); err != nil {
			s.logger.Error().Str("run_id", run.ID).Err(err).Msg("Failed to finalize job run")
		}
		s.setLastRun(run.JobID, now, runErr.Error())
		s.logger.Warn().
			Str("job_id", run.JobID).
			Str("run_id", run.ID).
			Err(runErr).
			Msg("Job run failed")
		return
	}

	if err := s.runs.CompleteJobRun(ctx, run.ID, models.JobRunStatusSuccess, message, ""); err != nil {
		s.logger.Error().Str("run_id", run.ID).Err(err).Msg("Failed to finalize job run")
	}
	if err := s.defs.TouchLastSuccess(ctx, run.JobID, now); err != nil {
		s.logger.Warn().Str("job_id", run.JobID).Err(err).Msg("Failed to update last_success_at")
	}
	s.setLastRun(run.JobID, now, "")
	s.logger.Info().
		Str("job_id", run.JobID).
		Str("run_id", run.ID).
		Str("message", message).
		Msg("Job run succeeded")
}

func (s *Service) clearInFlight(jobID string) {
	s.mu.Lock()
	if entry, ok := s.entries[jobID]; ok {
		entry.inFlight = false
	}
	s.mu.Unlock()
}

func (s *Service) setLastRun(jobID string, at time.Time, lastError string) {
	s.mu.Lock()
	if entry, ok := s.entries[jobID]; ok {
		entry.lastRun = &at
		entry.lastError = lastError
	}
	s.mu.Unlock()
}

// JobStatuses returns every registered job with its live scheduler view
func (s *Service) JobStatuses(ctx context.Context) ([]*interfaces.JobStatus, error) {
	defs, err := s.defs.ListJobDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list job definitions: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]*interfaces.JobStatus, 0, len(defs))
	for _, def := range defs {
		status := &interfaces.JobStatus{Definition: def}
		if entry, ok := s.entries[def.ID]; ok {
			status.IsRunning = entry.inFlight
			status.LastRun = entry.lastRun
			status.LastError = entry.lastError
			if entry.scheduled {
				for _, cronEntry := range s.cron.Entries() {
					if cronEntry.ID == entry.cronID {
						next := cronEntry.Next
						status.NextRun = &next
						break
					}
				}
			}
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// staleRunLoop periodically fails running rows whose heartbeat stopped,
// so a crashed worker cannot hold its job's gate in storage forever.
func (s *Service) staleRunLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.config.StaleRunTimeoutDuration())
			n, err := s.runs.FailStaleRuns(context.Background(), cutoff, "no heartbeat; marked stale")
			if err != nil {
				s.logger.Error().Err(err).Msg("Stale run detection failed")
				continue
			}
			if n > 0 {
				s.logger.Warn().Int("count", n).Msg("Marked stale runs as failed")
			}
		}
	}
}

// warmup triggers every data job once when the snapshot table is empty,
// staggered so upstream sources are not hit all at once.
func (s *Service) warmup() {
	ctx := context.Background()
	count, err := s.snapshots.CountSnapshots(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Warmup check failed")
		return
	}
	if count > 0 {
		return
	}

	s.logger.Info().Msg("Snapshot table is empty; warming up data jobs")
	for _, jobID := range s.registry.DataJobIDs() {
		select {
		case <-s.stop:
			return
		default:
		}

		result := s.TriggerAsync(ctx, jobID, nil, models.TriggerSourceStartup)
		if result.Status != interfaces.TriggerStatusStarted {
			s.logger.Warn().
				Str("job_id", jobID).
				Str("status", string(result.Status)).
				Msg("Warmup trigger rejected")
		}
		time.Sleep(warmupStagger)
	}
}
