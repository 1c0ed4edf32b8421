// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/autobrr/stowaway/internal/archive"
	"github.com/autobrr/stowaway/internal/backup"
	"github.com/autobrr/stowaway/internal/domain"
	"github.com/autobrr/stowaway/internal/hooks"
	"github.com/autobrr/stowaway/internal/secrets"
	"github.com/autobrr/stowaway/internal/snapshot"
)

// Executor is the per-job state machine. One Execute call owns one job run
// from pre-processing through cleanup; no state crosses job boundaries.
type Executor struct {
	Log       zerolog.Logger
	Pre       *PreProcessor
	Stage     *archive.Stage
	Transfers *Orchestrator
	Snapshots snapshot.Provider
	Hooks     *hooks.Runner

	// LockStaleAge overrides the stale threshold for destination locks.
	LockStaleAge time.Duration

	// Confirm gates local retention deletes.
	Confirm backup.ConfirmFunc
}

// Execute runs one job to its terminal status. Cleanup always runs, in
// order: snapshot teardown, then password zeroing, then the post-backup
// hook, then lock release. The archive stage may panic on a programming
// error; the panic is converted to FAILURE and cleanup still runs.
func (e *Executor) Execute(ctx context.Context, cfg *domain.Config, job *domain.JobSpec, simulate bool) (report domain.JobReport) {
	report = domain.JobReport{
		RunID:     uuid.NewString(),
		JobName:   job.Name,
		StartedAt: time.Now(),
		Simulated: simulate,
	}
	status := domain.StatusSuccess

	var (
		sessions  []*snapshot.Session
		snapshots snapshot.Provider = e.Snapshots
		password  *secrets.Secret
		lock      *Lock
	)

	logger := e.Log.With().Str("job", job.Name).Str("run", report.RunID).Logger()

	defer func() {
		if r := recover(); r != nil {
			status = domain.StatusFailure
			report.Errors = append(report.Errors, fmt.Sprintf("unexpected panic: %v", r))
			logger.Error().Interface("panic", r).Msg("Job run panicked, running cleanup")
		}

		// Teardown in reverse creation order; VM-level snapshots may stack.
		for i := len(sessions) - 1; i >= 0; i-- {
			if err := snapshots.Teardown(context.WithoutCancel(ctx), sessions[i]); err != nil {
				status = status.Escalate(domain.StatusWarnings)
				report.Errors = append(report.Errors, fmt.Sprintf("snapshot teardown: %v", err))
			}
		}

		password.Wipe()

		if job.Hooks.PostBackup != "" {
			hook := e.Hooks.Run(context.WithoutCancel(ctx), job.Hooks.PostBackup, map[string]string{
				"JOB":     job.Name,
				"PHASE":   string(domain.PhaseCleanup),
				"STATUS":  status.String(),
				"ARCHIVE": report.ArchivePath,
			})
			if !hook.Succeeded() {
				msg := fmt.Sprintf("post-backup hook failed (exit %d): %s", hook.ExitCode, hook.Output)
				if hook.Err != nil {
					msg = fmt.Sprintf("post-backup hook failed: %v", hook.Err)
				}
				report.Errors = append(report.Errors, msg)
				if job.Hooks.FailOnHookError {
					status = domain.StatusFailure
				} else {
					status = status.Escalate(domain.StatusWarnings)
				}
			}
		}

		lock.Release()

		if simulate && status == domain.StatusSuccess {
			status = domain.StatusSimulatedComplete
		}
		report.Status = status
		report.StatusText = status.String()
		report.CompletedAt = time.Now()
		logger.Info().Str("status", report.StatusText).Dur("elapsed", report.CompletedAt.Sub(report.StartedAt)).Msg("Job run finished")
	}()

	logger.Info().Bool("simulate", simulate).Msg("Starting job run")

	if !simulate {
		acquired, err := AcquireLock(job.DestinationDir, e.LockStaleAge, logger)
		if err != nil {
			status = domain.StatusFailure
			report.Errors = append(report.Errors, err.Error())
			return report
		}
		lock = acquired
	}

	pre := e.Pre.Prepare(ctx, job, simulate)
	sessions = pre.Sessions
	if pre.Snapshots != nil {
		snapshots = pre.Snapshots
	}
	password = pre.Password
	report.Errors = append(report.Errors, pre.Errors...)
	status = status.Escalate(pre.Status)

	switch pre.Decision {
	case SkipJob:
		status = domain.StatusSkippedSourceMissing
		return report
	case FailJob:
		status = domain.StatusFailure
		return report
	}

	stage := e.Stage.Run(ctx, job, pre.Sources, pre.Password.String(), simulate)
	report.ArchivePath = stage.ArchivePath
	report.ChecksumPath = stage.ChecksumPath
	report.Errors = append(report.Errors, stage.Errors...)
	status = status.Escalate(stage.Status)

	targetCfgs := cfg.ResolveTargets(job)

	if stage.Status == domain.StatusFailure {
		// Retention and transfer are not attempted, but the targets are
		// recorded as skipped rather than silently absent.
		report.TransferResults = e.Transfers.SkipAll(targetCfgs, "local archiving failed")
		return report
	}

	report.ArchiveBytes = totalSize(stage.Artifacts)

	if problems := e.applyLocalRetention(logger, job, simulate); len(problems) > 0 {
		report.Errors = append(report.Errors, problems...)
		status = status.Escalate(domain.StatusWarnings)
	}

	artifacts := stage.Artifacts
	if simulate && len(artifacts) == 0 {
		// Nothing was produced; transfers still need the would-be name.
		artifacts = []string{stage.ArchivePath}
	}

	if len(targetCfgs) > 0 {
		outcome := e.Transfers.Run(ctx, targetCfgs, job, artifacts, simulate)
		report.TransferResults = outcome.Results
		report.Errors = append(report.Errors, outcome.Errors...)
		if !outcome.AllSuccessful || len(outcome.Errors) > 0 {
			status = status.Escalate(domain.StatusWarnings)
		}
	}

	return report
}

// applyLocalRetention enforces the job's keep-count on the destination
// directory. Problems are non-fatal.
func (e *Executor) applyLocalRetention(logger zerolog.Logger, job *domain.JobSpec, simulate bool) []string {
	if job.LocalRetention.KeepCount <= 0 {
		return nil
	}

	entries, err := os.ReadDir(job.DestinationDir)
	if err != nil {
		return []string{fmt.Sprintf("local retention: list destination: %v", err)}
	}

	var files []backup.RemoteFileRef
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ref := backup.RemoteFileRef{Name: entry.Name(), Handle: filepath.Join(job.DestinationDir, entry.Name())}
		if info, err := entry.Info(); err == nil {
			ref.SortTimestamp = info.ModTime()
		}
		files = append(files, ref)
	}

	instances, err := backup.Group(files, job.BaseName, job.DateFormat, job.Extension)
	if err != nil {
		return []string{fmt.Sprintf("local retention: %v", err)}
	}

	var confirm backup.ConfirmFunc
	if job.LocalRetention.ConfirmBeforeDelete {
		confirm = e.Confirm
		if confirm == nil {
			confirm = func(string) bool { return false }
		}
	}

	result := backup.ApplyRetention(logger, instances, backup.RetentionOptions{
		KeepCount:  job.LocalRetention.KeepCount,
		SoftDelete: job.LocalRetention.SoftDelete,
		Confirm:    confirm,
		Simulate:   simulate,
	}, func(ref backup.RemoteFileRef, softDelete bool) error {
		path := ref.Handle.(string)
		if softDelete {
			recycle := filepath.Join(job.DestinationDir, "recycle")
			if err := os.MkdirAll(recycle, 0o755); err != nil {
				return err
			}
			return os.Rename(path, filepath.Join(recycle, ref.Name))
		}
		return os.Remove(path)
	})

	var problems []string
	for _, msg := range result.Errors {
		problems = append(problems, "local retention: "+msg)
	}
	return problems
}

func totalSize(paths []string) int64 {
	var total int64
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}
	return total
}
