// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package pipeline drives backup job execution: pre-processing, local
// archiving, retention, remote replication and guaranteed cleanup.
package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/autobrr/stowaway/internal/domain"
	"github.com/autobrr/stowaway/internal/hooks"
	"github.com/autobrr/stowaway/internal/secrets"
	"github.com/autobrr/stowaway/internal/snapshot"
)

// Decision is the pre-processing verdict for a job.
type Decision int

const (
	// Proceed carries resolved sources and password into archiving.
	Proceed Decision = iota
	// SkipJob means a source path does not exist; the job is excluded from
	// failure counting but reported distinctly.
	SkipJob
	// FailJob covers every other pre-condition failure.
	FailJob
)

// PrepareResult is handed to the executor. Sessions and Password are
// returned on every path, including FailJob, so cleanup can tear them down.
type PrepareResult struct {
	Decision Decision

	// Status carries a non-fatal escalation, e.g. WARNINGS from a failed
	// pre-backup hook that is not configured as fatal.
	Status domain.JobStatus

	Sources  []string
	Password *secrets.Secret
	Sessions []*snapshot.Session
	// Snapshots is the provider that created Sessions; teardown must go
	// through the same one.
	Snapshots snapshot.Provider
	Errors    []string
}

// PreProcessor resolves sources, retrieves the archive password and runs the
// pre-backup hook.
type PreProcessor struct {
	Log       zerolog.Logger
	Secrets   *secrets.Resolver
	Snapshots snapshot.Provider
	Hooks     *hooks.Runner
}

// Prepare runs the pre-processing state machine for one job. Order matters:
// the cheap existence checks run before the password prompt, and snapshots
// are created last so earlier failures leave nothing to tear down.
func (p *PreProcessor) Prepare(ctx context.Context, job *domain.JobSpec, simulate bool) PrepareResult {
	result := PrepareResult{Status: domain.StatusSuccess, Snapshots: p.snapshotProvider(job)}

	if job.Hooks.PreBackup != "" {
		hook := p.Hooks.Run(ctx, job.Hooks.PreBackup, map[string]string{
			"JOB":   job.Name,
			"PHASE": string(domain.PhasePreProcessing),
		})
		if !hook.Succeeded() {
			msg := fmt.Sprintf("pre-backup hook failed (exit %d): %s", hook.ExitCode, hook.Output)
			if hook.Err != nil {
				msg = fmt.Sprintf("pre-backup hook failed: %v", hook.Err)
			}
			if job.Hooks.FailOnHookError {
				result.Decision = FailJob
				result.Errors = append(result.Errors, msg)
				return result
			}
			p.Log.Warn().Str("job", job.Name).Msg("Pre-backup hook failed, continuing")
			result.Status = result.Status.Escalate(domain.StatusWarnings)
			result.Errors = append(result.Errors, msg)
		}
	}

	var missing []string
	for _, source := range job.Sources {
		if source.IsSnapshot() {
			continue
		}
		if _, err := os.Stat(source.Path); err != nil {
			missing = append(missing, source.Path)
		}
	}
	if len(missing) > 0 {
		p.Log.Info().Str("job", job.Name).Strs("paths", missing).Msg("Source path(s) not found, skipping job")
		result.Decision = SkipJob
		for _, path := range missing {
			result.Errors = append(result.Errors, fmt.Sprintf("source not found: %s", path))
		}
		return result
	}

	password, err := p.Secrets.Resolve(job.Name, job.Password)
	if err != nil {
		result.Decision = FailJob
		result.Errors = append(result.Errors, fmt.Sprintf("resolve archive password: %v", err))
		return result
	}
	result.Password = password

	for _, source := range job.Sources {
		if !source.IsSnapshot() {
			result.Sources = append(result.Sources, source.Path)
			continue
		}

		if simulate {
			p.Log.Info().Str("job", job.Name).Str("vm", source.VMName).Msg("Simulate: skipping snapshot creation")
			result.Sources = append(result.Sources, source.GuestPaths...)
			continue
		}

		session, err := result.Snapshots.Create(ctx, snapshot.Spec{VMName: source.VMName, GuestPaths: source.GuestPaths})
		if err != nil {
			result.Decision = FailJob
			result.Errors = append(result.Errors, fmt.Sprintf("create snapshot for VM %s: %v", source.VMName, err))
			return result
		}
		result.Sessions = append(result.Sessions, session)
		result.Sources = append(result.Sources, session.MountedPaths...)
	}

	if len(result.Sources) == 0 {
		result.Decision = FailJob
		result.Errors = append(result.Errors, "no sources resolved")
		return result
	}

	result.Decision = Proceed
	return result
}

// snapshotProvider prefers the job's own snapshot scripts over the globally
// configured provider.
func (p *PreProcessor) snapshotProvider(job *domain.JobSpec) snapshot.Provider {
	if job.SnapshotScript != "" {
		return &snapshot.ScriptProvider{
			CreateCommand:   job.SnapshotScript,
			TeardownCommand: job.SnapshotTeardownScript,
			Runner:          p.Hooks,
			Log:             p.Log,
		}
	}
	return p.Snapshots
}
