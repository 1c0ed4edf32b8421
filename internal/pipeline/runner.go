// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/autobrr/stowaway/internal/domain"
)

// JobRunner executes one job to its terminal report. Satisfied by *Executor;
// tests substitute stubs.
type JobRunner interface {
	Execute(ctx context.Context, cfg *domain.Config, job *domain.JobSpec, simulate bool) domain.JobReport
}

// SetResult is the whole-run outcome across all jobs.
type SetResult struct {
	Reports []domain.JobReport
	// Aggregate is the escalated status across all jobs. Skipped and
	// simulated jobs never escalate it past SUCCESS.
	Aggregate domain.JobStatus
	// ExitCode follows the scripting contract: 0 all clean, 1 at least one
	// WARNINGS, 2 at least one FAILURE.
	ExitCode int
}

// Runner executes the configured job list strictly in declaration order.
// Jobs never overlap: later jobs may depend on earlier ones, and retention
// must not race a concurrent transfer into the same directory.
type Runner struct {
	Log      zerolog.Logger
	Executor JobRunner

	// Publish receives every finished job report. Optional.
	Publish func(domain.JobReport)
}

// Run executes all jobs, or just the named one when jobFilter is set. The
// stop policy aborts remaining jobs after a FAILURE; skipped and warning
// jobs never stop the set.
func (r *Runner) Run(ctx context.Context, cfg *domain.Config, jobFilter string, simulate bool) (SetResult, error) {
	jobs, err := selectJobs(cfg, jobFilter)
	if err != nil {
		return SetResult{ExitCode: 2}, err
	}

	setName := cfg.Set.Name
	if setName == "" {
		setName = "default"
	}
	r.Log.Info().Str("set", setName).Int("jobs", len(jobs)).Bool("simulate", simulate).Msg("Starting backup set")

	result := SetResult{Aggregate: domain.StatusSuccess}
	for i := range jobs {
		if err := ctx.Err(); err != nil {
			result.ExitCode = 2
			return result, fmt.Errorf("set aborted: %w", err)
		}

		report := r.Executor.Execute(ctx, cfg, &jobs[i], simulate)
		result.Reports = append(result.Reports, report)
		result.Aggregate = result.Aggregate.Escalate(report.Status)
		if r.Publish != nil {
			r.Publish(report)
		}

		if report.Status == domain.StatusFailure && stopOnError(cfg) {
			r.Log.Error().Str("job", report.JobName).Msg("Job failed and set policy is stop, aborting remaining jobs")
			break
		}
	}

	// A skipped job parks the aggregate on its distinguished outcome; when
	// any other job ran to a clean success the set as a whole still succeeded.
	if result.Aggregate == domain.StatusSkippedSourceMissing {
		for _, report := range result.Reports {
			if report.Status == domain.StatusSuccess {
				result.Aggregate = domain.StatusSuccess
				break
			}
		}
	}

	switch result.Aggregate {
	case domain.StatusFailure:
		result.ExitCode = 2
	case domain.StatusWarnings:
		result.ExitCode = 1
	default:
		result.ExitCode = 0
	}

	r.Log.Info().Str("set", setName).Str("status", result.Aggregate.String()).Int("exitCode", result.ExitCode).Msg("Backup set finished")
	return result, nil
}

func selectJobs(cfg *domain.Config, jobFilter string) ([]domain.JobSpec, error) {
	if jobFilter == "" {
		return cfg.Jobs, nil
	}
	for i := range cfg.Jobs {
		if cfg.Jobs[i].Name == jobFilter {
			return cfg.Jobs[i : i+1], nil
		}
	}
	return nil, fmt.Errorf("unknown job %q", jobFilter)
}

// stopOnError resolves the set error policy; stop is the default because
// later jobs may depend on the output of earlier ones.
func stopOnError(cfg *domain.Config) bool {
	return cfg.Set.OnError != "continue"
}
