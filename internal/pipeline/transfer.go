// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/autobrr/stowaway/internal/backup"
	"github.com/autobrr/stowaway/internal/domain"
	"github.com/autobrr/stowaway/internal/targets"
)

// TransferOutcome aggregates the remote phase for one job.
type TransferOutcome struct {
	Results []domain.TransferResult
	// Errors holds non-fatal problems from remote retention.
	Errors []string
	// AllSuccessful is true iff every attempted transfer succeeded.
	AllSuccessful bool
}

// Orchestrator replicates a job's artifacts to its configured targets,
// strictly in declaration order. A failure stays local to its target: the
// remaining targets are still attempted.
type Orchestrator struct {
	Registry *targets.Registry
	Log      zerolog.Logger

	// Confirm gates remote retention deletes when a target requests
	// confirmation.
	Confirm backup.ConfirmFunc
}

// Run uploads every artifact to every target, then applies the target's
// remote retention, only after all of its transfers succeeded. Targets never
// run concurrently; two targets may point at the same remote directory and
// retention must not race a sibling's upload.
func (o *Orchestrator) Run(ctx context.Context, targetCfgs []domain.TargetInstanceConfig, job *domain.JobSpec, artifacts []string, simulate bool) TransferOutcome {
	outcome := TransferOutcome{AllSuccessful: true}

	for _, cfg := range targetCfgs {
		provider, err := o.Registry.Lookup(cfg.Type)
		if err != nil {
			outcome.AllSuccessful = false
			outcome.Results = append(outcome.Results, domain.TransferResult{
				Target:       cfg.Name,
				ErrorMessage: err.Error(),
			})
			continue
		}

		targetOK := true
		for _, artifact := range artifacts {
			result := provider.Transfer(ctx, cfg, targets.TransferRequest{
				LocalPath: artifact,
				JobName:   job.Name,
				FileName:  filepath.Base(artifact),
				Simulate:  simulate,
			})
			outcome.Results = append(outcome.Results, result)
			if !result.Success {
				targetOK = false
				o.Log.Error().Str("job", job.Name).Str("target", cfg.Name).Str("file", result.FileName).Str("error", result.ErrorMessage).Msg("Transfer failed")
			}
		}
		if !targetOK {
			outcome.AllSuccessful = false
			continue
		}

		if cfg.RemoteRetention == nil || cfg.RemoteRetention.KeepCount <= 0 {
			continue
		}
		problems := provider.ApplyRetention(ctx, cfg, targets.RetentionRequest{
			JobName:    job.Name,
			BaseName:   job.BaseName,
			DateFormat: job.DateFormat,
			Extension:  job.Extension,
			Retention:  *cfg.RemoteRetention,
			Confirm:    o.Confirm,
			Simulate:   simulate,
		})
		for _, problem := range problems {
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("target %s retention: %s", cfg.Name, problem))
		}
	}

	return outcome
}

// SkipAll records every target as skipped. Used when local archiving failed:
// the targets were never attempted, which is distinct from having failed.
func (o *Orchestrator) SkipAll(targetCfgs []domain.TargetInstanceConfig, reason string) []domain.TransferResult {
	results := make([]domain.TransferResult, 0, len(targetCfgs))
	for _, cfg := range targetCfgs {
		results = append(results, domain.TransferResult{
			Target:       cfg.Name,
			Skipped:      true,
			ErrorMessage: reason,
		})
	}
	return results
}
