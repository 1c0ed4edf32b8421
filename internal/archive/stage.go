// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog"

	"github.com/autobrr/stowaway/internal/backup"
	"github.com/autobrr/stowaway/internal/domain"
)

// StageResult is the local archive phase outcome.
type StageResult struct {
	Status      domain.JobStatus
	ArchivePath string
	// Artifacts lists every file the stage produced, in upload order:
	// archive or volumes first, checksum sidecar last.
	Artifacts    []string
	ChecksumPath string
	Errors       []string
}

// Stage drives archive creation, integrity testing and checksum generation.
type Stage struct {
	Engine Engine
	Log    zerolog.Logger

	// now is swapped in tests to pin archive names.
	now func() time.Time
}

func NewStage(engine Engine, logger zerolog.Logger) *Stage {
	return &Stage{Engine: engine, Log: logger, now: time.Now}
}

// ArchiveName renders the dated archive file name for a job at the given time.
func ArchiveName(job *domain.JobSpec, at time.Time) (string, error) {
	pattern, err := backup.CompilePattern(job.BaseName, job.DateFormat, job.Extension)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s [%s]%s", job.BaseName, at.Format(pattern.Layout()), job.Extension), nil
}

// Run creates the archive (with bounded retries), optionally verifies it and
// emits checksum sidecars. Warnings from the engine degrade the result to
// WARNINGS unless the job treats warnings as success.
func (s *Stage) Run(ctx context.Context, job *domain.JobSpec, sources []string, password string, simulate bool) StageResult {
	name, err := ArchiveName(job, s.now())
	if err != nil {
		return StageResult{Status: domain.StatusFailure, Errors: []string{err.Error()}}
	}
	archivePath := filepath.Join(job.DestinationDir, name)

	if simulate {
		s.Log.Info().Str("archive", archivePath).Msg("Simulate: skipping archive creation")
		return StageResult{Status: domain.StatusSimulatedComplete, ArchivePath: archivePath}
	}

	if err := os.MkdirAll(job.DestinationDir, 0o755); err != nil {
		return StageResult{Status: domain.StatusFailure, Errors: []string{fmt.Sprintf("prepare destination: %v", err)}}
	}

	result := StageResult{Status: domain.StatusSuccess, ArchivePath: archivePath}

	createStatus, errs := s.runEngine(ctx, job, "create", func(c context.Context) ExecResult {
		return s.Engine.Create(c, sources, archivePath, job.Compression, password)
	})
	result.Errors = append(result.Errors, errs...)
	if createStatus == domain.StatusFailure {
		result.Status = domain.StatusFailure
		return result
	}
	result.Status = result.Status.Escalate(createStatus)

	volumes, err := s.collectVolumes(archivePath, job.Compression.VolumeSize != "")
	if err != nil {
		result.Status = domain.StatusFailure
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	result.Artifacts = append(result.Artifacts, volumes...)

	if job.Checksum {
		sidecar, err := s.writeChecksums(archivePath, volumes)
		if err != nil {
			result.Status = domain.StatusFailure
			result.Errors = append(result.Errors, err.Error())
			return result
		}
		result.ChecksumPath = sidecar
		result.Artifacts = append(result.Artifacts, sidecar)
	}

	if job.VerifyArchive {
		testStatus, errs := s.runEngine(ctx, job, "test", func(c context.Context) ExecResult {
			return s.Engine.Test(c, archivePath, job.Compression, password)
		})
		result.Errors = append(result.Errors, errs...)
		if testStatus == domain.StatusFailure {
			result.Status = domain.StatusFailure
			return result
		}
		result.Status = result.Status.Escalate(testStatus)

		if result.ChecksumPath != "" {
			if err := VerifyManifest(result.ChecksumPath); err != nil {
				result.Status = domain.StatusFailure
				result.Errors = append(result.Errors, err.Error())
				return result
			}
			s.Log.Debug().Str("manifest", result.ChecksumPath).Msg("Checksum verification passed")
		}
	}

	return result
}

// runEngine wraps one engine operation in the job's retry policy. Only real
// failures are retried; a warning exit is an accepted terminal outcome.
func (s *Stage) runEngine(ctx context.Context, job *domain.JobSpec, op string, invoke func(context.Context) ExecResult) (domain.JobStatus, []string) {
	attempts := job.Compression.MaxRetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := time.Duration(job.Compression.RetryDelaySeconds) * time.Second

	var last ExecResult
	err := retry.Do(
		func() error {
			last = invoke(ctx)
			if last.Err != nil {
				return last.Err
			}
			if last.ExitCode == 0 || last.ExitCode == 1 {
				return nil
			}
			return fmt.Errorf("engine %s exited %d: %s", op, last.ExitCode, strings.TrimSpace(last.Stderr))
		},
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.Log.Warn().Err(err).Uint("attempt", n+1).Str("operation", op).Str("job", job.Name).Msg("Compression engine attempt failed, retrying")
		}),
	)
	if err != nil {
		return domain.StatusFailure, []string{fmt.Sprintf("archive %s failed after %d attempt(s): %v", op, attempts, err)}
	}

	if last.ExitCode == 1 {
		msg := fmt.Sprintf("engine %s reported warnings: %s", op, strings.TrimSpace(last.Stderr))
		if job.Compression.TreatWarningsAsSuccess {
			s.Log.Warn().Str("operation", op).Str("job", job.Name).Msg("Compression engine warnings treated as success")
			return domain.StatusSuccess, nil
		}
		return domain.StatusWarnings, []string{msg}
	}
	return domain.StatusSuccess, nil
}

// collectVolumes resolves the files the engine actually produced. Split mode
// yields <archive>.001, .002, ...; single mode yields the archive itself.
func (s *Stage) collectVolumes(archivePath string, split bool) ([]string, error) {
	if !split {
		if _, err := os.Stat(archivePath); err != nil {
			return nil, fmt.Errorf("archive missing after creation: %w", err)
		}
		return []string{archivePath}, nil
	}

	// Archive names carry bracketed timestamps, which filepath.Glob would
	// treat as character classes, so match by literal prefix instead.
	dir := filepath.Dir(archivePath)
	base := filepath.Base(archivePath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list volumes: %w", err)
	}

	var volumes []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, base+".") {
			continue
		}
		if isVolumeSuffix(strings.TrimPrefix(name, base+".")) {
			volumes = append(volumes, filepath.Join(dir, name))
		}
	}
	if len(volumes) == 0 {
		// Engine may produce a single file when content fits one volume.
		if _, err := os.Stat(archivePath); err == nil {
			return []string{archivePath}, nil
		}
		return nil, fmt.Errorf("no volumes found for %s", filepath.Base(archivePath))
	}
	sort.Strings(volumes)
	return volumes, nil
}

func isVolumeSuffix(s string) bool {
	if len(s) < 3 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (s *Stage) writeChecksums(archivePath string, volumes []string) (string, error) {
	if len(volumes) == 1 && volumes[0] == archivePath {
		return WriteChecksum(archivePath)
	}
	return WriteManifest(archivePath, volumes)
}
