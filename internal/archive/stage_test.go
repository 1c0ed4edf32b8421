// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/stowaway/internal/domain"
)

// fakeEngine scripts create/test outcomes and records invocation counts.
type fakeEngine struct {
	createResults []ExecResult
	testResults   []ExecResult
	createCalls   int
	testCalls     int
	// files written relative to the archive path on each successful create
	volumeSuffixes []string
}

func (f *fakeEngine) Create(_ context.Context, _ []string, archivePath string, _ domain.CompressionParams, _ string) ExecResult {
	idx := f.createCalls
	if idx >= len(f.createResults) {
		idx = len(f.createResults) - 1
	}
	f.createCalls++
	result := f.createResults[idx]

	if result.Err == nil && result.ExitCode <= 1 {
		if len(f.volumeSuffixes) == 0 {
			_ = os.WriteFile(archivePath, []byte("archive-data"), 0o644)
		}
		for _, suffix := range f.volumeSuffixes {
			_ = os.WriteFile(archivePath+suffix, []byte("volume-data-"+suffix), 0o644)
		}
	}
	return result
}

func (f *fakeEngine) Test(context.Context, string, domain.CompressionParams, string) ExecResult {
	idx := f.testCalls
	if idx >= len(f.testResults) {
		idx = len(f.testResults) - 1
	}
	f.testCalls++
	return f.testResults[idx]
}

func testJob(t *testing.T, dir string) *domain.JobSpec {
	t.Helper()
	return &domain.JobSpec{
		Name:           "nightly",
		DestinationDir: dir,
		BaseName:       "Job",
		DateFormat:     "yyyy-MM-dd",
		Extension:      ".7z",
	}
}

func newTestStage(engine Engine) *Stage {
	s := NewStage(engine, zerolog.Nop())
	s.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestStageSuccessSingleArchive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	engine := &fakeEngine{createResults: []ExecResult{{ExitCode: 0}}}
	stage := newTestStage(engine)

	result := stage.Run(context.Background(), testJob(t, dir), []string{"/src"}, "", false)

	assert.Equal(t, domain.StatusSuccess, result.Status)
	assert.Equal(t, filepath.Join(dir, "Job [2024-06-01].7z"), result.ArchivePath)
	require.Len(t, result.Artifacts, 1)
	assert.Equal(t, 1, engine.createCalls)
}

func TestStageWarningExitCodePolicy(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name           string
		treatAsSuccess bool
		want           domain.JobStatus
	}{
		{"warnings stay warnings", false, domain.StatusWarnings},
		{"warnings promoted", true, domain.StatusSuccess},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			engine := &fakeEngine{createResults: []ExecResult{{ExitCode: 1, Stderr: "locked file skipped"}}}
			stage := newTestStage(engine)

			job := testJob(t, dir)
			job.Compression.TreatWarningsAsSuccess = tc.treatAsSuccess

			result := stage.Run(context.Background(), job, []string{"/src"}, "", false)
			assert.Equal(t, tc.want, result.Status)
			// A warning exit is terminal, never retried.
			assert.Equal(t, 1, engine.createCalls)
		})
	}
}

func TestStageRetriesHardFailuresUpToCeiling(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	engine := &fakeEngine{createResults: []ExecResult{
		{ExitCode: 2, Stderr: "disk error"},
		{ExitCode: 2, Stderr: "disk error"},
		{ExitCode: 0},
	}}
	stage := newTestStage(engine)

	job := testJob(t, dir)
	job.Compression.MaxRetryAttempts = 3

	result := stage.Run(context.Background(), job, []string{"/src"}, "", false)
	assert.Equal(t, domain.StatusSuccess, result.Status)
	assert.Equal(t, 3, engine.createCalls)
}

func TestStageFailureAfterExhaustedRetries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	engine := &fakeEngine{createResults: []ExecResult{{ExitCode: 2, Stderr: "fatal: cannot open source"}}}
	stage := newTestStage(engine)

	job := testJob(t, dir)
	job.Compression.MaxRetryAttempts = 2

	result := stage.Run(context.Background(), job, []string{"/src"}, "", false)
	assert.Equal(t, domain.StatusFailure, result.Status)
	assert.Equal(t, 2, engine.createCalls)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "cannot open source")
}

func TestStageChecksumSingleFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	engine := &fakeEngine{
		createResults: []ExecResult{{ExitCode: 0}},
		testResults:   []ExecResult{{ExitCode: 0}},
	}
	stage := newTestStage(engine)

	job := testJob(t, dir)
	job.Checksum = true
	job.VerifyArchive = true

	result := stage.Run(context.Background(), job, []string{"/src"}, "", false)
	require.Equal(t, domain.StatusSuccess, result.Status)
	require.NotEmpty(t, result.ChecksumPath)
	assert.FileExists(t, result.ChecksumPath)
	assert.Len(t, result.Artifacts, 2)
	assert.Equal(t, 1, engine.testCalls)
}

func TestStageSplitArchiveManifest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	engine := &fakeEngine{
		createResults:  []ExecResult{{ExitCode: 0}},
		volumeSuffixes: []string{".001", ".002", ".003"},
	}
	stage := newTestStage(engine)

	job := testJob(t, dir)
	job.Checksum = true
	job.Compression.VolumeSize = "1m"

	result := stage.Run(context.Background(), job, []string{"/src"}, "", false)
	require.Equal(t, domain.StatusSuccess, result.Status)

	manifest := result.ArchivePath + ManifestSuffix
	assert.Equal(t, manifest, result.ChecksumPath)
	require.FileExists(t, manifest)
	// 3 volumes + manifest
	assert.Len(t, result.Artifacts, 4)

	require.NoError(t, VerifyManifest(manifest))
}

func TestCollectVolumesBracketedName(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archive := filepath.Join(dir, "Job [2024-06-01].7z")
	for _, name := range []string{
		"Job [2024-06-01].7z.001",
		"Job [2024-06-01].7z.002",
		"Job [2024-06-01].7z.notes",
		"Other.7z.001",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	stage := newTestStage(&fakeEngine{})
	volumes, err := stage.collectVolumes(archive, true)
	require.NoError(t, err)
	assert.Equal(t, []string{archive + ".001", archive + ".002"}, volumes)
}

func TestVerifyManifestDetectsTampering(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	engine := &fakeEngine{
		createResults:  []ExecResult{{ExitCode: 0}},
		volumeSuffixes: []string{".001", ".002"},
	}
	stage := newTestStage(engine)

	job := testJob(t, dir)
	job.Checksum = true
	job.Compression.VolumeSize = "1m"

	result := stage.Run(context.Background(), job, []string{"/src"}, "", false)
	require.Equal(t, domain.StatusSuccess, result.Status)

	require.NoError(t, os.WriteFile(result.ArchivePath+".002", []byte("corrupted"), 0o644))
	err := VerifyManifest(result.ChecksumPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")
}

func TestVerifyManifestNameWithConsecutiveSpaces(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archive := filepath.Join(dir, "Job  two  spaces [2024-06-01].7z")
	volumes := []string{archive + ".001", archive + ".002"}
	for _, volume := range volumes {
		require.NoError(t, os.WriteFile(volume, []byte("volume-data"), 0o644))
	}

	manifest, err := WriteManifest(archive, volumes)
	require.NoError(t, err)
	require.NoError(t, VerifyManifest(manifest))
}

func TestVerifyManifestMissingFile(t *testing.T) {
	t.Parallel()

	err := VerifyManifest(filepath.Join(t.TempDir(), "absent.manifest.sha256"))
	require.Error(t, err)
}

func TestStageSimulateSkipsEngine(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{createResults: []ExecResult{{ExitCode: 0}}}
	stage := newTestStage(engine)

	result := stage.Run(context.Background(), testJob(t, t.TempDir()), []string{"/src"}, "", true)
	assert.Equal(t, domain.StatusSimulatedComplete, result.Status)
	assert.Zero(t, engine.createCalls)
	assert.Empty(t, result.Artifacts)
}
