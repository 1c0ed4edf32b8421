// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscalateOrdering(t *testing.T) {
	t.Parallel()

	assert.Equal(t, StatusFailure, StatusWarnings.Escalate(StatusFailure))
	assert.Equal(t, StatusFailure, StatusFailure.Escalate(StatusWarnings))
	assert.Equal(t, StatusWarnings, StatusSuccess.Escalate(StatusWarnings))
	assert.Equal(t, StatusSuccess, StatusSuccess.Escalate(StatusSuccess))
}

func TestEscalateDistinguishedOutcomesDoNotEscalate(t *testing.T) {
	t.Parallel()

	// Skipped and simulated outcomes never outrank warnings or failure.
	assert.Equal(t, StatusWarnings, StatusWarnings.Escalate(StatusSkippedSourceMissing))
	assert.Equal(t, StatusFailure, StatusFailure.Escalate(StatusSimulatedComplete))

	// Over a clean success they are surfaced, not hidden.
	assert.Equal(t, StatusSkippedSourceMissing, StatusSuccess.Escalate(StatusSkippedSourceMissing))
	assert.Equal(t, StatusSimulatedComplete, StatusSuccess.Escalate(StatusSimulatedComplete))
}

func TestStatusString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "SUCCESS", StatusSuccess.String())
	assert.Equal(t, "SIMULATED_COMPLETE", StatusSimulatedComplete.String())
	assert.Equal(t, "SKIPPED_SOURCE_MISSING", StatusSkippedSourceMissing.String())
	assert.Equal(t, "WARNINGS", StatusWarnings.String())
	assert.Equal(t, "FAILURE", StatusFailure.String())
	assert.Equal(t, "UNKNOWN", JobStatus(42).String())
}

func TestConfigValidateCollectsAllProblems(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Set: SetSpec{OnError: "panic"},
		Jobs: []JobSpec{{
			Name:      "bad",
			Extension: "7z",
			Targets:   []string{"missing"},
		}},
	}

	err := cfg.Validate()
	assert.Error(t, err)
	for _, want := range []string{"source", "destinationDir", "baseName", "dateFormat", "dot", `unknown target "missing"`, "set.onError"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestResolveTargetsPreservesOrder(t *testing.T) {
	t.Parallel()

	cfg := &Config{Targets: []TargetInstanceConfig{
		{Name: "a", Type: "localfs"},
		{Name: "b", Type: "sftp"},
		{Name: "c", Type: "s3"},
	}}
	job := &JobSpec{Targets: []string{"c", "a"}}

	resolved := cfg.ResolveTargets(job)
	assert.Len(t, resolved, 2)
	assert.Equal(t, "c", resolved[0].Name)
	assert.Equal(t, "a", resolved[1].Name)
}
