// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import "time"

// JobStatus is the terminal outcome of a single job run. FAILURE outranks
// WARNINGS outranks SUCCESS when statuses are combined; SKIPPED_SOURCE_MISSING
// and SIMULATED_COMPLETE are distinguished outcomes that never escalate a set.
type JobStatus int

const (
	StatusSuccess JobStatus = iota
	StatusSimulatedComplete
	StatusSkippedSourceMissing
	StatusWarnings
	StatusFailure
)

func (s JobStatus) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusSimulatedComplete:
		return "SIMULATED_COMPLETE"
	case StatusSkippedSourceMissing:
		return "SKIPPED_SOURCE_MISSING"
	case StatusWarnings:
		return "WARNINGS"
	case StatusFailure:
		return "FAILURE"
	default:
		return "UNKNOWN"
	}
}

// severity maps a status onto the escalation order. The two distinguished
// outcomes carry no severity of their own.
func (s JobStatus) severity() int {
	switch s {
	case StatusFailure:
		return 2
	case StatusWarnings:
		return 1
	default:
		return 0
	}
}

// Escalate returns the more severe of the two statuses. Non-escalating
// outcomes (skipped, simulated) only win over a clean SUCCESS.
func (s JobStatus) Escalate(other JobStatus) JobStatus {
	if other.severity() > s.severity() {
		return other
	}
	if s.severity() > 0 {
		return s
	}
	// Both are non-severe; prefer the distinguished outcome over plain SUCCESS.
	if s == StatusSuccess && other != StatusSuccess {
		return other
	}
	return s
}

// JobPhase identifies where a job run currently is in its lifecycle.
type JobPhase string

const (
	PhaseInit           JobPhase = "init"
	PhasePreProcessing  JobPhase = "pre-processing"
	PhaseLocalArchiving JobPhase = "local-archiving"
	PhaseLocalRetention JobPhase = "local-retention"
	PhaseRemoteTransfer JobPhase = "remote-transfer"
	PhaseCleanup        JobPhase = "cleanup"
	PhaseFinalised      JobPhase = "finalised"
)

// TransferResult is the outcome of uploading one local file to one target.
type TransferResult struct {
	Target           string        `json:"target"`
	FileName         string        `json:"fileName"`
	Success          bool          `json:"success"`
	Skipped          bool          `json:"skipped"`
	RemotePath       string        `json:"remotePath,omitempty"`
	BytesTransferred int64         `json:"bytesTransferred"`
	Duration         time.Duration `json:"duration"`
	ErrorMessage     string        `json:"errorMessage,omitempty"`
}

// JobReport is the snapshot handed to report sinks when a job run finalises.
type JobReport struct {
	RunID           string           `json:"runId"`
	JobName         string           `json:"jobName"`
	Status          JobStatus        `json:"-"`
	StatusText      string           `json:"status"`
	StartedAt       time.Time        `json:"startedAt"`
	CompletedAt     time.Time        `json:"completedAt"`
	ArchivePath     string           `json:"archivePath,omitempty"`
	ArchiveBytes    int64            `json:"archiveBytes,omitempty"`
	ChecksumPath    string           `json:"checksumPath,omitempty"`
	Simulated       bool             `json:"simulated"`
	Errors          []string         `json:"errors,omitempty"`
	TransferResults []TransferResult `json:"transferResults,omitempty"`
	LogLines        []string         `json:"logLines,omitempty"`
}
