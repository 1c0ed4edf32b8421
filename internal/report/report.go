// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package report publishes finished job reports to the configured sinks.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/autobrr/stowaway/internal/domain"
)

// Sink receives every finished job report. Publish errors are surfaced to
// the operator but never change a job's status.
type Sink interface {
	Publish(report domain.JobReport) error
}

// LogSink writes a one-line human summary per job run.
type LogSink struct {
	Log zerolog.Logger
}

func (s *LogSink) Publish(report domain.JobReport) error {
	event := s.Log.Info()
	if report.Status == domain.StatusFailure {
		event = s.Log.Error()
	}

	transferred, failed := 0, 0
	for _, result := range report.TransferResults {
		switch {
		case result.Success:
			transferred++
		case !result.Skipped:
			failed++
		}
	}

	event.
		Str("job", report.JobName).
		Str("run", report.RunID).
		Str("status", report.StatusText).
		Str("archive", report.ArchivePath).
		Int("transferred", transferred).
		Int("failedTransfers", failed).
		Int("errors", len(report.Errors)).
		Dur("elapsed", report.CompletedAt.Sub(report.StartedAt)).
		Msg("Backup job report")
	return nil
}

// JSONLinesSink appends one JSON document per report to a file, suitable for
// ingestion by log shippers.
type JSONLinesSink struct {
	Path string

	mu sync.Mutex
}

func (s *JSONLinesSink) Publish(report domain.JobReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("prepare report dir: %w", err)
	}

	f, err := os.OpenFile(s.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open report file: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Publish fans a report out to all sinks, logging sink failures instead of
// propagating them.
func Publish(logger zerolog.Logger, sinks []Sink, report domain.JobReport) {
	for _, sink := range sinks {
		if err := sink.Publish(report); err != nil {
			logger.Warn().Err(err).Str("job", report.JobName).Msg("Report sink failed")
		}
	}
}
