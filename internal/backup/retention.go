// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package backup

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// Deleter removes one file through the owning backend's native delete call.
// SoftDelete is a hint; backends without a recycle mechanism hard-delete.
type Deleter func(ref RemoteFileRef, softDelete bool) error

// ConfirmFunc gates each deletion. Returning false skips the file without
// recording an error.
type ConfirmFunc func(name string) bool

// RetentionOptions configure one policy application.
type RetentionOptions struct {
	KeepCount  int
	SoftDelete bool
	// Confirm is consulted per file when set. Nil means always delete.
	Confirm ConfirmFunc
	// Simulate logs what would be deleted without calling the deleter.
	Simulate bool
}

// RetentionResult reports what one policy application did.
type RetentionResult struct {
	KeptInstances    int
	DeletedInstances int
	DeletedFiles     []string
	SkippedFiles     []string
	Errors           []string
}

// ApplyRetention keeps the newest KeepCount instances by representative
// timestamp and deletes every member file of the rest. A KeepCount of zero or
// below disables the policy. Individual deletion failures are recorded and
// iteration continues so one bad file cannot block cleanup of the rest.
func ApplyRetention(logger zerolog.Logger, instances map[string]Instance, opts RetentionOptions, deleter Deleter) RetentionResult {
	result := RetentionResult{}

	if opts.KeepCount <= 0 {
		result.KeptInstances = len(instances)
		logger.Debug().Int("instances", len(instances)).Msg("Retention disabled, keeping everything")
		return result
	}

	ordered := make([]Instance, 0, len(instances))
	for _, inst := range instances {
		ordered = append(ordered, inst)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Timestamp.Equal(ordered[j].Timestamp) {
			return ordered[i].Key > ordered[j].Key
		}
		return ordered[i].Timestamp.After(ordered[j].Timestamp)
	})

	if len(ordered) <= opts.KeepCount {
		result.KeptInstances = len(ordered)
		return result
	}

	result.KeptInstances = opts.KeepCount

	for _, inst := range ordered[opts.KeepCount:] {
		result.DeletedInstances++
		for _, file := range inst.Files {
			if opts.Confirm != nil && !opts.Confirm(file.Name) {
				logger.Info().Str("file", file.Name).Msg("Deletion vetoed by confirmation gate")
				result.SkippedFiles = append(result.SkippedFiles, file.Name)
				continue
			}
			if opts.Simulate {
				logger.Info().Str("file", file.Name).Msg("Simulate: would delete")
				result.SkippedFiles = append(result.SkippedFiles, file.Name)
				continue
			}
			if err := deleter(file, opts.SoftDelete); err != nil {
				logger.Warn().Err(err).Str("file", file.Name).Msg("Failed to delete expired backup file")
				result.Errors = append(result.Errors, fmt.Sprintf("delete %s: %v", file.Name, err))
				continue
			}
			logger.Debug().Str("file", file.Name).Str("instance", inst.Key).Msg("Deleted expired backup file")
			result.DeletedFiles = append(result.DeletedFiles, file.Name)
		}
	}

	return result
}
