// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

const lockFileName = ".stowaway.lock"

// defaultLockStaleAge bounds how long a lock left behind by a dead run can
// block the destination directory.
const defaultLockStaleAge = 2 * time.Hour

// Lock guards a job's destination directory against concurrent runs. The
// lock is advisory: a marker file created exclusively, broken only when its
// age exceeds the stale threshold.
type Lock struct {
	path string
	log  zerolog.Logger
}

// AcquireLock takes the destination lock for dir, breaking a stale one at
// most once. staleAge <= 0 selects the default.
func AcquireLock(dir string, staleAge time.Duration, logger zerolog.Logger) (*Lock, error) {
	if staleAge <= 0 {
		staleAge = defaultLockStaleAge
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare destination %s: %w", dir, err)
	}

	path := filepath.Join(dir, lockFileName)
	hostname, _ := os.Hostname()

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "pid=%d host=%s acquired=%s\n", os.Getpid(), hostname, time.Now().Format(time.RFC3339))
			f.Close()
			return &Lock{path: path, log: logger}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create destination lock %s: %w", path, err)
		}

		info, statErr := os.Stat(path)
		if statErr != nil {
			// The holder released between our open and stat; try again.
			continue
		}
		age := time.Since(info.ModTime())
		if age < staleAge {
			return nil, fmt.Errorf("destination %s is locked by another run (lock age %s)", dir, age.Round(time.Second))
		}

		logger.Warn().Str("lock", path).Dur("age", age).Msg("Breaking stale destination lock")
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("break stale lock %s: %w", path, err)
		}
	}

	return nil, fmt.Errorf("could not acquire destination lock %s", path)
}

// Release removes the lock file. Safe on nil.
func (l *Lock) Release() {
	if l == nil {
		return
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		l.log.Warn().Err(err).Str("lock", l.path).Msg("Failed to release destination lock")
	}
}
