// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package backup

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeInstances(t *testing.T, count int) map[string]Instance {
	t.Helper()

	instances := make(map[string]Instance, count)
	for i := 0; i < count; i++ {
		key := fmt.Sprintf("Job [2024-01-%02d].7z", i+1)
		instances[key] = Instance{
			Key:       key,
			Timestamp: time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC),
			Files: []RemoteFileRef{
				{Name: key, SortTimestamp: time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC)},
			},
		}
	}
	return instances
}

func TestApplyRetentionDeletesOldestBeyondKeepCount(t *testing.T) {
	t.Parallel()

	instances := makeInstances(t, 5)
	var deleted []string
	deleter := func(ref RemoteFileRef, _ bool) error {
		deleted = append(deleted, ref.Name)
		return nil
	}

	result := ApplyRetention(zerolog.Nop(), instances, RetentionOptions{KeepCount: 2}, deleter)

	require.Len(t, deleted, 3)
	assert.ElementsMatch(t, []string{
		"Job [2024-01-01].7z",
		"Job [2024-01-02].7z",
		"Job [2024-01-03].7z",
	}, deleted)
	assert.Equal(t, 2, result.KeptInstances)
	assert.Equal(t, 3, result.DeletedInstances)
	assert.Empty(t, result.Errors)
}

func TestApplyRetentionZeroKeepCountIsNoop(t *testing.T) {
	t.Parallel()

	instances := makeInstances(t, 4)
	deleter := func(ref RemoteFileRef, _ bool) error {
		t.Fatalf("unexpected delete of %s", ref.Name)
		return nil
	}

	result := ApplyRetention(zerolog.Nop(), instances, RetentionOptions{KeepCount: 0}, deleter)
	assert.Empty(t, result.DeletedFiles)
	assert.Equal(t, 4, result.KeptInstances)
}

func TestApplyRetentionSingleFailureDoesNotStopIteration(t *testing.T) {
	t.Parallel()

	instances := makeInstances(t, 4)
	var attempted []string
	deleter := func(ref RemoteFileRef, _ bool) error {
		attempted = append(attempted, ref.Name)
		if ref.Name == "Job [2024-01-02].7z" {
			return errors.New("permission denied")
		}
		return nil
	}

	result := ApplyRetention(zerolog.Nop(), instances, RetentionOptions{KeepCount: 1}, deleter)

	assert.Len(t, attempted, 3)
	assert.Len(t, result.DeletedFiles, 2)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "permission denied")
}

func TestApplyRetentionConfirmationVetoSkipsFile(t *testing.T) {
	t.Parallel()

	instances := makeInstances(t, 3)
	deleter := func(ref RemoteFileRef, _ bool) error {
		t.Fatalf("unexpected delete of %s", ref.Name)
		return nil
	}

	result := ApplyRetention(zerolog.Nop(), instances, RetentionOptions{
		KeepCount: 1,
		Confirm:   func(string) bool { return false },
	}, deleter)

	assert.Len(t, result.SkippedFiles, 2)
	assert.Empty(t, result.DeletedFiles)
	assert.Empty(t, result.Errors)
}

func TestApplyRetentionSimulateDeletesNothing(t *testing.T) {
	t.Parallel()

	instances := makeInstances(t, 3)
	deleter := func(ref RemoteFileRef, _ bool) error {
		t.Fatalf("unexpected delete of %s", ref.Name)
		return nil
	}

	result := ApplyRetention(zerolog.Nop(), instances, RetentionOptions{KeepCount: 1, Simulate: true}, deleter)
	assert.Len(t, result.SkippedFiles, 2)
	assert.Empty(t, result.DeletedFiles)
}

func TestApplyRetentionInputOrderIndependent(t *testing.T) {
	t.Parallel()

	// Maps iterate in random order already, but make the invariant explicit:
	// the newest two instances survive no matter how timestamps interleave.
	instances := map[string]Instance{
		"b": {Key: "b", Timestamp: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), Files: []RemoteFileRef{{Name: "b"}}},
		"a": {Key: "a", Timestamp: time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC), Files: []RemoteFileRef{{Name: "a"}}},
		"c": {Key: "c", Timestamp: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Files: []RemoteFileRef{{Name: "c"}}},
	}

	var deleted []string
	result := ApplyRetention(zerolog.Nop(), instances, RetentionOptions{KeepCount: 2}, func(ref RemoteFileRef, _ bool) error {
		deleted = append(deleted, ref.Name)
		return nil
	})

	assert.Equal(t, []string{"c"}, deleted)
	assert.Equal(t, 2, result.KeptInstances)
}
