// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package backup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupSplitArchiveCollapsesIntoOneInstance(t *testing.T) {
	t.Parallel()

	files := []RemoteFileRef{
		{Name: "Job [2024-01-01].7z.001", SortTimestamp: time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC)},
		{Name: "Job [2024-01-01].7z.002", SortTimestamp: time.Date(2024, 1, 1, 3, 1, 0, 0, time.UTC)},
		{Name: "Job [2024-01-01].7z.manifest.sha256", SortTimestamp: time.Date(2024, 1, 1, 3, 5, 0, 0, time.UTC)},
	}

	instances, err := Group(files, "Job", "yyyy-MM-dd", ".7z")
	require.NoError(t, err)
	require.Len(t, instances, 1)

	inst, ok := instances["Job [2024-01-01].7z"]
	require.True(t, ok)
	assert.Len(t, inst.Files, 3)
	// Oldest member wins as the representative timestamp.
	assert.Equal(t, time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC), inst.Timestamp)
}

func TestGroupIgnoresForeignFiles(t *testing.T) {
	t.Parallel()

	files := []RemoteFileRef{
		{Name: "Job [2024-02-02].7z", SortTimestamp: time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)},
		{Name: "unrelated.txt"},
		{Name: "OtherJob [2024-02-02].7z"},
		{Name: "Job without stamp.7z"},
	}

	instances, err := Group(files, "Job", "yyyy-MM-dd", ".7z")
	require.NoError(t, err)
	require.Len(t, instances, 1)
	_, ok := instances["Job [2024-02-02].7z"]
	assert.True(t, ok)
}

func TestGroupEmptyListing(t *testing.T) {
	t.Parallel()

	instances, err := Group(nil, "Job", "yyyy-MM-dd", ".7z")
	require.NoError(t, err)
	assert.Empty(t, instances)
}

func TestGroupIsIdempotentOverUnionOfResults(t *testing.T) {
	t.Parallel()

	first := []RemoteFileRef{
		{Name: "Job [2024-03-01].7z", SortTimestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{Name: "Job [2024-03-01].7z.manifest.sha256", SortTimestamp: time.Date(2024, 3, 1, 0, 1, 0, 0, time.UTC)},
	}
	second := []RemoteFileRef{
		{Name: "Job [2024-03-02].7z", SortTimestamp: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)},
	}

	a, err := Group(first, "Job", "yyyy-MM-dd", ".7z")
	require.NoError(t, err)
	b, err := Group(second, "Job", "yyyy-MM-dd", ".7z")
	require.NoError(t, err)

	var union []RemoteFileRef
	for _, inst := range a {
		union = append(union, inst.Files...)
	}
	for _, inst := range b {
		union = append(union, inst.Files...)
	}

	regrouped, err := Group(union, "Job", "yyyy-MM-dd", ".7z")
	require.NoError(t, err)
	require.Len(t, regrouped, 2)
	assert.Equal(t, a["Job [2024-03-01].7z"].Timestamp, regrouped["Job [2024-03-01].7z"].Timestamp)
	assert.Equal(t, b["Job [2024-03-02].7z"].Timestamp, regrouped["Job [2024-03-02].7z"].Timestamp)
}

func TestGroupFallsBackToNameStampWhenMtimeMissing(t *testing.T) {
	t.Parallel()

	files := []RemoteFileRef{
		{Name: "Job [2024-04-05 120000].7z"},
	}

	instances, err := Group(files, "Job", "yyyy-MM-dd HHmmss", ".7z")
	require.NoError(t, err)
	require.Len(t, instances, 1)

	inst := instances["Job [2024-04-05 120000].7z"]
	assert.Equal(t, time.Date(2024, 4, 5, 12, 0, 0, 0, time.UTC), inst.Timestamp)
}

func TestGroupBaseNameWithRegexMetaCharacters(t *testing.T) {
	t.Parallel()

	files := []RemoteFileRef{
		{Name: "My (Docs) [2024-01-01].7z", SortTimestamp: time.Now()},
	}

	instances, err := Group(files, "My (Docs)", "yyyy-MM-dd", ".7z")
	require.NoError(t, err)
	assert.Len(t, instances, 1)
}

func TestCompilePatternMonthNameToken(t *testing.T) {
	t.Parallel()

	pattern, err := CompilePattern("Job", "dd-MMM-yyyy", ".7z")
	require.NoError(t, err)

	key := pattern.Match("Job [05-Mar-2024].7z.001")
	assert.Equal(t, "Job [05-Mar-2024].7z", key)

	ts, ok := pattern.ParseTimestamp("Job [05-Mar-2024].7z.001")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), ts)
}

func TestCompilePatternRejectsEmptyBaseName(t *testing.T) {
	t.Parallel()

	_, err := CompilePattern("  ", "yyyy-MM-dd", ".7z")
	require.Error(t, err)
}
