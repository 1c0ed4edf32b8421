// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParsesLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, zerolog.DebugLevel, New(Options{Level: "DEBUG"}).GetLevel())
	assert.Equal(t, zerolog.TraceLevel, New(Options{Level: "trace"}).GetLevel())
	assert.Equal(t, zerolog.InfoLevel, New(Options{Level: "bogus"}).GetLevel())
	assert.Equal(t, zerolog.InfoLevel, New(Options{}).GetLevel())
}

func TestCollectorBuffersAndDrains(t *testing.T) {
	t.Parallel()

	collector := &Collector{}
	log := New(Options{Level: "DEBUG"}, collector)

	log.Info().Str("job", "nightly").Msg("first")
	log.Warn().Msg("second")

	lines := collector.Drain()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "first")
	assert.Contains(t, lines[1], "second")

	assert.Empty(t, collector.Drain(), "drain must reset the buffer")
}

func TestCollectorIgnoresLinesBelowLevel(t *testing.T) {
	t.Parallel()

	collector := &Collector{}
	log := New(Options{Level: "ERROR"}, collector)

	log.Info().Msg("filtered out")
	log.Error().Msg("kept")

	lines := collector.Drain()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "kept")
}
