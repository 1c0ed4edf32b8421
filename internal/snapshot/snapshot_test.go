// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package snapshot

import (
	"context"
	"runtime"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/stowaway/internal/hooks"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("snapshot script tests require a POSIX shell")
	}
}

func scriptProvider(create, teardown string) *ScriptProvider {
	logger := zerolog.Nop()
	return &ScriptProvider{
		CreateCommand:   create,
		TeardownCommand: teardown,
		Runner:          &hooks.Runner{Log: logger},
		Log:             logger,
	}
}

func TestScriptProviderCreateParsesMountedPaths(t *testing.T) {
	skipOnWindows(t)
	t.Parallel()

	p := scriptProvider(`sh -c 'echo /mnt/snap/root; echo /mnt/snap/var'`, "")

	session, err := p.Create(context.Background(), Spec{VMName: "db01", GuestPaths: []string{"/", "/var"}})
	require.NoError(t, err)

	assert.Equal(t, "db01", session.ID)
	assert.Equal(t, []string{"/mnt/snap/root", "/mnt/snap/var"}, session.MountedPaths)
}

func TestScriptProviderCreateFailures(t *testing.T) {
	skipOnWindows(t)
	t.Parallel()

	t.Run("non zero exit", func(t *testing.T) {
		t.Parallel()
		p := scriptProvider(`sh -c 'exit 7'`, "")
		_, err := p.Create(context.Background(), Spec{VMName: "db01"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exited 7")
	})

	t.Run("no mounted paths reported", func(t *testing.T) {
		t.Parallel()
		p := scriptProvider(`sh -c 'true'`, "")
		_, err := p.Create(context.Background(), Spec{VMName: "db01"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no mounted paths")
	})

	t.Run("no script configured", func(t *testing.T) {
		t.Parallel()
		p := scriptProvider("", "")
		_, err := p.Create(context.Background(), Spec{VMName: "db01"})
		require.Error(t, err)
	})
}

func TestScriptProviderTeardown(t *testing.T) {
	skipOnWindows(t)
	t.Parallel()

	p := scriptProvider("", `sh -c 'test "$STOWAWAY_SNAPSHOT_ID" = db01'`)

	require.NoError(t, p.Teardown(context.Background(), &Session{ID: "db01"}))
	require.NoError(t, p.Teardown(context.Background(), nil), "nil session teardown must be a no-op")

	failing := scriptProvider("", `sh -c 'exit 3'`)
	require.Error(t, failing.Teardown(context.Background(), &Session{ID: "db01"}))
}

func TestNoopProvider(t *testing.T) {
	t.Parallel()

	p := NoopProvider{}
	_, err := p.Create(context.Background(), Spec{VMName: "db01"})
	require.Error(t, err)
	require.NoError(t, p.Teardown(context.Background(), nil))
	require.NoError(t, p.Teardown(context.Background(), &Session{ID: "x"}))
}
