// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validConfig = `
logLevel = "DEBUG"

[set]
name = "nightly-set"
onError = "continue"

[[jobs]]
name = "documents"
destinationDir = "/backups/documents"
baseName = "Documents"
dateFormat = "yyyy-MM-dd HHmmss"
extension = ".7z"
targets = ["offsite"]

[[jobs.sources]]
path = "/home/user/documents"

[jobs.localRetention]
keepCount = 5

[[targets]]
name = "offsite"
type = "localfs"

[targets.settings]
path = "/mnt/offsite"

[targets.remoteRetention]
keepCount = 10
`

func TestNewLoadsFileValues(t *testing.T) {
	appCfg, err := New(writeConfig(t, validConfig))
	require.NoError(t, err)

	cfg := appCfg.Config
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "nightly-set", cfg.Set.Name)
	assert.Equal(t, "continue", cfg.Set.OnError)

	require.Len(t, cfg.Jobs, 1)
	job := cfg.Jobs[0]
	assert.Equal(t, "documents", job.Name)
	assert.Equal(t, "/home/user/documents", job.Sources[0].Path)
	assert.Equal(t, 5, job.LocalRetention.KeepCount)
	assert.Equal(t, []string{"offsite"}, job.Targets)

	require.Len(t, cfg.Targets, 1)
	target := cfg.Targets[0]
	assert.Equal(t, "localfs", target.Type)
	assert.Equal(t, "/mnt/offsite", target.Settings["path"])
	require.NotNil(t, target.RemoteRetention)
	assert.Equal(t, 10, target.RemoteRetention.KeepCount)
}

func TestNewAppliesDefaults(t *testing.T) {
	appCfg, err := New(writeConfig(t, "\n"))
	require.NoError(t, err)

	cfg := appCfg.Config
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "default", cfg.Set.Name)
	assert.Equal(t, "stop", cfg.Set.OnError)
	assert.Equal(t, 120, cfg.LockStaleAgeMinutes)
}

func TestNewEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("STOWAWAY__LOGLEVEL", "TRACE")

	appCfg, err := New(writeConfig(t, `logLevel = "INFO"`))
	require.NoError(t, err)

	assert.Equal(t, "TRACE", appCfg.Config.LogLevel)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "job_references_unknown_target",
			content: `
[[jobs]]
name = "docs"
destinationDir = "/b"
baseName = "Docs"
dateFormat = "yyyy-MM-dd"
extension = ".7z"
targets = ["nope"]
[[jobs.sources]]
path = "/tmp"
`,
			wantErr: `unknown target "nope"`,
		},
		{
			name: "extension_without_dot",
			content: `
[[jobs]]
name = "docs"
destinationDir = "/b"
baseName = "Docs"
dateFormat = "yyyy-MM-dd"
extension = "7z"
[[jobs.sources]]
path = "/tmp"
`,
			wantErr: "extension must start with a dot",
		},
		{
			name: "bad_on_error_policy",
			content: `
[set]
onError = "explode"
`,
			wantErr: "set.onError",
		},
		{
			name: "duplicate_target_names",
			content: `
[[targets]]
name = "a"
type = "localfs"
[[targets]]
name = "a"
type = "localfs"
`,
			wantErr: "duplicate name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewWritesTemplateForMissingExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	_, err := New(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "template was written")
	assert.FileExists(t, path)

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "logLevel")
}

func TestNewAcceptsDirectoryPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`logLevel = "WARN"`), 0o644))

	appCfg, err := New(dir)
	require.NoError(t, err)
	assert.Equal(t, "WARN", appCfg.Config.LogLevel)
	assert.Equal(t, filepath.Join(dir, "config.toml"), appCfg.FileUsed())
}
