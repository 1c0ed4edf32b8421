// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Config is the application configuration, populated once at startup via a
// layered merge (defaults, config file, environment, CLI flags) and treated as
// read-only afterwards.
type Config struct {
	LogLevel string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath  string `toml:"logPath" mapstructure:"logPath"`

	// ReportPath, when set, receives one JSON line per finished job run.
	ReportPath string `toml:"reportPath" mapstructure:"reportPath"`

	// LockStaleAgeMinutes is the age after which a destination lock file left
	// behind by a dead run may be broken. Zero keeps the default.
	LockStaleAgeMinutes int `toml:"lockStaleAgeMinutes" mapstructure:"lockStaleAgeMinutes"`

	Set     SetSpec                `toml:"set" mapstructure:"set"`
	Jobs    []JobSpec              `toml:"jobs" mapstructure:"jobs"`
	Targets []TargetInstanceConfig `toml:"targets" mapstructure:"targets"`
}

// SetSpec controls how the ordered job list is executed.
type SetSpec struct {
	Name    string `toml:"name" mapstructure:"name"`
	OnError string `toml:"onError" mapstructure:"onError"` // stop | continue
}

// PasswordPolicy selects how a job's archive password is obtained.
type PasswordPolicy string

const (
	PasswordNone          PasswordPolicy = "none"
	PasswordInteractive   PasswordPolicy = "interactive"
	PasswordVaultSecret   PasswordPolicy = "vault"
	PasswordEncryptedFile PasswordPolicy = "encrypted-file"
	PasswordPlainText     PasswordPolicy = "plaintext"
)

// SourceSpec is one source path specifier. Plain paths set Path; snapshot
// sources set VMName plus GuestPaths and are resolved through the snapshot
// provider during pre-processing.
type SourceSpec struct {
	Path       string   `toml:"path" mapstructure:"path"`
	VMName     string   `toml:"vmName" mapstructure:"vmName"`
	GuestPaths []string `toml:"guestPaths" mapstructure:"guestPaths"`
}

// IsSnapshot reports whether this source requires a snapshot session.
func (s SourceSpec) IsSnapshot() bool {
	return s.VMName != ""
}

// CompressionParams are passed through to the compression engine adapter.
type CompressionParams struct {
	ArchiveType            string   `toml:"archiveType" mapstructure:"archiveType"` // e.g. 7z, zip
	Level                  int      `toml:"level" mapstructure:"level"`
	VolumeSize             string   `toml:"volumeSize" mapstructure:"volumeSize"` // e.g. 2g, 700m; empty = single file
	ExtraArgs              []string `toml:"extraArgs" mapstructure:"extraArgs"`
	TreatWarningsAsSuccess bool     `toml:"treatWarningsAsSuccess" mapstructure:"treatWarningsAsSuccess"`
	MaxRetryAttempts       int      `toml:"maxRetryAttempts" mapstructure:"maxRetryAttempts"`
	RetryDelaySeconds      int      `toml:"retryDelaySeconds" mapstructure:"retryDelaySeconds"`
}

// RetentionSettings configure one retention policy application.
type RetentionSettings struct {
	KeepCount           int  `toml:"keepCount" mapstructure:"keepCount"`
	ConfirmBeforeDelete bool `toml:"confirmBeforeDelete" mapstructure:"confirmBeforeDelete"`
	SoftDelete          bool `toml:"softDelete" mapstructure:"softDelete"`
}

// PasswordSpec configures archive password retrieval for a job.
type PasswordSpec struct {
	Policy PasswordPolicy `toml:"policy" mapstructure:"policy"`
	// Value holds the plain-text password for the plaintext policy.
	Value string `toml:"value" mapstructure:"value"`
	// SecretName and Vault select a vault secret.
	SecretName string `toml:"secretName" mapstructure:"secretName"`
	Vault      string `toml:"vault" mapstructure:"vault"`
	// EncryptedFile and IdentityFile select an age-encrypted password file.
	EncryptedFile string `toml:"encryptedFile" mapstructure:"encryptedFile"`
	IdentityFile  string `toml:"identityFile" mapstructure:"identityFile"`
}

// HookSpec names the scripts run around a job. Empty entries are skipped.
type HookSpec struct {
	PreBackup       string `toml:"preBackup" mapstructure:"preBackup"`
	PostBackup      string `toml:"postBackup" mapstructure:"postBackup"`
	FailOnHookError bool   `toml:"failOnHookError" mapstructure:"failOnHookError"`
}

// JobSpec describes one configured backup job. Immutable once loaded.
type JobSpec struct {
	Name           string            `toml:"name" mapstructure:"name"`
	Sources        []SourceSpec      `toml:"sources" mapstructure:"sources"`
	DestinationDir string            `toml:"destinationDir" mapstructure:"destinationDir"`
	BaseName       string            `toml:"baseName" mapstructure:"baseName"`
	DateFormat     string            `toml:"dateFormat" mapstructure:"dateFormat"`
	Extension      string            `toml:"extension" mapstructure:"extension"`
	Compression    CompressionParams `toml:"compression" mapstructure:"compression"`
	Password       PasswordSpec      `toml:"password" mapstructure:"password"`
	LocalRetention RetentionSettings `toml:"localRetention" mapstructure:"localRetention"`
	Checksum       bool              `toml:"checksum" mapstructure:"checksum"`
	VerifyArchive  bool              `toml:"verifyArchive" mapstructure:"verifyArchive"`
	Hooks          HookSpec          `toml:"hooks" mapstructure:"hooks"`

	// Targets references entries in Config.Targets by name, in transfer order.
	Targets []string `toml:"targets" mapstructure:"targets"`

	// SnapshotScript and SnapshotTeardownScript configure the snapshot
	// provider for VM-style sources.
	SnapshotScript         string `toml:"snapshotScript" mapstructure:"snapshotScript"`
	SnapshotTeardownScript string `toml:"snapshotTeardownScript" mapstructure:"snapshotTeardownScript"`
}

// TargetInstanceConfig is one configured remote destination. Settings are
// decoded exactly once by the selected provider into its typed settings
// struct; the core never reads the map at runtime.
type TargetInstanceConfig struct {
	Name            string             `toml:"name" mapstructure:"name"`
	Type            string             `toml:"type" mapstructure:"type"`
	Settings        map[string]any     `toml:"settings" mapstructure:"settings"`
	RemoteRetention *RetentionSettings `toml:"remoteRetention" mapstructure:"remoteRetention"`
}

// Validate checks cross-references and required fields after the layered
// merge. It returns all problems at once so operators can fix a config in one
// pass.
func (c *Config) Validate() error {
	var problems []string

	targetNames := make(map[string]struct{}, len(c.Targets))
	for i, target := range c.Targets {
		if strings.TrimSpace(target.Name) == "" {
			problems = append(problems, fmt.Sprintf("target #%d: name is required", i+1))
			continue
		}
		if _, dup := targetNames[target.Name]; dup {
			problems = append(problems, fmt.Sprintf("target %q: duplicate name", target.Name))
		}
		targetNames[target.Name] = struct{}{}
		if strings.TrimSpace(target.Type) == "" {
			problems = append(problems, fmt.Sprintf("target %q: type is required", target.Name))
		}
		if target.RemoteRetention != nil && target.RemoteRetention.KeepCount < 0 {
			problems = append(problems, fmt.Sprintf("target %q: keepCount must not be negative", target.Name))
		}
	}

	jobNames := make(map[string]struct{}, len(c.Jobs))
	for i, job := range c.Jobs {
		label := job.Name
		if strings.TrimSpace(label) == "" {
			problems = append(problems, fmt.Sprintf("job #%d: name is required", i+1))
			label = fmt.Sprintf("#%d", i+1)
		}
		if _, dup := jobNames[job.Name]; dup && job.Name != "" {
			problems = append(problems, fmt.Sprintf("job %q: duplicate name", job.Name))
		}
		jobNames[job.Name] = struct{}{}

		if len(job.Sources) == 0 {
			problems = append(problems, fmt.Sprintf("job %q: at least one source is required", label))
		}
		if strings.TrimSpace(job.DestinationDir) == "" {
			problems = append(problems, fmt.Sprintf("job %q: destinationDir is required", label))
		}
		if strings.TrimSpace(job.BaseName) == "" {
			problems = append(problems, fmt.Sprintf("job %q: baseName is required", label))
		}
		if strings.TrimSpace(job.DateFormat) == "" {
			problems = append(problems, fmt.Sprintf("job %q: dateFormat is required", label))
		}
		if !strings.HasPrefix(job.Extension, ".") {
			problems = append(problems, fmt.Sprintf("job %q: extension must start with a dot", label))
		}
		if job.LocalRetention.KeepCount < 0 {
			problems = append(problems, fmt.Sprintf("job %q: localRetention.keepCount must not be negative", label))
		}
		for _, ref := range job.Targets {
			if _, ok := targetNames[ref]; !ok {
				problems = append(problems, fmt.Sprintf("job %q: unknown target %q", label, ref))
			}
		}
		switch job.Password.Policy {
		case "", PasswordNone, PasswordInteractive, PasswordVaultSecret, PasswordEncryptedFile, PasswordPlainText:
		default:
			problems = append(problems, fmt.Sprintf("job %q: unknown password policy %q", label, job.Password.Policy))
		}
	}

	switch c.Set.OnError {
	case "", "stop", "continue":
	default:
		problems = append(problems, fmt.Sprintf("set.onError must be \"stop\" or \"continue\", got %q", c.Set.OnError))
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// ResolveTargets maps a job's ordered target references into their configs.
// Config.Validate guarantees every reference resolves.
func (c *Config) ResolveTargets(job *JobSpec) []TargetInstanceConfig {
	resolved := make([]TargetInstanceConfig, 0, len(job.Targets))
	for _, name := range job.Targets {
		for i := range c.Targets {
			if c.Targets[i].Name == name {
				resolved = append(resolved, c.Targets[i])
				break
			}
		}
	}
	return resolved
}
