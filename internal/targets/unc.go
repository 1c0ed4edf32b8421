// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package targets

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/autobrr/stowaway/internal/domain"
)

// uncSettings configure a Windows share target. The share must already be
// reachable through the OS (mounted or UNC-resolvable); credentials are
// handled by the platform, not by stowaway.
type uncSettings struct {
	SharePath string `mapstructure:"sharePath"`
	// Subdir is an optional path below the share root.
	Subdir string `mapstructure:"subdir"`
}

// UNCProvider stores archives on an SMB share addressed by UNC path. It
// shares the filesystem transfer/retention mechanics with the localfs
// provider; only settings shape and validation differ.
type UNCProvider struct {
	Log zerolog.Logger
}

func (p *UNCProvider) Type() string { return "unc" }

func (s *uncSettings) baseDir() string {
	if s.Subdir == "" {
		return s.SharePath
	}
	return filepath.Join(s.SharePath, s.Subdir)
}

func (p *UNCProvider) ValidateSettings(cfg domain.TargetInstanceConfig) []string {
	var settings uncSettings
	if err := decodeSettings(cfg, &settings); err != nil {
		return []string{err.Error()}
	}

	var problems []string
	if strings.TrimSpace(settings.SharePath) == "" {
		problems = append(problems, "sharePath is required")
	} else if !isUNCPath(settings.SharePath) {
		problems = append(problems, fmt.Sprintf("sharePath %q is not a UNC path (expected \\\\server\\share)", settings.SharePath))
	}
	if strings.HasPrefix(settings.Subdir, `\\`) {
		problems = append(problems, "subdir must be relative to the share root")
	}
	return problems
}

// isUNCPath checks the \\server\share shape without touching the network.
func isUNCPath(path string) bool {
	if !strings.HasPrefix(path, `\\`) {
		return false
	}
	parts := strings.Split(strings.TrimPrefix(path, `\\`), `\`)
	if len(parts) < 2 {
		return false
	}
	return parts[0] != "" && parts[1] != ""
}

func (p *UNCProvider) TestConnectivity(_ context.Context, cfg domain.TargetInstanceConfig) (bool, string) {
	var settings uncSettings
	if err := decodeSettings(cfg, &settings); err != nil {
		return false, err.Error()
	}
	return probeDirectory(settings.baseDir())
}

func (p *UNCProvider) Transfer(ctx context.Context, cfg domain.TargetInstanceConfig, req TransferRequest) domain.TransferResult {
	var settings uncSettings
	start := time.Now()
	if err := decodeSettings(cfg, &settings); err != nil {
		return failedTransfer(cfg, req, start, err)
	}
	return copyToDirectory(p.Log, cfg, req, filepath.Join(settings.baseDir(), req.JobName), start)
}

func (p *UNCProvider) ApplyRetention(ctx context.Context, cfg domain.TargetInstanceConfig, req RetentionRequest) []string {
	var settings uncSettings
	if err := decodeSettings(cfg, &settings); err != nil {
		return []string{err.Error()}
	}
	return directoryRetention(p.Log, req, filepath.Join(settings.baseDir(), req.JobName))
}
