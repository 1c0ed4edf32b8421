// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package targets

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/autobrr/stowaway/internal/backup"
	"github.com/autobrr/stowaway/internal/domain"
)

// localFSSettings configure a directory target on a mounted filesystem.
type localFSSettings struct {
	Path string `mapstructure:"path"`
}

// LocalFSProvider copies archives into another local (or mounted) directory.
type LocalFSProvider struct {
	Log zerolog.Logger
}

func (p *LocalFSProvider) Type() string { return "localfs" }

func (p *LocalFSProvider) ValidateSettings(cfg domain.TargetInstanceConfig) []string {
	var settings localFSSettings
	if err := decodeSettings(cfg, &settings); err != nil {
		return []string{err.Error()}
	}
	return validateLocalPath(settings.Path)
}

func validateLocalPath(path string) []string {
	var problems []string
	if strings.TrimSpace(path) == "" {
		problems = append(problems, "path is required")
	}
	return problems
}

func (p *LocalFSProvider) TestConnectivity(_ context.Context, cfg domain.TargetInstanceConfig) (bool, string) {
	var settings localFSSettings
	if err := decodeSettings(cfg, &settings); err != nil {
		return false, err.Error()
	}
	return probeDirectory(settings.Path)
}

func probeDirectory(path string) (bool, string) {
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Sprintf("cannot access %s: %v", path, err)
	}
	if !info.IsDir() {
		return false, fmt.Sprintf("%s is not a directory", path)
	}
	return true, fmt.Sprintf("directory %s reachable", path)
}

func (p *LocalFSProvider) Transfer(ctx context.Context, cfg domain.TargetInstanceConfig, req TransferRequest) domain.TransferResult {
	var settings localFSSettings
	start := time.Now()
	if err := decodeSettings(cfg, &settings); err != nil {
		return failedTransfer(cfg, req, start, err)
	}
	return copyToDirectory(p.Log, cfg, req, filepath.Join(settings.Path, req.JobName), start)
}

// copyToDirectory is shared with the UNC provider, whose remote base is a
// share path instead of a local directory.
func copyToDirectory(logger zerolog.Logger, cfg domain.TargetInstanceConfig, req TransferRequest, remoteDir string, start time.Time) domain.TransferResult {
	remotePath := filepath.Join(remoteDir, req.FileName)

	if req.Simulate {
		logger.Info().Str("target", cfg.Name).Str("remotePath", remotePath).Msg("Simulate: would copy file")
		return domain.TransferResult{Target: cfg.Name, FileName: req.FileName, Success: true, Skipped: false, RemotePath: remotePath, Duration: time.Since(start)}
	}

	if err := os.MkdirAll(remoteDir, 0o755); err != nil && !os.IsExist(err) {
		return failedTransfer(cfg, req, start, errors.Wrap(err, "create remote directory"))
	}

	src, err := os.Open(req.LocalPath)
	if err != nil {
		return failedTransfer(cfg, req, start, errors.Wrap(err, "open local file"))
	}
	defer src.Close()

	tmp := remotePath + ".partial"
	dst, err := os.Create(tmp)
	if err != nil {
		return failedTransfer(cfg, req, start, errors.Wrap(err, "create remote file"))
	}

	written, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return failedTransfer(cfg, req, start, errors.Wrap(err, "copy file"))
	}
	if err := os.Rename(tmp, remotePath); err != nil {
		_ = os.Remove(tmp)
		return failedTransfer(cfg, req, start, errors.Wrap(err, "finalize remote file"))
	}

	logger.Debug().Str("target", cfg.Name).Str("remotePath", remotePath).Int64("bytes", written).Msg("File copied to target")
	return domain.TransferResult{
		Target:           cfg.Name,
		FileName:         req.FileName,
		Success:          true,
		RemotePath:       remotePath,
		BytesTransferred: written,
		Duration:         time.Since(start),
	}
}

func (p *LocalFSProvider) ApplyRetention(ctx context.Context, cfg domain.TargetInstanceConfig, req RetentionRequest) []string {
	var settings localFSSettings
	if err := decodeSettings(cfg, &settings); err != nil {
		return []string{err.Error()}
	}
	return directoryRetention(p.Log, req, filepath.Join(settings.Path, req.JobName))
}

// directoryRetention applies the shared policy to a plain directory, with
// soft delete implemented as a move into a recycle subdirectory.
func directoryRetention(logger zerolog.Logger, req RetentionRequest, dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return []string{fmt.Sprintf("list %s: %v", dir, err)}
	}

	files := make([]backup.RemoteFileRef, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, backup.RemoteFileRef{
			Name:          entry.Name(),
			SortTimestamp: info.ModTime(),
			Handle:        filepath.Join(dir, entry.Name()),
		})
	}

	deleter := func(ref backup.RemoteFileRef, softDelete bool) error {
		path := ref.Handle.(string)
		if !softDelete {
			return os.Remove(path)
		}
		recycleDir := filepath.Join(dir, "recycle")
		if err := os.MkdirAll(recycleDir, 0o755); err != nil {
			return fmt.Errorf("create recycle directory: %w", err)
		}
		return os.Rename(path, filepath.Join(recycleDir, ref.Name))
	}

	return remoteRetention(logger, req, files, deleter)
}
