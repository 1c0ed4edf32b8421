// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package archive produces and verifies the local compressed archive by
// driving an external 7-Zip-compatible compression engine.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog"

	"github.com/autobrr/stowaway/internal/domain"
)

// ExecResult is one engine invocation outcome. ExitCode is -1 when the
// process could not be started or did not run to completion.
type ExecResult struct {
	ExitCode int
	Stderr   string
	Err      error
}

// Engine is the external compression engine contract. Exit code 0 means
// success, 1 means the engine reported warnings, anything else is a failure.
type Engine interface {
	Create(ctx context.Context, sources []string, archivePath string, params domain.CompressionParams, password string) ExecResult
	Test(ctx context.Context, archivePath string, params domain.CompressionParams, password string) ExecResult
}

// SevenZipEngine invokes a 7z-compatible binary.
type SevenZipEngine struct {
	Binary string
	Log    zerolog.Logger
}

// NewSevenZipEngine defaults to the 7z binary on PATH.
func NewSevenZipEngine(binary string, logger zerolog.Logger) *SevenZipEngine {
	if binary == "" {
		binary = "7z"
	}
	return &SevenZipEngine{Binary: binary, Log: logger}
}

func (e *SevenZipEngine) Create(ctx context.Context, sources []string, archivePath string, params domain.CompressionParams, password string) ExecResult {
	args := []string{"a", "-y", "-bd"}
	if params.ArchiveType != "" {
		args = append(args, "-t"+params.ArchiveType)
	}
	if params.Level > 0 {
		args = append(args, fmt.Sprintf("-mx=%d", params.Level))
	}
	if params.VolumeSize != "" {
		args = append(args, "-v"+params.VolumeSize)
	}
	if password != "" {
		args = append(args, "-p"+password, "-mhe=on")
	}
	args = append(args, params.ExtraArgs...)
	args = append(args, archivePath)
	args = append(args, sources...)

	return e.run(ctx, args, password != "")
}

func (e *SevenZipEngine) Test(ctx context.Context, archivePath string, params domain.CompressionParams, password string) ExecResult {
	args := []string{"t", "-y", "-bd"}
	if password != "" {
		args = append(args, "-p"+password)
	}
	args = append(args, archivePath)

	return e.run(ctx, args, password != "")
}

func (e *SevenZipEngine) run(ctx context.Context, args []string, hasPassword bool) ExecResult {
	cmd := exec.CommandContext(ctx, e.Binary, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logged := args
	if hasPassword {
		logged = redactPasswordArgs(args)
	}
	e.Log.Debug().Str("binary", e.Binary).Strs("args", logged).Msg("Invoking compression engine")

	if err := cmd.Start(); err != nil {
		e.Log.Error().Err(err).Str("binary", e.Binary).Msg("Failed to start compression engine")
		return ExecResult{ExitCode: -1, Err: err}
	}

	waitErr := cmd.Wait()
	result := ExecResult{ExitCode: -1, Stderr: stderr.String()}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}
	if waitErr != nil {
		if ctx.Err() != nil {
			result.Err = ctx.Err()
			return result
		}
		if _, isExit := waitErr.(*exec.ExitError); !isExit {
			result.Err = waitErr
		}
	}
	return result
}

func redactPasswordArgs(args []string) []string {
	redacted := make([]string, len(args))
	for i, arg := range args {
		if len(arg) > 2 && arg[:2] == "-p" {
			redacted[i] = "-p" + domain.RedactString(arg[2:])
			continue
		}
		redacted[i] = arg
	}
	return redacted
}
