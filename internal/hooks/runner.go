// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package hooks runs user-configured scripts around a backup job.
package hooks

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/Hellseher/go-shellquote"
	"github.com/rs/zerolog"
)

// Result captures one hook invocation.
type Result struct {
	Started  bool
	ExitCode int
	Output   string
	Duration time.Duration
	Err      error
}

// Succeeded reports whether the hook ran and exited zero.
func (r Result) Succeeded() bool {
	return r.Started && r.Err == nil && r.ExitCode == 0
}

// Runner executes hook command lines with job context exposed through the
// environment.
type Runner struct {
	Log zerolog.Logger
}

// Run splits commandLine shell-style, executes it and waits for completion.
// Params are exported as STOWAWAY_<KEY> environment variables so hooks can
// see the job name, phase and archive path without argument plumbing.
func (r *Runner) Run(ctx context.Context, commandLine string, params map[string]string) Result {
	start := time.Now()

	words, err := shellquote.Split(commandLine)
	if err != nil {
		return Result{Err: fmt.Errorf("parse hook command: %w", err), Duration: time.Since(start)}
	}
	if len(words) == 0 {
		return Result{Err: fmt.Errorf("empty hook command"), Duration: time.Since(start)}
	}

	cmd := exec.CommandContext(ctx, words[0], words[1:]...)
	cmd.Env = os.Environ()
	for key, value := range params {
		cmd.Env = append(cmd.Env, "STOWAWAY_"+key+"="+value)
	}

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	r.Log.Debug().Str("command", commandLine).Msg("Running hook")

	if err := cmd.Start(); err != nil {
		r.Log.Error().Err(err).Str("command", commandLine).Msg("Failed to start hook")
		return Result{Err: err, ExitCode: -1, Duration: time.Since(start)}
	}

	waitErr := cmd.Wait()
	result := Result{
		Started:  true,
		ExitCode: -1,
		Output:   output.String(),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if waitErr != nil {
		if ctx.Err() != nil {
			result.Err = ctx.Err()
			r.Log.Warn().Err(ctx.Err()).Str("command", commandLine).Dur("duration", result.Duration).Msg("Hook cancelled or timed out")
			return result
		}
		if _, isExit := waitErr.(*exec.ExitError); !isExit {
			result.Err = waitErr
		}
		r.Log.Debug().
			Err(waitErr).
			Int("exitCode", result.ExitCode).
			Str("command", commandLine).
			Dur("duration", result.Duration).
			Msg("Hook exited with non-zero status")
		return result
	}

	r.Log.Debug().Str("command", commandLine).Dur("duration", result.Duration).Msg("Hook completed successfully")
	return result
}
