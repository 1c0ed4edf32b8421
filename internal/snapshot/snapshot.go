// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package snapshot defines the point-in-time source view contract. Hypervisor
// and VSS specifics live behind the Provider interface; stowaway ships a
// script-driven implementation so any snapshot tooling can be plugged in.
package snapshot

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/autobrr/stowaway/internal/hooks"
)

// Spec describes the snapshot to take.
type Spec struct {
	VMName     string
	GuestPaths []string
}

// Session is the handle for a created snapshot, needed for teardown.
type Session struct {
	ID           string
	MountedPaths []string
}

// Provider creates and tears down snapshots. Teardown must be a no-op for a
// nil session so cleanup can call it unconditionally.
type Provider interface {
	Create(ctx context.Context, spec Spec) (*Session, error)
	Teardown(ctx context.Context, session *Session) error
}

// NoopProvider is used for jobs without snapshot sources.
type NoopProvider struct{}

func (NoopProvider) Create(_ context.Context, spec Spec) (*Session, error) {
	return nil, fmt.Errorf("no snapshot provider configured for VM %q", spec.VMName)
}

func (NoopProvider) Teardown(context.Context, *Session) error { return nil }

// ScriptProvider shells out to configured create/teardown scripts. The create
// script receives the VM name and guest paths via the hook environment and
// must print one mounted path per stdout line.
type ScriptProvider struct {
	CreateCommand   string
	TeardownCommand string
	Runner          *hooks.Runner
	Log             zerolog.Logger
}

func (p *ScriptProvider) Create(ctx context.Context, spec Spec) (*Session, error) {
	if p.CreateCommand == "" {
		return nil, fmt.Errorf("snapshot requested for VM %q but no snapshot script configured", spec.VMName)
	}

	result := p.Runner.Run(ctx, p.CreateCommand, map[string]string{
		"VM_NAME":     spec.VMName,
		"GUEST_PATHS": strings.Join(spec.GuestPaths, ":"),
	})
	if !result.Succeeded() {
		if result.Err != nil {
			return nil, fmt.Errorf("snapshot script for VM %q: %w", spec.VMName, result.Err)
		}
		return nil, fmt.Errorf("snapshot script for VM %q exited %d: %s", spec.VMName, result.ExitCode, strings.TrimSpace(result.Output))
	}

	var mounted []string
	for _, line := range strings.Split(result.Output, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			mounted = append(mounted, trimmed)
		}
	}
	if len(mounted) == 0 {
		return nil, fmt.Errorf("snapshot script for VM %q reported no mounted paths", spec.VMName)
	}

	session := &Session{ID: spec.VMName, MountedPaths: mounted}
	p.Log.Info().Str("vm", spec.VMName).Strs("mountedPaths", mounted).Msg("Snapshot created")
	return session, nil
}

// Teardown releases the snapshot. Nil sessions are ignored.
func (p *ScriptProvider) Teardown(ctx context.Context, session *Session) error {
	if session == nil {
		return nil
	}
	if p.TeardownCommand == "" {
		p.Log.Warn().Str("session", session.ID).Msg("No snapshot teardown script configured, leaving snapshot in place")
		return nil
	}

	result := p.Runner.Run(ctx, p.TeardownCommand, map[string]string{
		"SNAPSHOT_ID": session.ID,
	})
	if !result.Succeeded() {
		if result.Err != nil {
			return fmt.Errorf("teardown snapshot %q: %w", session.ID, result.Err)
		}
		return fmt.Errorf("teardown snapshot %q exited %d: %s", session.ID, result.ExitCode, strings.TrimSpace(result.Output))
	}

	p.Log.Info().Str("session", session.ID).Msg("Snapshot torn down")
	return nil
}
