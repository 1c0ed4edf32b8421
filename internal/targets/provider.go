// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package targets implements the pluggable remote storage backends. Every
// backend shares one transfer/retention lifecycle so heterogeneous protocols
// behave identically from the orchestrator's point of view.
package targets

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog"

	"github.com/autobrr/stowaway/internal/backup"
	"github.com/autobrr/stowaway/internal/domain"
)

// TransferRequest asks a provider to upload exactly one local file into the
// job's remote directory.
type TransferRequest struct {
	LocalPath string
	JobName   string
	FileName  string
	Simulate  bool
}

// RetentionRequest asks a provider to apply the instance-count policy to the
// job's remote directory using its native list/delete calls.
type RetentionRequest struct {
	JobName    string
	BaseName   string
	DateFormat string
	Extension  string
	Retention  domain.RetentionSettings
	Confirm    backup.ConfirmFunc
	Simulate   bool
}

// Provider is implemented once per backend type.
type Provider interface {
	// Type is the config identifier, e.g. "sftp".
	Type() string

	// ValidateSettings decodes cfg's settings and returns human-readable
	// problems. Pure; performs no I/O.
	ValidateSettings(cfg domain.TargetInstanceConfig) []string

	// TestConnectivity performs a cheap reachability probe without mutating
	// remote state.
	TestConnectivity(ctx context.Context, cfg domain.TargetInstanceConfig) (bool, string)

	// Transfer uploads one local file, creating intermediate remote
	// directories as needed. Directory creation is idempotent.
	Transfer(ctx context.Context, cfg domain.TargetInstanceConfig, req TransferRequest) domain.TransferResult

	// ApplyRetention lists the job's remote directory, groups instances and
	// deletes expired ones. Returned strings are non-fatal problem reports.
	ApplyRetention(ctx context.Context, cfg domain.TargetInstanceConfig, req RetentionRequest) []string
}

// Registry maps provider type identifiers to implementations.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Type()] = p
	}
	return r
}

// DefaultRegistry wires every built-in backend. The replicate provider
// resolves its children through the returned registry.
func DefaultRegistry(logger zerolog.Logger) *Registry {
	r := NewRegistry(
		&LocalFSProvider{Log: logger},
		&UNCProvider{Log: logger},
		&SFTPProvider{Log: logger},
		&WebDAVProvider{Log: logger},
		&S3Provider{Log: logger},
		&AzureBlobProvider{Log: logger},
	)
	r.Register(&ReplicateProvider{Log: logger, Registry: r})
	return r
}

func (r *Registry) Register(p Provider) {
	r.providers[p.Type()] = p
}

// Lookup returns the provider for a target type.
func (r *Registry) Lookup(targetType string) (Provider, error) {
	p, ok := r.providers[targetType]
	if !ok {
		return nil, fmt.Errorf("unknown target type %q", targetType)
	}
	return p, nil
}

// Types returns the registered type identifiers, sorted.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.providers))
	for t := range r.providers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// decodeSettings populates a provider's typed settings struct from the
// target's settings map, once per call site. Unknown keys are rejected so
// typos surface during validation instead of being silently ignored.
func decodeSettings(cfg domain.TargetInstanceConfig, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(cfg.Settings); err != nil {
		return fmt.Errorf("target %q settings: %w", cfg.Name, err)
	}
	return nil
}

// failedTransfer builds a uniform failure result.
func failedTransfer(cfg domain.TargetInstanceConfig, req TransferRequest, start time.Time, err error) domain.TransferResult {
	return domain.TransferResult{
		Target:       cfg.Name,
		FileName:     req.FileName,
		Duration:     time.Since(start),
		ErrorMessage: err.Error(),
	}
}

// remoteRetention runs the shared grouping + policy core over a backend's
// listing and deleter.
func remoteRetention(logger zerolog.Logger, req RetentionRequest, files []backup.RemoteFileRef, deleter backup.Deleter) []string {
	instances, err := backup.Group(files, req.BaseName, req.DateFormat, req.Extension)
	if err != nil {
		return []string{fmt.Sprintf("group remote files: %v", err)}
	}

	result := backup.ApplyRetention(logger, instances, backup.RetentionOptions{
		KeepCount:  req.Retention.KeepCount,
		SoftDelete: req.Retention.SoftDelete,
		Confirm:    confirmGate(req),
		Simulate:   req.Simulate,
	}, deleter)

	return result.Errors
}

func confirmGate(req RetentionRequest) backup.ConfirmFunc {
	if !req.Retention.ConfirmBeforeDelete {
		return nil
	}
	if req.Confirm != nil {
		return req.Confirm
	}
	// Confirmation requested but no gate injected: veto destructive calls.
	return func(string) bool { return false }
}
