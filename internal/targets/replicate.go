// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package targets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/autobrr/stowaway/internal/domain"
)

// replicateSettings fan one logical target out across N child targets.
// Children are full inline target definitions; each keeps its own outcome.
type replicateSettings struct {
	Children []domain.TargetInstanceConfig `mapstructure:"children"`
}

// ReplicateProvider writes every file to all of its children. A child
// failure is contained; the replicate transfer fails when any child fails so
// the orchestrator escalates to WARNINGS, but remaining children still run.
type ReplicateProvider struct {
	Log      zerolog.Logger
	Registry *Registry
}

func (p *ReplicateProvider) Type() string { return "replicate" }

func (p *ReplicateProvider) ValidateSettings(cfg domain.TargetInstanceConfig) []string {
	var settings replicateSettings
	if err := decodeSettings(cfg, &settings); err != nil {
		return []string{err.Error()}
	}

	var problems []string
	if len(settings.Children) == 0 {
		problems = append(problems, "at least one child target is required")
	}
	for i, child := range settings.Children {
		label := child.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}
		if child.Type == "replicate" {
			problems = append(problems, fmt.Sprintf("child %s: nested replicate targets are not supported", label))
			continue
		}
		provider, err := p.Registry.Lookup(child.Type)
		if err != nil {
			problems = append(problems, fmt.Sprintf("child %s: %v", label, err))
			continue
		}
		for _, problem := range provider.ValidateSettings(child) {
			problems = append(problems, fmt.Sprintf("child %s: %s", label, problem))
		}
	}
	return problems
}

func (p *ReplicateProvider) TestConnectivity(ctx context.Context, cfg domain.TargetInstanceConfig) (bool, string) {
	var settings replicateSettings
	if err := decodeSettings(cfg, &settings); err != nil {
		return false, err.Error()
	}

	ok := true
	var messages []string
	for _, child := range settings.Children {
		provider, err := p.Registry.Lookup(child.Type)
		if err != nil {
			ok = false
			messages = append(messages, fmt.Sprintf("%s: %v", child.Name, err))
			continue
		}
		childOK, message := provider.TestConnectivity(ctx, child)
		if !childOK {
			ok = false
		}
		messages = append(messages, fmt.Sprintf("%s: %s", child.Name, message))
	}
	return ok, strings.Join(messages, "; ")
}

func (p *ReplicateProvider) Transfer(ctx context.Context, cfg domain.TargetInstanceConfig, req TransferRequest) domain.TransferResult {
	var settings replicateSettings
	start := time.Now()
	if err := decodeSettings(cfg, &settings); err != nil {
		return failedTransfer(cfg, req, start, err)
	}

	var total int64
	var failures []string
	remotePaths := make([]string, 0, len(settings.Children))

	for _, child := range settings.Children {
		provider, err := p.Registry.Lookup(child.Type)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", child.Name, err))
			continue
		}

		childResult := provider.Transfer(ctx, child, req)
		if !childResult.Success {
			p.Log.Warn().Str("target", cfg.Name).Str("child", child.Name).Str("error", childResult.ErrorMessage).Msg("Replica transfer failed")
			failures = append(failures, fmt.Sprintf("%s: %s", child.Name, childResult.ErrorMessage))
			continue
		}
		total += childResult.BytesTransferred
		remotePaths = append(remotePaths, childResult.RemotePath)
	}

	result := domain.TransferResult{
		Target:           cfg.Name,
		FileName:         req.FileName,
		Success:          len(failures) == 0,
		RemotePath:       strings.Join(remotePaths, "; "),
		BytesTransferred: total,
		Duration:         time.Since(start),
	}
	if len(failures) > 0 {
		result.ErrorMessage = fmt.Sprintf("%d of %d replicas failed: %s", len(failures), len(settings.Children), strings.Join(failures, "; "))
	}
	return result
}

func (p *ReplicateProvider) ApplyRetention(ctx context.Context, cfg domain.TargetInstanceConfig, req RetentionRequest) []string {
	var settings replicateSettings
	if err := decodeSettings(cfg, &settings); err != nil {
		return []string{err.Error()}
	}

	var problems []string
	for _, child := range settings.Children {
		provider, err := p.Registry.Lookup(child.Type)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", child.Name, err))
			continue
		}
		childReq := req
		if child.RemoteRetention != nil {
			childReq.Retention = *child.RemoteRetention
		}
		for _, problem := range provider.ApplyRetention(ctx, child, childReq) {
			problems = append(problems, fmt.Sprintf("%s: %s", child.Name, problem))
		}
	}
	return problems
}
