// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/autobrr/stowaway/internal/archive"
	"github.com/autobrr/stowaway/internal/config"
	"github.com/autobrr/stowaway/internal/domain"
	"github.com/autobrr/stowaway/internal/hooks"
	"github.com/autobrr/stowaway/internal/logger"
	"github.com/autobrr/stowaway/internal/pipeline"
	"github.com/autobrr/stowaway/internal/report"
	"github.com/autobrr/stowaway/internal/secrets"
	"github.com/autobrr/stowaway/internal/snapshot"
	"github.com/autobrr/stowaway/internal/targets"
)

func RunBackupCommand() *cobra.Command {
	var (
		configPath string
		jobName    string
		logLevel   string
		simulate   bool
		assumeYes  bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the configured backup set",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appCfg, err := config.New(configPath)
			if err != nil {
				return err
			}
			cfg := appCfg.Config
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}

			collector := &logger.Collector{}
			log := logger.New(logger.Options{Level: cfg.LogLevel, Path: cfg.LogPath}, collector)

			sinks := []report.Sink{&report.LogSink{Log: log}}
			if cfg.ReportPath != "" {
				sinks = append(sinks, &report.JSONLinesSink{Path: cfg.ReportPath})
			}

			hookRunner := &hooks.Runner{Log: log}
			executor := &pipeline.Executor{
				Log: log,
				Pre: &pipeline.PreProcessor{
					Log:       log,
					Secrets:   secrets.NewResolver(&secrets.FileVault{Dir: vaultDir(appCfg)}),
					Snapshots: snapshot.NoopProvider{},
					Hooks:     hookRunner,
				},
				Stage:        archive.NewStage(&archive.SevenZipEngine{Binary: "7z", Log: log}, log),
				Transfers:    &pipeline.Orchestrator{Registry: targets.DefaultRegistry(log), Log: log, Confirm: confirmFunc(assumeYes)},
				Snapshots:    snapshot.NoopProvider{},
				Hooks:        hookRunner,
				LockStaleAge: time.Duration(cfg.LockStaleAgeMinutes) * time.Minute,
				Confirm:      confirmFunc(assumeYes),
			}

			runner := &pipeline.Runner{
				Log:      log,
				Executor: executor,
				Publish: func(rep domain.JobReport) {
					rep.LogLines = collector.Drain()
					report.Publish(log, sinks, rep)
				},
			}

			result, err := runner.Run(cmd.Context(), cfg, jobName, simulate)
			if err != nil {
				return err
			}
			if result.ExitCode != 0 {
				os.Exit(result.ExitCode)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file or directory")
	cmd.Flags().StringVar(&jobName, "job", "", "Run only the named job")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().BoolVar(&simulate, "simulate", false, "Walk the whole pipeline without creating, uploading or deleting anything")
	cmd.Flags().BoolVarP(&assumeYes, "assume-yes", "y", false, "Answer yes to all delete confirmations")

	return cmd
}

// vaultDir resolves the file vault location: a "vault" directory next to the
// config file, or in the working directory when running on defaults.
func vaultDir(appCfg *config.AppConfig) string {
	if used := appCfg.FileUsed(); used != "" {
		return filepath.Join(filepath.Dir(used), "vault")
	}
	return "vault"
}

// confirmFunc gates retention deletes. With --assume-yes every delete is
// approved; otherwise the operator is asked per file on stdin.
func confirmFunc(assumeYes bool) func(name string) bool {
	if assumeYes {
		return func(string) bool { return true }
	}
	reader := bufio.NewReader(os.Stdin)
	return func(name string) bool {
		fmt.Fprintf(os.Stderr, "Delete %s? [y/N] ", name)
		line, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}
