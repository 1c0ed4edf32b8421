// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/autobrr/stowaway/internal/config"
	"github.com/autobrr/stowaway/internal/domain"
	"github.com/autobrr/stowaway/internal/logger"
	"github.com/autobrr/stowaway/internal/targets"
)

func RunTargetsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "Inspect and test remote targets",
	}

	cmd.AddCommand(runTargetsListCommand())
	cmd.AddCommand(runTargetsTestCommand())
	return cmd
}

func runTargetsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the supported target types",
		Run: func(cmd *cobra.Command, _ []string) {
			registry := targets.DefaultRegistry(logger.New(logger.Options{Level: "error"}))
			cmd.Println(strings.Join(registry.Types(), "\n"))
		},
	}
}

func runTargetsTestCommand() *cobra.Command {
	var (
		configPath string
		targetName string
	)

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Validate settings and probe connectivity for configured targets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appCfg, err := config.New(configPath)
			if err != nil {
				return err
			}

			log := logger.New(logger.Options{Level: appCfg.Config.LogLevel})
			registry := targets.DefaultRegistry(log)

			selected := appCfg.Config.Targets
			if targetName != "" {
				selected = nil
				for _, target := range appCfg.Config.Targets {
					if target.Name == targetName {
						selected = []domain.TargetInstanceConfig{target}
						break
					}
				}
				if selected == nil {
					return fmt.Errorf("unknown target %q", targetName)
				}
			}
			if len(selected) == 0 {
				return errors.New("no targets configured")
			}

			failed := 0
			for _, target := range selected {
				provider, err := registry.Lookup(target.Type)
				if err != nil {
					cmd.Printf("FAIL  %s: %v\n", target.Name, err)
					failed++
					continue
				}

				if problems := provider.ValidateSettings(target); len(problems) > 0 {
					cmd.Printf("FAIL  %s (%s): invalid settings\n", target.Name, target.Type)
					for _, problem := range problems {
						cmd.Printf("      - %s\n", problem)
					}
					failed++
					continue
				}

				ok, detail := provider.TestConnectivity(cmd.Context(), target)
				if !ok {
					cmd.Printf("FAIL  %s (%s): %s\n", target.Name, target.Type, detail)
					failed++
					continue
				}
				cmd.Printf("OK    %s (%s): %s\n", target.Name, target.Type, detail)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d target(s) failed", failed, len(selected))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file or directory")
	cmd.Flags().StringVar(&targetName, "target", "", "Test only the named target")

	return cmd
}
