// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tombee/blueprint/internal/capability"
	"github.com/tombee/blueprint/internal/config"
	"github.com/tombee/blueprint/internal/dispatch"
	"github.com/tombee/blueprint/internal/log"
	"github.com/tombee/blueprint/internal/registry"
	"github.com/tombee/blueprint/internal/session"
	"github.com/tombee/blueprint/internal/spectools"
	"github.com/tombee/blueprint/internal/transport"
	"github.com/tombee/blueprint/internal/workflow"
)

func newServeCmd() *cobra.Command {
	var (
		configPath    string
		generateToken bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the workflow daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath, generateToken)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "Path to the config file")
	cmd.Flags().BoolVar(&generateToken, "generate-token", false, "Generate a connection token when none is configured")
	return cmd
}

func serve(configPath string, generateToken bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := log.New(&log.Config{
		Level:  cfg.Log.Level,
		Format: log.Format(cfg.Log.Format),
	})
	slog.SetDefault(logger)

	if cfg.Server.AuthToken == "" && generateToken {
		token, err := transport.GenerateToken()
		if err != nil {
			return fmt.Errorf("failed to generate token: %w", err)
		}
		cfg.Server.AuthToken = token
		// Printed once so a local client can pick it up.
		fmt.Printf("BLUEPRINT_AUTH_TOKEN=%s\n", token)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DatabasePath), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	snapshots, err := session.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}

	sessions := session.NewManager(session.Config{
		IdleTimeout:    cfg.Session.IdleTimeout,
		SweepInterval:  cfg.Session.SweepInterval,
		RecoveryWindow: cfg.Session.RecoveryWindow,
	}, snapshots, logger)

	projects := workflow.NewFileStore(cfg.Storage.ProjectsDir)

	reg := registry.New(logger)
	svc := spectools.NewService(projects, nil, logger)
	if err := svc.RegisterAll(reg); err != nil {
		return fmt.Errorf("failed to register workflow tools: %w", err)
	}

	dispatcher := dispatch.New(sessions, reg,
		spectools.NewResources(projects),
		spectools.NewPrompts(projects),
		dispatch.Options{
			CallTimeout: cfg.Dispatch.CallTimeout,
			RateLimit:   cfg.Dispatch.RateLimit,
			RateBurst:   cfg.Dispatch.RateBurst,
		}, logger)

	server := transport.NewServer(transport.Config{
		PortRange:       cfg.Server.PortRange,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		AuthToken:       cfg.Server.AuthToken,
	}, sessions, capability.NewNegotiator(logger), dispatcher, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessions.Start(ctx)

	port, err := server.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	logger.Info("blueprintd started",
		"version", version,
		"port", port,
		"projects_dir", cfg.Storage.ProjectsDir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	// Shutdown order: stop accepting work, then the reaper, then storage.
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("transport shutdown failed", log.Error(err))
	}
	if err := sessions.Shutdown(); err != nil {
		logger.Error("session manager shutdown failed", log.Error(err))
	}

	logger.Info("blueprintd stopped")
	return nil
}
