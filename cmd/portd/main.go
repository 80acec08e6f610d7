// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/curiositech/port-daddy/internal/activity"
	"github.com/curiositech/port-daddy/internal/agents"
	"github.com/curiositech/port-daddy/internal/changelog"
	"github.com/curiositech/port-daddy/internal/collabsocket"
	"github.com/curiositech/port-daddy/internal/config"
	"github.com/curiositech/port-daddy/internal/httpapi"
	"github.com/curiositech/port-daddy/internal/locks"
	"github.com/curiositech/port-daddy/internal/messaging"
	"github.com/curiositech/port-daddy/internal/ports"
	"github.com/curiositech/port-daddy/internal/procutil"
	"github.com/curiositech/port-daddy/internal/ratelimit"
	"github.com/curiositech/port-daddy/internal/reaper"
	"github.com/curiositech/port-daddy/internal/salvage"
	"github.com/curiositech/port-daddy/internal/sessions"
	"github.com/curiositech/port-daddy/internal/store"
	"github.com/curiositech/port-daddy/lib/clock"
	"github.com/curiositech/port-daddy/lib/service"
	"github.com/curiositech/port-daddy/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("portd", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to portd.yaml (overrides PORTD_CONFIG)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	if showVersion {
		fmt.Printf("portd %s\n", version.Info())
		return nil
	}

	logger := service.NewLogger()

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return fmt.Errorf("preparing data directories: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()

	st, err := store.Open(store.Config{
		Path:   cfg.Listen.DataFile,
		Clock:  clk,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	staleAfter, err := cfg.StaleAfter()
	if err != nil {
		return fmt.Errorf("agents.stale_after: %w", err)
	}
	deadAfter, err := cfg.DeadAfter()
	if err != nil {
		return fmt.Errorf("agents.dead_after: %w", err)
	}
	maxMessageAge, err := time.ParseDuration(cfg.Messaging.MaxMessageAge)
	if err != nil {
		return fmt.Errorf("messaging.max_message_age: %w", err)
	}
	activityMaxAge, err := time.ParseDuration(cfg.Activity.MaxAge)
	if err != nil {
		return fmt.Errorf("activity.max_age: %w", err)
	}
	scanCacheTTL, err := time.ParseDuration(cfg.Ports.ListeningScanCacheTTL)
	if err != nil {
		return fmt.Errorf("ports.listening_scan_cache_ttl: %w", err)
	}

	scanner := procutil.NewListeningPortScanner(clk, scanCacheTTL)

	portsComponent := ports.New(st, clk, scanner, ports.Config{
		RangeMin:     cfg.Ports.RangeMin,
		RangeMax:     cfg.Ports.RangeMax,
		Reserved:     cfg.Ports.Reserved,
		ClaimRetries: cfg.Ports.ClaimRetries,
	}, logger)

	locksComponent := locks.New(st, clk, logger)

	messagingComponent := messaging.New(st, clk, messaging.Config{
		SubscriberQueueSize: cfg.Messaging.MaxSubscriberQueue,
		MaxAge:              maxMessageAge,
		MaxPerChannel:       cfg.Messaging.MaxMessagesPerChannel,
	}, logger)

	agentsComponent := agents.New(st, clk, agents.Config{
		StaleAfter: staleAfter,
		DeadAfter:  deadAfter,
	}, logger)

	sessionsComponent := sessions.New(st, clk, logger)

	salvageComponent := salvage.New(st, clk, salvage.Config{
		NotesPerSessionSnapshot: cfg.Salvage.NotesPerSessionSnapshot,
	}, logger)

	activityComponent := activity.New(st, clk, activity.Config{
		MaxAge:  activityMaxAge,
		MaxRows: cfg.Activity.MaxRows,
	}, logger)

	changelogComponent := changelog.New(st, clk, logger)

	rateLimiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
		Clock:             clk,
	})

	reaperInterval := time.Duration(0)
	if cfg.Reaper.Interval != "" {
		reaperInterval, err = time.ParseDuration(cfg.Reaper.Interval)
		if err != nil {
			return fmt.Errorf("reaper.interval: %w", err)
		}
	}
	reaperComponent, err := reaper.New(reaper.Deps{
		Ports:     portsComponent,
		Locks:     locksComponent,
		Agents:    agentsComponent,
		Messaging: messagingComponent,
		Salvage:   salvageComponent,
		Activity:  activityComponent,
		RateLimit: rateLimiter,
	}, clk, reaper.Config{
		Interval: reaperInterval,
		Cron:     cfg.Reaper.Cron,
	}, logger)
	if err != nil {
		return fmt.Errorf("constructing reaper: %w", err)
	}

	go reaperComponent.Run(ctx)

	handler := httpapi.New(httpapi.Deps{
		Ports:     portsComponent,
		Locks:     locksComponent,
		Messaging: messagingComponent,
		Agents:    agentsComponent,
		Sessions:  sessionsComponent,
		Salvage:   salvageComponent,
		Activity:  activityComponent,
		Changelog: changelogComponent,
		Reaper:    reaperComponent,
		RateLimit: rateLimiter,
	}, httpapi.Config{
		MaxBodyBytes:  cfg.RateLimit.MaxBodyBytes,
		MaxSSEStreams: cfg.RateLimit.MaxSSEStreams,
		Version:       version.Info(),
	}, logger)

	httpServer, err := httpapi.NewServer(httpapi.ServerConfig{
		Address: cfg.Listen.Address,
		Handler: handler,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("constructing HTTP server: %w", err)
	}
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("starting HTTP server: %w", err)
	}

	var collabServer *collabsocket.Server
	if cfg.Collaborator.Enabled {
		collabServer, err = collabsocket.NewServer(collabsocket.Config{
			SocketPath: cfg.Collaborator.SocketPath,
			Deps: collabsocket.Deps{
				Ports:     portsComponent,
				Locks:     locksComponent,
				Messaging: messagingComponent,
				Agents:    agentsComponent,
				Sessions:  sessionsComponent,
				Salvage:   salvageComponent,
				Activity:  activityComponent,
				Changelog: changelogComponent,
			},
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("constructing collaborator socket server: %w", err)
		}
		if err := collabServer.Start(ctx); err != nil {
			return fmt.Errorf("starting collaborator socket server: %w", err)
		}
		logger.Info("collaborator socket listening", "path", cfg.Collaborator.SocketPath)
	}

	logger.Info("portd running",
		"address", httpServer.Addr(),
		"data_file", cfg.Listen.DataFile,
		"environment", cfg.Environment,
	)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if collabServer != nil {
		if err := collabServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("collaborator socket shutdown error", "error", err)
		}
	}

	return nil
}
