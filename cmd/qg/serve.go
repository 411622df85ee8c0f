package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/qualitygate/internal/api"
	"github.com/zulandar/qualitygate/internal/db"
	"github.com/zulandar/qualitygate/internal/digest"
	"golang.org/x/sync/errgroup"
)

// Seams for tests.
var (
	startAPI     = api.Start
	newScheduler = digest.NewScheduler
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the digest scheduler",
		Long:  "Migrates the database, then serves the JSON API, the activity event stream and Prometheus metrics until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Quality Gate config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	cfg, gormDB, logger, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	a, err := buildApp(ctx, cfg, gormDB, logger, true)
	if err != nil {
		return err
	}
	defer a.Close()

	// Build everything that can fail before any goroutine starts.
	var sched *digest.Scheduler
	if cfg.Digest.Enabled {
		sched, err = newScheduler(digest.SchedulerOpts{
			DB:       gormDB,
			Stats:    a.Stats,
			Out:      a.alerts,
			Schedule: cfg.Digest.Schedule,
			Window:   cfg.DigestWindow(),
			Location: a.loc,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return startAPI(gctx, api.StartOpts{
			Services:    a.Services,
			Port:        port,
			MaxUploadMB: cfg.Images.MaxUploadMB,
			Logger:      logger,
			Out:         cmd.OutOrStdout(),
		})
	})
	if sched != nil {
		g.Go(func() error { return sched.Run(gctx) })
	}

	return g.Wait()
}
