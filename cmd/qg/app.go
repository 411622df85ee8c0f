package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zulandar/qualitygate/internal/activity"
	"github.com/zulandar/qualitygate/internal/alert"
	"github.com/zulandar/qualitygate/internal/alert/discord"
	"github.com/zulandar/qualitygate/internal/alert/github"
	"github.com/zulandar/qualitygate/internal/alert/slack"
	"github.com/zulandar/qualitygate/internal/api"
	"github.com/zulandar/qualitygate/internal/config"
	"github.com/zulandar/qualitygate/internal/defect"
	"github.com/zulandar/qualitygate/internal/imagestore"
	"github.com/zulandar/qualitygate/internal/inspection"
	"github.com/zulandar/qualitygate/internal/product"
	"github.com/zulandar/qualitygate/internal/stats"
	"gorm.io/gorm"
)

// app is the fully wired service graph shared by serve and the one-shot
// commands.
type app struct {
	api.Services
	alerts *alert.Dispatcher
	async  *activity.Async
	images imagestore.Store
	closer func() error
	loc    *time.Location
	logger *slog.Logger
}

// buildApp wires every service from cfg. Images are opened only when
// withImages is set since the badger directory allows a single process.
func buildApp(ctx context.Context, cfg *config.Config, gormDB *gorm.DB, logger *slog.Logger, withImages bool) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	notifiers, err := buildNotifiers(ctx, cfg.Alerts, logger)
	if err != nil {
		return nil, err
	}
	dispatcher := alert.NewDispatcher(alert.DispatcherOpts{
		Notifiers:     notifiers,
		QueueSize:     cfg.Alerts.QueueSize,
		RatePerSecond: cfg.Alerts.RatePerSecond,
		Burst:         cfg.Alerts.Burst,
		Logger:        logger,
	})

	store := activity.NewStore(gormDB)
	async := activity.NewAsync(store, 1024, logger)

	a := &app{alerts: dispatcher, async: async, loc: loc, logger: logger}
	if withImages {
		if err := a.openImages(ctx, cfg.Images); err != nil {
			dispatcher.Close(ctx)
			async.Close()
			return nil, err
		}
	}

	a.Services = api.Services{
		DB:          gormDB,
		Products:    product.NewService(gormDB, async, logger),
		Inspections: inspection.NewManager(inspection.Deps{DB: gormDB, Alerts: dispatcher, Activity: async, Images: a.images, Logger: logger}),
		Defects:     defect.NewRegistry(defect.Deps{DB: gormDB, Alerts: dispatcher, Activity: async, Images: a.images, Logger: logger}),
		Stats:       stats.NewAggregator(gormDB, loc),
		Activities:  store,
	}
	if g, ok := a.images.(imagestore.Getter); ok {
		a.Services.Images = g
	}
	return a, nil
}

func (a *app) openImages(ctx context.Context, cfg config.ImagesConfig) error {
	switch cfg.Backend {
	case "gcs":
		g, err := imagestore.OpenGCS(ctx, cfg.Bucket, cfg.PublicBaseURL)
		if err != nil {
			return err
		}
		a.images, a.closer = g, g.Close
	default:
		b, err := imagestore.OpenBadger(cfg.Path, cfg.PublicBaseURL)
		if err != nil {
			return err
		}
		a.images, a.closer = b, b.Close
	}
	return nil
}

// Close drains queued alerts and activity entries, then releases the image
// store.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.alerts.Close(ctx); err != nil {
		a.logger.Warn("alert dispatcher did not drain", "err", err)
	}
	a.async.Close()
	if a.closer != nil {
		if err := a.closer(); err != nil {
			a.logger.Warn("image store close failed", "err", err)
		}
	}
}

func buildNotifiers(ctx context.Context, cfg config.AlertsConfig, logger *slog.Logger) ([]alert.Notifier, error) {
	notifiers := []alert.Notifier{alert.LogNotifier{Logger: logger}}

	if s := cfg.Slack; s != nil {
		n, err := slack.New(slack.Opts{BotToken: s.BotToken, ChannelID: s.ChannelID, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("alerts: %w", err)
		}
		notifiers = append(notifiers, n)
	}
	if d := cfg.Discord; d != nil {
		n, err := discord.New(discord.Opts{BotToken: d.BotToken, ChannelID: d.ChannelID, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("alerts: %w", err)
		}
		notifiers = append(notifiers, n)
	}
	if g := cfg.GitHub; g != nil {
		n, err := github.New(ctx, github.Opts{Token: g.Token, Owner: g.Owner, Repo: g.Repo, Labels: g.Labels})
		if err != nil {
			return nil, fmt.Errorf("alerts: %w", err)
		}
		notifiers = append(notifiers, n)
	}
	return notifiers, nil
}
