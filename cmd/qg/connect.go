package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/zulandar/qualitygate/internal/config"
	"github.com/zulandar/qualitygate/internal/db"
	"github.com/zulandar/qualitygate/internal/logging"
	"gorm.io/gorm"
)

// connectFromConfig loads the config at configPath, builds the logger and
// opens the configured database.
func connectFromConfig(configPath string) (*config.Config, *gorm.DB, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(os.Stderr, cfg.Log)

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, gormDB, logger, nil
}
