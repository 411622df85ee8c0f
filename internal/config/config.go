// Package config provides YAML-based configuration loading for Quality Gate.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration, loaded from qualitygate.yaml.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Timezone string         `yaml:"timezone"`
	Log      LogConfig      `yaml:"log"`
	Images   ImagesConfig   `yaml:"images"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Digest   DigestConfig   `yaml:"digest"`
}

// DatabaseConfig selects the SQL backend and its connection settings.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // sqlite, mysql, postgres
	Path     string `yaml:"path"`   // sqlite only
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"` // postgres only
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// ImagesConfig selects the image store backend.
type ImagesConfig struct {
	Backend       string `yaml:"backend"` // badger, gcs
	Path          string `yaml:"path"`    // badger directory
	Bucket        string `yaml:"bucket"`  // gcs bucket
	PublicBaseURL string `yaml:"public_base_url"`
	MaxUploadMB   int    `yaml:"max_upload_mb"`
}

// AlertsConfig configures the alert dispatcher and its notifiers.
type AlertsConfig struct {
	QueueSize     int            `yaml:"queue_size"`
	RatePerSecond float64        `yaml:"rate_per_second"`
	Burst         int            `yaml:"burst"`
	Slack         *SlackConfig   `yaml:"slack"`
	Discord       *DiscordConfig `yaml:"discord"`
	GitHub        *GitHubConfig  `yaml:"github"`
}

// SlackConfig enables the Slack notifier.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DiscordConfig enables the Discord notifier.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// GitHubConfig enables opening GitHub issues for alerts.
type GitHubConfig struct {
	Token  string   `yaml:"token"`
	Owner  string   `yaml:"owner"`
	Repo   string   `yaml:"repo"`
	Labels []string `yaml:"labels"`
}

// DigestConfig schedules the periodic defect digest.
type DigestConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"` // 5-field cron expression
	Window   string `yaml:"window"`   // Go duration, e.g. 24h
}

// scheduleParser accepts the same 5-field expressions the digest scheduler
// runs on; descriptors such as @daily are rejected.
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Location resolves the reference timezone used for daily buckets.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// DigestWindow returns the parsed digest window.
func (c *Config) DigestWindow() time.Duration {
	d, err := time.ParseDuration(c.Digest.Window)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			c.Database.Path = "qualitygate.db"
		}
	case "mysql":
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
	case "postgres":
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	}
	if c.Database.Host == "" && c.Database.Driver != "sqlite" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Name == "" && c.Database.Driver != "sqlite" {
		c.Database.Name = "qualitygate"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Images.Backend == "" {
		c.Images.Backend = "badger"
	}
	if c.Images.Backend == "badger" && c.Images.Path == "" {
		c.Images.Path = "images"
	}
	if c.Images.PublicBaseURL == "" && c.Images.Backend == "badger" {
		c.Images.PublicBaseURL = "/images"
	}
	if c.Images.MaxUploadMB == 0 {
		c.Images.MaxUploadMB = 20
	}
	if c.Alerts.QueueSize == 0 {
		c.Alerts.QueueSize = 256
	}
	if c.Alerts.RatePerSecond == 0 {
		c.Alerts.RatePerSecond = 1
	}
	if c.Alerts.Burst == 0 {
		c.Alerts.Burst = 5
	}
	if c.Digest.Schedule == "" {
		c.Digest.Schedule = "0 8 * * *"
	}
	if c.Digest.Window == "" {
		c.Digest.Window = "24h"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be sqlite, mysql or postgres", c.Database.Driver))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("timezone %q is not a valid IANA zone", c.Timezone))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Sprintf("log.format %q must be text or json", c.Log.Format))
	}
	switch c.Images.Backend {
	case "badger":
	case "gcs":
		if c.Images.Bucket == "" {
			errs = append(errs, "images.bucket is required for the gcs backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("images.backend %q must be badger or gcs", c.Images.Backend))
	}
	if c.Alerts.RatePerSecond < 0 {
		errs = append(errs, "alerts.rate_per_second must not be negative")
	}
	if s := c.Alerts.Slack; s != nil && (s.BotToken == "" || s.ChannelID == "") {
		errs = append(errs, "alerts.slack requires bot_token and channel_id")
	}
	if d := c.Alerts.Discord; d != nil && (d.BotToken == "" || d.ChannelID == "") {
		errs = append(errs, "alerts.discord requires bot_token and channel_id")
	}
	if g := c.Alerts.GitHub; g != nil && (g.Token == "" || g.Owner == "" || g.Repo == "") {
		errs = append(errs, "alerts.github requires token, owner and repo")
	}
	if c.Digest.Enabled {
		if _, err := scheduleParser.Parse(c.Digest.Schedule); err != nil {
			errs = append(errs, fmt.Sprintf("digest.schedule %q: %v", c.Digest.Schedule, err))
		}
	}
	if _, err := time.ParseDuration(c.Digest.Window); err != nil {
		errs = append(errs, fmt.Sprintf("digest.window %q is not a duration", c.Digest.Window))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
