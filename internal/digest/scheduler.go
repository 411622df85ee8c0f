package digest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zulandar/qualitygate/internal/alert"
	"github.com/zulandar/qualitygate/internal/stats"
	"gorm.io/gorm"
)

// Enqueuer accepts events for delivery. *alert.Dispatcher satisfies it.
type Enqueuer interface {
	Enqueue(evt alert.Event)
}

// SchedulerOpts holds configuration for a Scheduler.
type SchedulerOpts struct {
	DB       *gorm.DB
	Stats    *stats.Aggregator
	Out      Enqueuer
	Schedule string
	Window   time.Duration
	Location *time.Location
	Logger   *slog.Logger
}

// Scheduler sends a digest on every tick of a cron schedule.
type Scheduler struct {
	opts SchedulerOpts
	now  func() time.Time
}

// NewScheduler validates opts and returns a Scheduler.
func NewScheduler(opts SchedulerOpts) (*Scheduler, error) {
	if opts.DB == nil || opts.Stats == nil || opts.Out == nil {
		return nil, fmt.Errorf("digest: db, stats and output are required")
	}
	if _, err := cronParser.Parse(opts.Schedule); err != nil {
		return nil, fmt.Errorf("digest: schedule %q: %w", opts.Schedule, err)
	}
	if opts.Window <= 0 {
		opts.Window = 24 * time.Hour
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{opts: opts, now: time.Now}, nil
}

// Run fires digests until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	d := nextCronDuration(s.opts.Schedule, s.now(), s.opts.Location)
	if d <= 0 {
		return fmt.Errorf("digest: schedule %q never fires", s.opts.Schedule)
	}
	s.opts.Logger.Info("digest: scheduled", "schedule", s.opts.Schedule, "next", s.now().Add(d).Format(time.RFC3339))
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			s.Fire(ctx)
			if d := nextCronDuration(s.opts.Schedule, s.now(), s.opts.Location); d > 0 {
				timer.Reset(d)
			}
		}
	}
}

// Fire builds the digest for the window ending now and enqueues it. Quiet
// windows are suppressed. It reports whether a digest was sent.
func (s *Scheduler) Fire(ctx context.Context) bool {
	until := s.now().In(s.opts.Location)
	report, err := BuildReport(ctx, s.opts.DB, s.opts.Stats, until.Add(-s.opts.Window), until)
	if err != nil {
		s.opts.Logger.Error("digest: build", "error", err)
		return false
	}
	if report.Empty() {
		s.opts.Logger.Debug("digest: quiet window, skipping")
		return false
	}
	s.opts.Out.Enqueue(Format(report))
	return true
}
