package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zulandar/qualitygate/internal/metrics"
	"github.com/zulandar/qualitygate/internal/models"
	"golang.org/x/time/rate"
)

// Notifier delivers an Event to one channel (chat, issue tracker, log).
type Notifier interface {
	Name() string
	Notify(ctx context.Context, evt Event) error
}

// DispatcherOpts holds parameters for creating a Dispatcher.
type DispatcherOpts struct {
	Notifiers     []Notifier
	QueueSize     int
	RatePerSecond float64 // 0 disables rate limiting
	Burst         int
	SendTimeout   time.Duration
	Logger        *slog.Logger
}

// Dispatcher is the production Sink. Alerts are queued and delivered by a
// background goroutine to every notifier; delivery failures are logged and
// counted, never returned to the code that raised the alert.
type Dispatcher struct {
	notifiers []Notifier
	limiter   *rate.Limiter
	timeout   time.Duration
	logger    *slog.Logger
	queue     chan Event

	mu     sync.RWMutex
	closed bool
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDispatcher starts a Dispatcher. Call Close to drain and stop it.
func NewDispatcher(opts DispatcherOpts) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 15 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		notifiers: opts.Notifiers,
		limiter:   limiter,
		timeout:   opts.SendTimeout,
		logger:    opts.Logger,
		queue:     make(chan Event, opts.QueueSize),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go d.run(ctx)
	return d
}

// CriticalDefect implements Sink.
func (d *Dispatcher) CriticalDefect(_ context.Context, defect *models.Defect, inspection *models.Inspection) {
	metrics.AlertsEmitted.WithLabelValues(string(KindCriticalDefect)).Inc()
	d.Enqueue(FormatCriticalDefect(defect, inspection))
}

// DefectRateExceeded implements Sink.
func (d *Dispatcher) DefectRateExceeded(_ context.Context, inspection *models.Inspection, defectRate, threshold float64) {
	metrics.AlertsEmitted.WithLabelValues(string(KindDefectRate)).Inc()
	d.Enqueue(FormatDefectRate(inspection, defectRate, threshold))
}

// Enqueue queues evt for delivery. It never blocks: when the queue is full
// or the dispatcher is closed the event is dropped and logged.
func (d *Dispatcher) Enqueue(evt Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.AlertsDropped.Inc()
		d.logger.Warn("alert: dispatcher closed, dropping event", "kind", string(evt.Kind), "title", evt.Title)
		return
	}
	select {
	case d.queue <- evt:
	default:
		metrics.AlertsDropped.Inc()
		d.logger.Warn("alert: queue full, dropping event", "kind", string(evt.Kind), "title", evt.Title)
	}
}

// Close stops accepting events, delivers what is queued, and waits for the
// worker to exit or ctx to expire. Pending events are abandoned on expiry.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		d.cancel()
		<-d.done
		return ctx.Err()
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for evt := range d.queue {
		if err := d.limiter.Wait(ctx); err != nil {
			metrics.AlertsDropped.Inc()
			continue
		}
		d.deliver(ctx, evt)
	}
}

// deliver sends evt to every notifier, isolating failures per notifier.
func (d *Dispatcher) deliver(ctx context.Context, evt Event) {
	for _, n := range d.notifiers {
		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := n.Notify(sendCtx, evt)
		cancel()
		if err != nil {
			metrics.AlertDeliveries.WithLabelValues(n.Name(), "error").Inc()
			d.logger.Error("alert: notify failed", "notifier", n.Name(), "kind", string(evt.Kind), "err", err)
			continue
		}
		metrics.AlertDeliveries.WithLabelValues(n.Name(), "ok").Inc()
	}
}

// LogNotifier writes events to a structured logger. It is always installed
// so alerts are visible even without chat integrations.
type LogNotifier struct {
	Logger *slog.Logger
}

// Name implements Notifier.
func (LogNotifier) Name() string { return "log" }

// Notify implements Notifier.
func (l LogNotifier) Notify(_ context.Context, evt Event) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"kind", string(evt.Kind), "title", evt.Title}
	for _, f := range evt.Fields {
		attrs = append(attrs, f.Name, f.Value)
	}
	switch evt.Severity {
	case "error":
		logger.Error("alert: "+evt.Body, attrs...)
	case "warning":
		logger.Warn("alert: "+evt.Body, attrs...)
	default:
		logger.Info("alert: "+evt.Body, attrs...)
	}
	return nil
}
