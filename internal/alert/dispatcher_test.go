package alert_test

import (
	"context"
	"testing"
	"time"

	"github.com/zulandar/qualitygate/internal/alert"
	"github.com/zulandar/qualitygate/internal/alert/alerttest"
	"github.com/zulandar/qualitygate/internal/logging"
	"github.com/zulandar/qualitygate/internal/models"
)

func closeDispatcher(t *testing.T, d *alert.Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestDispatcher_DeliversToAllNotifiers(t *testing.T) {
	a := &alerttest.Notifier{ID: "a"}
	b := &alerttest.Notifier{ID: "b"}
	d := alert.NewDispatcher(alert.DispatcherOpts{Notifiers: []alert.Notifier{a, b}, Logger: logging.Discard()})

	insp := &models.Inspection{ID: "ins-1", BatchNumber: "B-1", ProductID: "prd-1"}
	d.CriticalDefect(context.Background(), &models.Defect{ID: "dfc-1", Severity: models.SeverityCritical}, insp)
	d.DefectRateExceeded(context.Background(), insp, 10, alert.DefectRateThreshold)
	closeDispatcher(t, d)

	for _, n := range []*alerttest.Notifier{a, b} {
		evts := n.Events()
		if len(evts) != 2 {
			t.Fatalf("%s got %d events, want 2", n.Name(), len(evts))
		}
		if evts[0].Kind != alert.KindCriticalDefect || evts[1].Kind != alert.KindDefectRate {
			t.Errorf("%s kinds = %v, %v", n.Name(), evts[0].Kind, evts[1].Kind)
		}
	}
}

func TestDispatcher_NotifierFailureIsolated(t *testing.T) {
	bad := &alerttest.Notifier{ID: "bad", Err: alerttest.ErrUnavailable}
	good := &alerttest.Notifier{ID: "good"}
	d := alert.NewDispatcher(alert.DispatcherOpts{Notifiers: []alert.Notifier{bad, good}, Logger: logging.Discard()})

	d.Enqueue(alert.Event{Kind: alert.KindDigest, Title: "digest"})
	closeDispatcher(t, d)

	if len(good.Events()) != 1 {
		t.Errorf("good notifier got %d events, want 1", len(good.Events()))
	}
	if len(bad.Events()) != 1 {
		t.Errorf("bad notifier should still be attempted once, got %d", len(bad.Events()))
	}
}

func TestDispatcher_EnqueueAfterCloseDrops(t *testing.T) {
	n := &alerttest.Notifier{}
	d := alert.NewDispatcher(alert.DispatcherOpts{Notifiers: []alert.Notifier{n}, Logger: logging.Discard()})
	closeDispatcher(t, d)

	d.Enqueue(alert.Event{Title: "late"})
	if len(n.Events()) != 0 {
		t.Errorf("closed dispatcher delivered %d events", len(n.Events()))
	}
	closeDispatcher(t, d)
}

type blockingNotifier struct {
	release chan struct{}
}

func (blockingNotifier) Name() string { return "blocking" }

func (b blockingNotifier) Notify(ctx context.Context, _ alert.Event) error {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return ctx.Err()
}

func TestDispatcher_FullQueueNeverBlocks(t *testing.T) {
	b := blockingNotifier{release: make(chan struct{})}
	d := alert.NewDispatcher(alert.DispatcherOpts{Notifiers: []alert.Notifier{b}, QueueSize: 1, Logger: logging.Discard()})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Enqueue(alert.Event{Title: "flood"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
	close(b.release)
	closeDispatcher(t, d)
}

func TestDispatcher_CloseHonoursDeadline(t *testing.T) {
	b := blockingNotifier{release: make(chan struct{})}
	d := alert.NewDispatcher(alert.DispatcherOpts{Notifiers: []alert.Notifier{b}, SendTimeout: time.Minute, Logger: logging.Discard()})
	d.Enqueue(alert.Event{Title: "stuck"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := d.Close(ctx); err == nil {
		t.Error("Close should report the expired deadline")
	}
}

func TestLogNotifier(t *testing.T) {
	n := alert.LogNotifier{Logger: logging.Discard()}
	if n.Name() != "log" {
		t.Errorf("Name = %q", n.Name())
	}
	for _, sev := range []string{"error", "warning", "info"} {
		if err := n.Notify(context.Background(), alert.Event{Severity: sev, Fields: []alert.Field{{Name: "k", Value: "v"}}}); err != nil {
			t.Errorf("Notify(%s): %v", sev, err)
		}
	}
}

func TestNop(t *testing.T) {
	var s alert.Sink = alert.Nop{}
	s.CriticalDefect(context.Background(), &models.Defect{}, nil)
	s.DefectRateExceeded(context.Background(), &models.Inspection{}, 1, 5)
}
