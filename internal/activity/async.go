package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zulandar/qualitygate/internal/metrics"
	"github.com/zulandar/qualitygate/internal/models"
)

// ErrQueueFull is returned when the async queue cannot accept another entry.
var ErrQueueFull = errors.New("activity: queue full")

type entry struct {
	actorID     string
	action      Action
	description string
	metadata    map[string]interface{}
	at          time.Time
}

// Async wraps a Recorder with a bounded queue drained by one goroutine, so the
// triggering write never waits on the audit store.
type Async struct {
	next   Recorder
	logger *slog.Logger
	queue  chan entry
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewAsync starts the drain goroutine. Call Close to flush and stop it.
func NewAsync(next Recorder, size int, logger *slog.Logger) *Async {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Async{next: next, logger: logger, queue: make(chan entry, size)}
	a.wg.Add(1)
	go a.run()
	return a
}

// Record enqueues the entry. The returned Activity carries the enqueue time;
// its ID is assigned later by the underlying store.
func (a *Async) Record(_ context.Context, actorID string, action Action, description string, metadata map[string]interface{}) (*models.Activity, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("activity: unknown action %q", action)
	}
	e := entry{actorID: actorID, action: action, description: description, metadata: metadata, at: time.Now().UTC()}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, fmt.Errorf("activity: recorder closed")
	}
	select {
	case a.queue <- e:
	default:
		return nil, ErrQueueFull
	}
	return &models.Activity{ActorID: actorID, Action: string(action), Description: description, CreatedAt: e.at}, nil
}

// Close stops accepting entries and waits for the queue to drain.
func (a *Async) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()
	a.wg.Wait()
}

func (a *Async) run() {
	defer a.wg.Done()
	for e := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if _, err := a.next.Record(ctx, e.actorID, e.action, e.description, e.metadata); err != nil {
			metrics.ActivityFailures.Inc()
			a.logger.Warn("activity: async record failed", "action", string(e.action), "actor", e.actorID, "err", err)
		}
		cancel()
	}
}
