// Package alerttest provides a recording alert.Sink and Notifier for tests.
package alerttest

import (
	"context"
	"errors"
	"sync"

	"github.com/zulandar/qualitygate/internal/alert"
	"github.com/zulandar/qualitygate/internal/models"
)

// CriticalCall captures one CriticalDefect invocation.
type CriticalCall struct {
	Defect     models.Defect
	Inspection models.Inspection
}

// RateCall captures one DefectRateExceeded invocation.
type RateCall struct {
	Inspection models.Inspection
	Rate       float64
	Threshold  float64
}

// Sink records every alert it receives.
type Sink struct {
	mu       sync.Mutex
	critical []CriticalCall
	rate     []RateCall
}

// CriticalDefect implements alert.Sink.
func (s *Sink) CriticalDefect(_ context.Context, d *models.Defect, insp *models.Inspection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := CriticalCall{Defect: *d}
	if insp != nil {
		call.Inspection = *insp
	}
	s.critical = append(s.critical, call)
}

// DefectRateExceeded implements alert.Sink.
func (s *Sink) DefectRateExceeded(_ context.Context, insp *models.Inspection, rate, threshold float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate = append(s.rate, RateCall{Inspection: *insp, Rate: rate, Threshold: threshold})
}

// Critical returns the captured critical-defect alerts.
func (s *Sink) Critical() []CriticalCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CriticalCall(nil), s.critical...)
}

// Rate returns the captured defect-rate alerts.
func (s *Sink) Rate() []RateCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RateCall(nil), s.rate...)
}

var _ alert.Sink = (*Sink)(nil)

// Notifier records delivered events. When Err is set Notify returns it.
type Notifier struct {
	ID  string
	Err error

	mu     sync.Mutex
	events []alert.Event
}

// Name implements alert.Notifier.
func (n *Notifier) Name() string {
	if n.ID == "" {
		return "test"
	}
	return n.ID
}

// Notify implements alert.Notifier.
func (n *Notifier) Notify(_ context.Context, evt alert.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
	return n.Err
}

// Events returns the delivered events.
func (n *Notifier) Events() []alert.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]alert.Event(nil), n.events...)
}

// ErrUnavailable is a convenience failure for notifiers under test.
var ErrUnavailable = errors.New("alerttest: channel unavailable")
