// Package digest builds the periodic defect digest and sends it through the
// alert dispatcher on a cron schedule.
package digest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/qualitygate/internal/alert"
	"github.com/zulandar/qualitygate/internal/models"
	"github.com/zulandar/qualitygate/internal/stats"
	"gorm.io/gorm"
)

// topTypes is how many defect types a digest lists.
const topTypes = 3

// Report holds the quality figures for one digest window.
type Report struct {
	PeriodStart          time.Time
	PeriodEnd            time.Time
	DefectsCreated       int64
	CriticalDefects      int64
	DefectsResolved      int64
	InspectionsCompleted int64
	InspectionsFailed    int64
	OpenDefects          int64
	TopTypes             []stats.Count
}

// Empty reports whether nothing happened during the window.
func (r *Report) Empty() bool {
	return r.DefectsCreated == 0 && r.DefectsResolved == 0 &&
		r.InspectionsCompleted == 0 && r.InspectionsFailed == 0
}

// BuildReport gathers the figures for [since, until).
func BuildReport(ctx context.Context, db *gorm.DB, agg *stats.Aggregator, since, until time.Time) (*Report, error) {
	r := &Report{PeriodStart: since, PeriodEnd: until}
	db = db.WithContext(ctx)

	inWindow := func(column string) func(*gorm.DB) *gorm.DB {
		return func(q *gorm.DB) *gorm.DB {
			return q.Where(column+" >= ? AND "+column+" < ?", since.UTC(), until.UTC())
		}
	}
	counts := []struct {
		name string
		q    *gorm.DB
		dst  *int64
	}{
		{"defects created", db.Model(&models.Defect{}).Scopes(inWindow("created_at")), &r.DefectsCreated},
		{"critical defects", db.Model(&models.Defect{}).Scopes(inWindow("created_at")).Where("severity = ?", models.SeverityCritical), &r.CriticalDefects},
		{"defects resolved", db.Model(&models.Defect{}).Scopes(inWindow("resolved_at")), &r.DefectsResolved},
		{"inspections completed", db.Model(&models.Inspection{}).Scopes(inWindow("completed_at")).Where("status = ?", models.InspectionCompleted), &r.InspectionsCompleted},
		{"inspections failed", db.Model(&models.Inspection{}).Scopes(inWindow("completed_at")).Where("status = ?", models.InspectionFailed), &r.InspectionsFailed},
		{"open defects", db.Model(&models.Defect{}).Where("status = ?", models.DefectOpen), &r.OpenDefects},
	}
	for _, c := range counts {
		if err := c.q.Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("digest: count %s: %w", c.name, err)
		}
	}

	// The stats range is inclusive; step back from until to keep the
	// window half-open.
	rep, err := agg.Compute(ctx, stats.Filter{
		From: since.UTC().Format(time.RFC3339Nano),
		To:   until.Add(-time.Nanosecond).UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("digest: %w", err)
	}
	r.TopTypes = rep.ByType
	if len(r.TopTypes) > topTypes {
		r.TopTypes = r.TopTypes[:topTypes]
	}
	return r, nil
}

// Format renders a report as an alert event.
func Format(r *Report) alert.Event {
	severity, color := "info", alert.ColorInfo
	switch {
	case r.CriticalDefects > 0:
		severity, color = "warning", alert.ColorWarning
	case r.DefectsCreated == 0:
		severity, color = "success", alert.ColorSuccess
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s to %s\n", r.PeriodStart.Format("2006-01-02 15:04"), r.PeriodEnd.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "%d defects recorded (%d critical), %d resolved, %d still open.\n",
		r.DefectsCreated, r.CriticalDefects, r.DefectsResolved, r.OpenDefects)
	fmt.Fprintf(&b, "%d inspections passed, %d failed.", r.InspectionsCompleted, r.InspectionsFailed)

	evt := alert.Event{
		Kind:     alert.KindDigest,
		Title:    "Quality Digest",
		Body:     b.String(),
		Severity: severity,
		Color:    color,
	}
	for _, t := range r.TopTypes {
		evt.Fields = append(evt.Fields, alert.Field{Name: t.Key, Value: fmt.Sprintf("%d", t.Count), Short: true})
	}
	return evt
}
