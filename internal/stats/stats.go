// Package stats derives grouped and daily defect statistics.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/qualitygate/internal/apperr"
	"github.com/zulandar/qualitygate/internal/models"
	"gorm.io/gorm"
)

// dateOnly is the layout accepted for day-granular bounds and used for
// daily trend keys.
const dateOnly = "2006-01-02"

// Filter narrows the defects aggregated. From and To are RFC 3339 instants
// or YYYY-MM-DD dates; both bounds are inclusive and a date-only To covers
// that whole day.
type Filter struct {
	ProductID string
	From      string
	To        string
}

// Count is one group of a grouped aggregation.
type Count struct {
	Key   string `json:"key" gorm:"column:grp"`
	Count int64  `json:"count" gorm:"column:cnt"`
}

// Day is one entry of the daily trend.
type Day struct {
	Date     string `json:"date"`
	Total    int64  `json:"total"`
	Critical int64  `json:"critical"`
	Major    int64  `json:"major"`
	Minor    int64  `json:"minor"`
}

// Report holds the aggregations computed by Compute.
type Report struct {
	ByType      []Count `json:"byType"`
	BySeverity  []Count `json:"bySeverity"`
	ByRootCause []Count `json:"byRootCause"`
	ByStatus    []Count `json:"byStatus"`
	DailyTrend  []Day   `json:"dailyTrend"`
}

// Aggregator computes defect statistics. Days are bucketed in loc.
type Aggregator struct {
	db  *gorm.DB
	loc *time.Location
}

// NewAggregator returns an Aggregator. A nil loc means UTC.
func NewAggregator(db *gorm.DB, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{db: db, loc: loc}
}

// Compute aggregates the defects matching f.
func (a *Aggregator) Compute(ctx context.Context, f Filter) (*Report, error) {
	start, end, err := ParseRange(f.From, f.To, a.loc)
	if err != nil {
		return nil, err
	}
	scope := func(db *gorm.DB) *gorm.DB {
		q := db.Model(&models.Defect{})
		if f.ProductID != "" {
			q = q.Where("product_id = ?", f.ProductID)
		}
		if start != nil {
			q = q.Where("created_at >= ?", start.UTC())
		}
		if end != nil {
			q = q.Where("created_at <= ?", end.UTC())
		}
		return q
	}

	r := &Report{}
	groups := []struct {
		column string
		order  string
		dst    *[]Count
	}{
		{"type", "cnt DESC, grp ASC", &r.ByType},
		{"severity", "grp ASC", &r.BySeverity},
		{"root_cause", "cnt DESC, grp ASC", &r.ByRootCause},
		{"status", "cnt DESC, grp ASC", &r.ByStatus},
	}
	for _, g := range groups {
		out := []Count{}
		err := a.db.WithContext(ctx).Scopes(scope).
			Select(g.column + " AS grp, COUNT(*) AS cnt").
			Group(g.column).
			Order(g.order).
			Scan(&out).Error
		if err != nil {
			return nil, fmt.Errorf("stats: group by %s: %w", g.column, err)
		}
		*g.dst = out
	}

	trend, err := a.dailyTrend(ctx, scope)
	if err != nil {
		return nil, err
	}
	r.DailyTrend = trend
	return r, nil
}

// dailyTrend buckets defects by calendar day in a.loc. Bucketing happens
// here rather than in SQL because the date functions differ per driver.
func (a *Aggregator) dailyTrend(ctx context.Context, scope func(*gorm.DB) *gorm.DB) ([]Day, error) {
	var rows []struct {
		CreatedAt time.Time
		Severity  string
	}
	if err := a.db.WithContext(ctx).Scopes(scope).
		Select("created_at, severity").
		Order("created_at ASC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("stats: daily trend: %w", err)
	}

	days := []Day{}
	for _, row := range rows {
		key := row.CreatedAt.In(a.loc).Format(dateOnly)
		if len(days) == 0 || days[len(days)-1].Date != key {
			days = append(days, Day{Date: key})
		}
		d := &days[len(days)-1]
		d.Total++
		switch row.Severity {
		case models.SeverityCritical:
			d.Critical++
		case models.SeverityMajor:
			d.Major++
		case models.SeverityMinor:
			d.Minor++
		}
	}
	return days, nil
}

// ParseRange parses optional inclusive bounds. Empty strings leave a side
// open. A date-only to extends to the last instant of that day in loc.
func ParseRange(from, to string, loc *time.Location) (start, end *time.Time, err error) {
	if from != "" {
		t, _, err := parseBound(from, loc)
		if err != nil {
			return nil, nil, fmt.Errorf("stats: from: %w", err)
		}
		start = &t
	}
	if to != "" {
		t, wholeDay, err := parseBound(to, loc)
		if err != nil {
			return nil, nil, fmt.Errorf("stats: to: %w", err)
		}
		if wholeDay {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		end = &t
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, nil, fmt.Errorf("stats: end %s is before start %s: %w", to, from, apperr.ErrInvalidInput)
	}
	return start, end, nil
}

func parseBound(s string, loc *time.Location) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, false, nil
	}
	if t, err := time.ParseInLocation(dateOnly, s, loc); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, fmt.Errorf("%q is not an RFC 3339 time or YYYY-MM-DD date: %w", s, apperr.ErrInvalidInput)
}
