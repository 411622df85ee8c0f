package alert

import (
	"fmt"
	"math"
	"strconv"

	"github.com/zulandar/qualitygate/internal/models"
)

// Kind identifies what raised an Event.
type Kind string

const (
	KindCriticalDefect Kind = "critical_defect"
	KindDefectRate     Kind = "defect_rate"
	KindDigest         Kind = "digest"
)

// Color constants for event severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// Event is a platform-neutral notification rendered by each Notifier.
type Event struct {
	Kind     Kind
	Title    string
	Body     string
	Severity string // "info", "warning", "error"
	Color    string
	Fields   []Field
}

// Field is a key-value pair displayed with an event.
type Field struct {
	Name  string
	Value string
	Short bool
}

// severityColor maps an event severity to a sidebar color.
func severityColor(severity string) string {
	switch severity {
	case "success":
		return ColorSuccess
	case "warning":
		return ColorWarning
	case "error":
		return ColorError
	default:
		return ColorInfo
	}
}

// FormatCriticalDefect builds the event for a newly created critical defect.
func FormatCriticalDefect(d *models.Defect, insp *models.Inspection) Event {
	title := fmt.Sprintf("Critical defect %s: %s", d.ID, d.Type)
	body := d.Description
	if body == "" {
		body = "A critical defect was recorded."
	}
	fields := []Field{
		{Name: "Inspection", Value: d.InspectionID, Short: true},
		{Name: "Product", Value: d.ProductID, Short: true},
	}
	if insp != nil {
		fields = append(fields, Field{Name: "Batch", Value: insp.BatchNumber, Short: true})
	}
	if d.Location != "" {
		fields = append(fields, Field{Name: "Location", Value: d.Location, Short: true})
	}
	fields = append(fields, Field{Name: "Reported by", Value: d.ReportedBy, Short: true})
	return Event{
		Kind:     KindCriticalDefect,
		Title:    title,
		Body:     body,
		Severity: "error",
		Color:    severityColor("error"),
		Fields:   fields,
	}
}

// FormatDefectRate builds the event for an inspection whose defect rate
// exceeded the threshold.
func FormatDefectRate(insp *models.Inspection, rate, threshold float64) Event {
	return Event{
		Kind:     KindDefectRate,
		Title:    fmt.Sprintf("Defect rate %s%% on batch %s", formatPercent(rate), insp.BatchNumber),
		Body:     fmt.Sprintf("Inspection %s found %d defects in %d units (threshold %s%%).", insp.ID, insp.DefectsFound, insp.TotalInspected, formatPercent(threshold)),
		Severity: "warning",
		Color:    severityColor("warning"),
		Fields: []Field{
			{Name: "Inspection", Value: insp.ID, Short: true},
			{Name: "Product", Value: insp.ProductID, Short: true},
			{Name: "Inspector", Value: insp.InspectorID, Short: true},
			{Name: "Rate", Value: formatPercent(rate) + "%", Short: true},
		},
	}
}

// formatPercent renders a percentage with at most two decimals.
func formatPercent(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
