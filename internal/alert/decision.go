// Package alert holds the alert decision rules and the dispatcher that
// delivers raised alerts to notification channels.
package alert

import "github.com/zulandar/qualitygate/internal/models"

// DefectRateThreshold is the defect rate, in percent, above which an
// inspection raises a defect-rate alert. A rate exactly at the threshold
// does not alert.
const DefectRateThreshold = 5.0

// ShouldAlertCritical reports whether a newly created defect of the given
// severity raises a critical-defect alert.
func ShouldAlertCritical(severity string) bool {
	return severity == models.SeverityCritical
}

// DefectRate returns found/total as a percentage. A non-positive total
// yields 0.
func DefectRate(found, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(found) * 100 / float64(total)
}

// ShouldAlertRate reports whether rate breaches DefectRateThreshold.
func ShouldAlertRate(rate float64) bool {
	return rate > DefectRateThreshold
}
