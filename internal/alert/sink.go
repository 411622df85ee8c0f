package alert

import (
	"context"

	"github.com/zulandar/qualitygate/internal/models"
)

// Sink receives raised alerts. Calls are fire-and-forget: implementations
// must not block the caller on delivery and report nothing back.
type Sink interface {
	CriticalDefect(ctx context.Context, defect *models.Defect, inspection *models.Inspection)
	DefectRateExceeded(ctx context.Context, inspection *models.Inspection, rate, threshold float64)
}

// Nop is a Sink that discards every alert.
type Nop struct{}

func (Nop) CriticalDefect(context.Context, *models.Defect, *models.Inspection) {}
func (Nop) DefectRateExceeded(context.Context, *models.Inspection, float64, float64) {}
