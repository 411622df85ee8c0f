package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/zulandar/qualitygate/internal/models"
	"golang.org/x/term"
)

// palette colours CLI output. Colours are only emitted when the writer is a
// terminal so piped output and tests stay plain.
type palette struct {
	enabled bool
}

func newPalette(out io.Writer) palette {
	f, ok := out.(*os.File)
	return palette{enabled: ok && term.IsTerminal(int(f.Fd()))}
}

func (p palette) paint(s string, attrs ...color.Attribute) string {
	c := color.New(attrs...)
	if p.enabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c.Sprint(s)
}

func (p palette) status(s string) string {
	switch s {
	case models.InspectionCompleted, models.DefectResolved:
		return p.paint(s, color.FgGreen)
	case models.InspectionFailed:
		return p.paint(s, color.FgRed, color.Bold)
	case models.InspectionPending, models.DefectOpen:
		return p.paint(s, color.FgYellow)
	}
	return s
}

func (p palette) severity(s string) string {
	switch s {
	case models.SeverityCritical:
		return p.paint(s, color.FgRed, color.Bold)
	case models.SeverityMajor:
		return p.paint(s, color.FgYellow)
	}
	return s
}

func (p palette) id(s string) string {
	return p.paint(s, color.FgCyan)
}

// formatRate renders a percentage with two decimals, e.g. 3 -> "3.00%".
func formatRate(rate float64) string {
	return fmt.Sprintf("%.2f%%", rate)
}
