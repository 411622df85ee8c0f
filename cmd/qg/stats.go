package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/qualitygate/internal/stats"
)

func newStatsCmd() *cobra.Command {
	var (
		configPath string
		productID  string
		from, to   string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print defect statistics",
		Long:  "Aggregates defects by type, severity, root cause and status, plus a daily trend. --from and --to accept RFC 3339 times or YYYY-MM-DD dates in the configured timezone.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, configPath, productID, from, to)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Quality Gate config file")
	cmd.Flags().StringVar(&productID, "product", "", "restrict to one product")
	cmd.Flags().StringVar(&from, "from", "", "range start (inclusive)")
	cmd.Flags().StringVar(&to, "to", "", "range end (inclusive)")
	return cmd
}

func runStats(cmd *cobra.Command, configPath, productID, from, to string) error {
	ctx := context.Background()
	cfg, gormDB, logger, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	a, err := buildApp(ctx, cfg, gormDB, logger, false)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Stats.Compute(ctx, stats.Filter{ProductID: productID, From: from, To: to})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	pal := newPalette(out)
	writeCounts(out, "By severity", report.BySeverity, pal.severity)
	writeCounts(out, "By type", report.ByType, nil)
	writeCounts(out, "By root cause", report.ByRootCause, nil)
	writeCounts(out, "By status", report.ByStatus, pal.status)

	fmt.Fprintln(out, "Daily trend")
	if len(report.DailyTrend) == 0 {
		fmt.Fprintln(out, "  (none)")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  DATE\tTOTAL\tCRITICAL\tMAJOR\tMINOR")
	for _, d := range report.DailyTrend {
		fmt.Fprintf(w, "  %s\t%d\t%d\t%d\t%d\n", d.Date, d.Total, d.Critical, d.Major, d.Minor)
	}
	return w.Flush()
}

func writeCounts(out io.Writer, title string, counts []stats.Count, paint func(string) string) {
	fmt.Fprintln(out, title)
	if len(counts) == 0 {
		fmt.Fprintln(out, "  (none)")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, c := range counts {
		key := c.Key
		if key == "" {
			key = "(unset)"
		} else if paint != nil {
			key = paint(key)
		}
		fmt.Fprintf(w, "  %s\t%d\n", key, c.Count)
	}
	w.Flush()
}
