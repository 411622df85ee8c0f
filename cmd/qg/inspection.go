package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/qualitygate/internal/authz"
	"github.com/zulandar/qualitygate/internal/inspection"
)

func newInspectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspection",
		Short: "Inspection commands",
	}

	cmd.AddCommand(newInspectionListCmd())
	cmd.AddCommand(newInspectionCompleteCmd())
	return cmd
}

func newInspectionListCmd() *cobra.Command {
	var (
		configPath string
		filters    inspection.ListFilters
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List inspections, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspectionList(cmd, configPath, filters)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Quality Gate config file")
	cmd.Flags().StringVar(&filters.ProductID, "product", "", "filter by product ID")
	cmd.Flags().StringVar(&filters.Status, "status", "", "filter by status (pending, completed, failed)")
	cmd.Flags().StringVar(&filters.BatchNumber, "batch", "", "filter by batch number")
	cmd.Flags().IntVar(&filters.Limit, "limit", 50, "maximum number of rows")
	return cmd
}

func runInspectionList(cmd *cobra.Command, configPath string, filters inspection.ListFilters) error {
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

	list, err := a.Inspections.List(ctx, filters)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No inspections found.")
		return nil
	}
	pal := newPalette(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBATCH\tDATE\tSTATUS\tDEFECTS\tINSPECTED")
	for _, ins := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
			pal.id(ins.ID), ins.BatchNumber, ins.Date.In(a.loc).Format("2006-01-02"),
			pal.status(ins.Status), ins.DefectsFound, ins.TotalInspected)
	}
	return w.Flush()
}

func newInspectionCompleteCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "complete <inspection-id>",
		Short: "Complete an inspection and derive its pass/fail status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspectionComplete(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Quality Gate config file")
	return cmd
}

func runInspectionComplete(cmd *cobra.Command, configPath, id string) error {
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

	res, err := a.Inspections.Complete(ctx, authz.System, id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	pal := newPalette(out)
	ins := res.Inspection
	fmt.Fprintf(out, "Inspection %s: %s\n", pal.id(ins.ID), pal.status(ins.Status))
	fmt.Fprintf(out, "  Defects:     %d of %d inspected\n", ins.DefectsFound, ins.TotalInspected)
	fmt.Fprintf(out, "  Defect rate: %s\n", formatRate(res.DefectRate))
	if res.RateAlerted {
		fmt.Fprintln(out, "  Defect-rate alert raised")
	}
	return nil
}
