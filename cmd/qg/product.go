package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/qualitygate/internal/authz"
)

func newProductCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Product catalog commands",
	}

	cmd.AddCommand(newProductAddCmd())
	cmd.AddCommand(newProductListCmd())
	return cmd
}

func newProductAddCmd() *cobra.Command {
	var (
		configPath string
		name       string
		sku        string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a product",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProductAdd(cmd, configPath, name, sku)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Quality Gate config file")
	cmd.Flags().StringVar(&name, "name", "", "product name (required)")
	cmd.Flags().StringVar(&sku, "sku", "", "unique stock-keeping unit (required)")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("sku")
	return cmd
}

func runProductAdd(cmd *cobra.Command, configPath, name, sku string) error {
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

	p, err := a.Products.Create(ctx, authz.System, name, sku)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created product %s (%s)\n", newPalette(cmd.OutOrStdout()).id(p.ID), p.SKU)
	return nil
}

func newProductListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List products",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProductList(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Quality Gate config file")
	return cmd
}

func runProductList(cmd *cobra.Command, configPath string) error {
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

	products, err := a.Products.List(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(products) == 0 {
		fmt.Fprintln(out, "No products found.")
		return nil
	}
	pal := newPalette(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSKU\tNAME\tCREATED")
	for _, p := range products {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", pal.id(p.ID), p.SKU, p.Name, p.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}
