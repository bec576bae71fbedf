package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newListCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list <project>",
		Short: "List a project's items in number order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := a.items.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, items)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NUMBER\tTITLE\tIMAGES\tID")
			for _, it := range items {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", it.Number, it.Title, len(it.Images), it.ID)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func newRenumberCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "renumber <project>",
		Short: "Renumber items to 1..N keeping their order",
		Long: `Renumber closes gaps left by deletes and moves. It also finishes a
shift that was interrupted, so run it after a crash mid-save.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.items.Renumber(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !res.Changed {
				fmt.Fprintf(cmd.OutOrStdout(), "%d items already numbered 1..%d\n", res.Count, res.After.Max)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "renumbered %d items: %d..%d -> %d..%d\n",
				res.Count, res.Before.Min, res.Before.Max, res.After.Min, res.After.Max)
			return nil
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <project>",
		Short: "Write a project's items as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create %s: %w", output, err)
				}
				defer f.Close()
				out = f
			}
			n, err := a.items.Export(cmd.Context(), args[0], out)
			if err != nil {
				return err
			}
			a.logger.Debug("exported items", "project", args[0], "count", n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (default stdout)")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <project> <file.csv|->",
		Short: "Insert every row of a CSV table, or none",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if args[1] != "-" {
				f, err := os.Open(args[1])
				if err != nil {
					return fmt.Errorf("open %s: %w", args[1], err)
				}
				defer f.Close()
				in = f
			}
			n, err := a.items.Import(cmd.Context(), args[0], in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d items\n", n)
			return nil
		},
	}
}

func newSweepCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep <project>",
		Short: "Release stored images no item references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.items.Sweep(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, ref := range res.Released {
				fmt.Fprintln(cmd.OutOrStdout(), "released", ref)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "released %d, kept %d\n", len(res.Released), res.Kept)
			return nil
		},
	}
}
