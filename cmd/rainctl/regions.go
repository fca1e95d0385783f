package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newRegionsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "regions",
		Short: "List the region catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := opts.catalogue()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "NAME\tPRIORITY\tBOUNDS\tSHAPE\tADJUSTMENT")
			for _, rg := range cat.Regions() {
				shape := "box"
				if rg.Polygon != nil {
					shape = "polygon"
				}
				adj := "-"
				if !rg.Adjustment.IsDefault() {
					adj = fmt.Sprintf("scale %.2f, offset %+.1f%%", rg.Adjustment.Scale, rg.Adjustment.Offset)
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", rg.Name, rg.Priority, rg.Bounds, shape, adj)
			}
			return w.Flush()
		},
	}
}
