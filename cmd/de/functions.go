package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Median-Group/differential-evolution2/internal/optimization/benchmarks"
)

func newFunctionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "functions",
		Short: "List the available objective functions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tBOUNDS\tMIN DIM\tDESCRIPTION")
			for _, f := range benchmarks.All() {
				fmt.Fprintf(w, "%s\t[%g, %g]\t%d\t%s\n", f.Name, f.Lower, f.Upper, f.MinDim, f.Description)
			}
			return w.Flush()
		},
	}
}
