package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/benaskins/keyguard/internal/api"
)

var diagCmd = &cobra.Command{
	Use:   "diag",
	Short: "Show the daemon's last query and status",
	RunE: func(cmd *cobra.Command, args []string) error {
		var d api.Diagnostics
		if err := apiGet(socketPath(), "/v1/diagnostics", &d); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "STATUS\t%d (%s)\n", d.LastStatus, d.LastStatusText)
		fmt.Fprintf(w, "BUSY\t%v\n", d.Busy)
		fmt.Fprintf(w, "PREFIX\t%s\n", d.Prefix)
		if d.AccessGroup != "" {
			fmt.Fprintf(w, "ACCESS GROUP\t%s\n", d.AccessGroup)
		}
		fmt.Fprintf(w, "SYNCHRONIZABLE\t%v\n", d.Synchronizable)
		w.Flush()

		if len(d.LastQuery) == 0 {
			fmt.Println("\nNo query issued yet")
			return nil
		}

		fmt.Println("\nLAST QUERY")
		attrs := make([]string, 0, len(d.LastQuery))
		for k := range d.LastQuery {
			attrs = append(attrs, k)
		}
		sort.Strings(attrs)
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, k := range attrs {
			fmt.Fprintf(w, "  %s\t%v\n", k, d.LastQuery[k])
		}
		w.Flush()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(diagCmd)
}
