package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var logLines int

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent daemon log lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp map[string][]string
		if err := apiGet(socketPath(), "/v1/logs?n="+strconv.Itoa(logLines), &resp); err != nil {
			return err
		}
		for _, line := range resp["lines"] {
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	logsCmd.Flags().IntVarP(&logLines, "lines", "n", 50, "Number of lines to show (0 for all)")
	rootCmd.AddCommand(logsCmd)
}
