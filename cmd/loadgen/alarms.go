package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var alarmsCmd = &cobra.Command{
	Use:   "alarms",
	Short: "Show alarm states",
	Long:  "Print the current state of every alarm reported by the item API",
	RunE:  showAlarms,
}

func init() {
	rootCmd.AddCommand(alarmsCmd)
}

func showAlarms(cmd *cobra.Command, args []string) error {
	cli, err := newClient()
	if err != nil {
		return err
	}
	states, err := cli.Alarms(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to fetch alarms: %w", err)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATE\tBREACHING\tLAST VALUE\tTHRESHOLD\tLAST PERIOD")
	for _, s := range states {
		state := "OK"
		if s.Alarming {
			state = "ALARM"
		}
		last := "-"
		if !s.LastPeriod.IsZero() {
			last = s.LastPeriod.Format("15:04:05")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%.2f\t%.2f\t%s\n", s.Name, state, s.Breaching, len(s.Window), s.LastValue, s.Threshold, last)
	}
	return tw.Flush()
}
