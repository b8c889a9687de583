package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/loadgen"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate traffic",
	Long:  "Issue list, get and put requests at the configured rate and mix until the duration or request budget is spent",
	RunE:  runLoad,
}

func init() {
	rootCmd.AddCommand(runCmd)

	def := loadgen.DefaultConfig()
	runCmd.Flags().Int("workers", def.Workers, "concurrent workers")
	runCmd.Flags().Float64("rate", def.Rate, "requests per second across workers (0 = unpaced)")
	runCmd.Flags().Duration("duration", def.Duration, "how long to run (0 = until interrupted or budget spent)")
	runCmd.Flags().Int("requests", 0, "total request budget (0 = unlimited)")
	runCmd.Flags().Int("weight-list", def.Weights.List, "relative weight of GET /items")
	runCmd.Flags().Int("weight-get", def.Weights.Get, "relative weight of GET /items/{id}")
	runCmd.Flags().Int("weight-put", def.Weights.Put, "relative weight of POST /items")
	runCmd.Flags().Int("max-id", def.MaxID, "get requests draw ids from 1..max-id")
	runCmd.Flags().Int64("seed", 0, "random seed (0 = time based)")
	runCmd.Flags().Bool("json", false, "print the summary as JSON")

	for _, name := range []string{"workers", "rate", "duration", "requests", "weight-list", "weight-get", "weight-put", "max-id", "seed"} {
		_ = viper.BindPFlag(name, runCmd.Flags().Lookup(name))
	}
}

func runLoad(cmd *cobra.Command, args []string) error {
	log := newLogger()
	cli, err := newClient()
	if err != nil {
		return err
	}

	cfg := loadgen.Config{
		Workers:  viper.GetInt("workers"),
		Rate:     viper.GetFloat64("rate"),
		Duration: viper.GetDuration("duration"),
		Requests: viper.GetInt("requests"),
		Weights: loadgen.Weights{
			List: viper.GetInt("weight-list"),
			Get:  viper.GetInt("weight-get"),
			Put:  viper.GetInt("weight-put"),
		},
		MaxID: viper.GetInt("max-id"),
		Seed:  viper.GetInt64("seed"),
	}
	gen, err := loadgen.New(cli, cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log.Info("generating load", "api_url", viper.GetString("api_url"), "workers", cfg.Workers, "rate", cfg.Rate, "duration", cfg.Duration)
	summary, err := gen.Run(ctx)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENDPOINT\tTOTAL\tOK\tFAILED\tMEAN\tSTATUS")
	for _, endpoint := range summary.Sorted() {
		st := summary.Endpoints[endpoint]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\t%v\n", endpoint, st.Total, st.Succeeded, st.Failed, st.MeanLatency().Round(time.Millisecond), st.ByStatus)
	}
	fmt.Fprintf(tw, "ALL\t%d\t\t\t%s\t\n", summary.Total(), summary.Elapsed.Round(time.Millisecond))
	return tw.Flush()
}
