package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ShannaChang/serverless-demo-for-aiops/pkg/api/client"
	"github.com/ShannaChang/serverless-demo-for-aiops/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "loadgen",
	Short: "Traffic generator for the item service",
	Long: `Drives a weighted mix of list, get and put requests against the item API
and reports the resulting status codes, so injected faults show up in the alarms.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (yaml)")
	rootCmd.PersistentFlags().String("api-url", "", "item API base URL (overrides LOADGEN_API_URL)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug|info|warn|error)")
	_ = viper.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("api-url"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if path, _ := rootCmd.PersistentFlags().GetString("config"); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: read config %s: %v\n", path, err)
			os.Exit(1)
		}
	}

	viper.SetEnvPrefix("LOADGEN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("api_url", "http://localhost:4000")
	viper.SetDefault("log_level", "info")
}

func newLogger() *slog.Logger {
	return logger.New("loadgen", logger.ParseLevel(viper.GetString("log_level")))
}

func newClient() (*client.Client, error) {
	cli, err := client.New(viper.GetString("api_url"))
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}
	return cli, nil
}
