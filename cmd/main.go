package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "optibooking",
		Short: "Room-night price forecasting service",
		Long: `Learns nightly room prices from historical stays and forecasts
prices for future date ranges per room type and party size.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(trainCmd())
	rootCmd.AddCommand(predictCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
