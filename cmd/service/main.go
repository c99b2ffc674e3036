package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dropzone-weather",
	Short: "Dropzone weather acquisition service",
	Long: `Fetches METAR, wind observations and forecasts for one station from the
FMI open data WFS service and publishes them with a gust trend.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
