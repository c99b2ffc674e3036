package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var refreshPretty bool

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one refresh cycle and print the published state",
	RunE:  runRefresh,
}

func init() {
	refreshCmd.Flags().BoolVar(&refreshPretty, "pretty", false, "indent JSON output")
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	p, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer p.store.Close()

	result := p.orchestrator.RunRefreshCycle(cmd.Context())

	enc := json.NewEncoder(os.Stdout)
	if refreshPretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(map[string]interface{}{
		"cycle": result,
		"state": p.store.Snapshot(),
	})
}
