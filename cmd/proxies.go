// -- cmd/proxies.go --
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wafidbot/wafidbot/internal/observability"
)

var proxiesCmd = &cobra.Command{
	Use:   "proxies",
	Short: "Inspect the configured proxy sources.",
}

var proxiesRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch and validate proxies from every configured source, then print the pool.",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()
		events := observability.NewEventLog(logger)

		pool := buildPool(logger, events, appCfg)
		if err := pool.Refresh(cmd.Context()); err != nil {
			return err
		}

		healthy := 0
		for _, ep := range pool.Snapshot() {
			status := "dead"
			if ep.Healthy {
				status = "ok"
				healthy++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-40s %-8s %s\n", ep.URL(), ep.Protocol, status)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d healthy of %d candidates\n", healthy, pool.Len())
		return nil
	},
}

func init() {
	proxiesCmd.AddCommand(proxiesRefreshCmd)
	rootCmd.AddCommand(proxiesCmd)
}
