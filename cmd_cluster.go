package main

import (
	"github.com/spf13/cobra"
)

var clustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "List the configured Grafana clusters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printJSON(map[string]any{
			"clusters": svc.ListClusters(),
			"count":    len(svc.ListClusters()),
		})
	},
}

var healthCmd = &cobra.Command{
	Use:   "health <cluster>",
	Short: "Probe a cluster's health endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := svc.CheckClusterHealth(args[0])
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

var datasourcesCmd = &cobra.Command{
	Use:   "datasources <cluster>",
	Short: "List the datasources configured on a cluster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		datasources, err := svc.ListDatasources(args[0])
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"cluster":     args[0],
			"datasources": datasources,
			"count":       len(datasources),
		})
	},
}
