package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"grafana-steward/internal/governance"
	"grafana-steward/pkg/config"
	"grafana-steward/pkg/log"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     config.Config
	svc     *governance.Service
)

var rootCmd = &cobra.Command{
	Use:   "grafana-steward",
	Short: "Tag-scoped governance for Grafana dashboards",
	Long: `grafana-steward manages Grafana dashboards across clusters within a
tag-scoped boundary: it only mutates dashboards carrying its protection tags,
and can inspect, validate, diff, snapshot and render what it manages.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.InitConfig(cfgFile)
		if err != nil {
			return err
		}
		if err := log.InitLogger(&cfg.Log); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		svc, err = governance.NewService(&cfg, nil)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./config/config.yaml)")
	rootCmd.AddCommand(clustersCmd, healthCmd, datasourcesCmd, dashboardCmd, folderCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// printJSON writes the canonical command output: indented JSON on stdout.
func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func parseInt64(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid panel id %q", s)
	}
	return n, nil
}

// readDocument loads a dashboard definition from a JSON file, or from stdin
// when path is "-".
func readDocument(path string) (map[string]any, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading dashboard definition: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing dashboard definition: %w", err)
	}
	return doc, nil
}
