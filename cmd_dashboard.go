package main

import (
	"grafana-steward/internal/governance"
	"grafana-steward/internal/grafana"

	"github.com/spf13/cobra"
)

var (
	dashFolderUID     string
	dashFile          string
	searchTags        []string
	searchStarred     bool
	searchFolderUIDs  []string
	searchDashUIDs    []string
	searchDashIDs     []int64
	searchType        string
	searchLimit       int64
	searchPage        int64
	copyTargetCluster string
	copyTargetUID     string
	compareClusterB   string
	snapshotName      string
	snapshotExpires   int64
	renderWidth       int
	renderHeight      int
	renderOutput      string
	timeFrom          string
	timeTo            string
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Manage, inspect and compare dashboards",
}

var dashboardCreateCmd = &cobra.Command{
	Use:   "create <cluster>",
	Short: "Create a dashboard from a JSON definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := readDocument(dashFile)
		if err != nil {
			return err
		}
		result, err := svc.CreateDashboard(args[0], grafana.Document(doc), dashFolderUID)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var dashboardGetCmd = &cobra.Command{
	Use:   "get <cluster> <uid>",
	Short: "Fetch a dashboard definition and its metadata",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, meta, err := svc.ReadDashboard(args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"dashboard": doc,
			"meta":      meta,
		})
	},
}

var dashboardUpdateCmd = &cobra.Command{
	Use:   "update <cluster> <uid>",
	Short: "Replace a dashboard definition",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := readDocument(dashFile)
		if err != nil {
			return err
		}
		result, err := svc.UpdateDashboard(args[0], args[1], grafana.Document(doc))
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var dashboardDeleteCmd = &cobra.Command{
	Use:   "delete <cluster> <uid>",
	Short: "Delete a dashboard",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := svc.DeleteDashboard(args[0], args[1]); err != nil {
			return err
		}
		return printJSON(map[string]any{
			"cluster": args[0],
			"uid":     args[1],
			"deleted": true,
		})
	},
}

var dashboardSearchCmd = &cobra.Command{
	Use:   "search <cluster> [query]",
	Short: "Search dashboards and folders",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := ""
		if len(args) > 1 {
			query = args[1]
		}
		hits, err := svc.Search(args[0], governance.SearchOptions{
			Query:         query,
			Tags:          searchTags,
			Starred:       searchStarred,
			FolderUIDs:    searchFolderUIDs,
			DashboardUIDs: searchDashUIDs,
			DashboardIDs:  searchDashIDs,
			Type:          searchType,
			Limit:         searchLimit,
			Page:          searchPage,
		})
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"cluster": args[0],
			"hits":    hits,
			"count":   len(hits),
		})
	},
}

var dashboardCopyCmd = &cobra.Command{
	Use:   "copy <cluster> <uid> <new-title>",
	Short: "Copy a dashboard, optionally to another cluster",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := svc.CopyDashboard(args[0], args[1], args[2], governance.CopyOptions{
			TargetCluster: copyTargetCluster,
			FolderUID:     dashFolderUID,
			TargetUID:     copyTargetUID,
		})
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var dashboardInspectCmd = &cobra.Command{
	Use:   "inspect <cluster> <uid>",
	Short: "Report a dashboard's structure: panels, queries, variables, layout",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := svc.InspectDashboard(args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

var dashboardValidateCmd = &cobra.Command{
	Use:   "validate <cluster> <uid>",
	Short: "Run the validation rule set against a dashboard",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := svc.ValidateDashboard(args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

var dashboardCompareCmd = &cobra.Command{
	Use:   "compare <cluster> <uid-a> <uid-b>",
	Short: "Field-level diff of two dashboards, possibly on different clusters",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := svc.CompareDashboards(args[0], args[1], args[2], compareClusterB)
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

var dashboardSnapshotCmd = &cobra.Command{
	Use:   "snapshot <cluster> <uid>",
	Short: "Create a point-in-time snapshot of a dashboard",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := svc.SnapshotDashboard(args[0], args[1], governance.SnapshotOptions{
			Name:         snapshotName,
			ExpiresHours: snapshotExpires,
			TimeFrom:     timeFrom,
			TimeTo:       timeTo,
		})
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var dashboardRenderCmd = &cobra.Command{
	Use:   "render <cluster> <uid> <panel-id>",
	Short: "Render a panel as a PNG via the image renderer",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		panelID, err := parseInt64(args[2])
		if err != nil {
			return err
		}
		result, err := svc.RenderPanel(args[0], args[1], panelID, governance.RenderOptions{
			Width:    renderWidth,
			Height:   renderHeight,
			TimeFrom: timeFrom,
			TimeTo:   timeTo,
			SaveTo:   renderOutput,
		})
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func init() {
	dashboardCreateCmd.Flags().StringVarP(&dashFile, "file", "f", "-", "dashboard JSON file, - for stdin")
	dashboardCreateCmd.Flags().StringVar(&dashFolderUID, "folder", "", "target folder uid")
	dashboardUpdateCmd.Flags().StringVarP(&dashFile, "file", "f", "-", "dashboard JSON file, - for stdin")

	dashboardSearchCmd.Flags().StringSliceVar(&searchTags, "tag", nil, "filter by tag, repeatable")
	dashboardSearchCmd.Flags().BoolVar(&searchStarred, "starred", false, "only starred dashboards")
	dashboardSearchCmd.Flags().StringSliceVar(&searchFolderUIDs, "folder-uid", nil, "restrict to folder uids")
	dashboardSearchCmd.Flags().StringSliceVar(&searchDashUIDs, "dashboard-uid", nil, "restrict to dashboard uids")
	dashboardSearchCmd.Flags().Int64SliceVar(&searchDashIDs, "dashboard-id", nil, "restrict to dashboard ids")
	dashboardSearchCmd.Flags().StringVar(&searchType, "type", "", "hit type: dash-db or dash-folder")
	dashboardSearchCmd.Flags().Int64Var(&searchLimit, "limit", 0, "max results per page")
	dashboardSearchCmd.Flags().Int64Var(&searchPage, "page", 1, "result page")

	dashboardCopyCmd.Flags().StringVar(&copyTargetCluster, "to-cluster", "", "target cluster, defaults to the source cluster")
	dashboardCopyCmd.Flags().StringVar(&copyTargetUID, "to-uid", "", "explicit target uid")
	dashboardCopyCmd.Flags().StringVar(&dashFolderUID, "folder", "", "target folder uid, defaults to the source folder")

	dashboardCompareCmd.Flags().StringVar(&compareClusterB, "cluster-b", "", "cluster of the second dashboard")

	dashboardSnapshotCmd.Flags().StringVar(&snapshotName, "name", "", "snapshot name")
	dashboardSnapshotCmd.Flags().Int64Var(&snapshotExpires, "expires", 0, "snapshot lifetime in hours, 0 means never")
	dashboardSnapshotCmd.Flags().StringVar(&timeFrom, "from", "", "time range start, e.g. now-6h")
	dashboardSnapshotCmd.Flags().StringVar(&timeTo, "to", "", "time range end, e.g. now")

	dashboardRenderCmd.Flags().IntVar(&renderWidth, "width", 1000, "image width in pixels")
	dashboardRenderCmd.Flags().IntVar(&renderHeight, "height", 500, "image height in pixels")
	dashboardRenderCmd.Flags().StringVarP(&renderOutput, "output", "o", "", "write the PNG to this path")
	dashboardRenderCmd.Flags().StringVar(&timeFrom, "from", "", "time range start, e.g. now-6h")
	dashboardRenderCmd.Flags().StringVar(&timeTo, "to", "", "time range end, e.g. now")

	dashboardCmd.AddCommand(
		dashboardCreateCmd, dashboardGetCmd, dashboardUpdateCmd, dashboardDeleteCmd,
		dashboardSearchCmd, dashboardCopyCmd, dashboardInspectCmd, dashboardValidateCmd,
		dashboardCompareCmd, dashboardSnapshotCmd, dashboardRenderCmd,
	)
}
