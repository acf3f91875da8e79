package main

import (
	"github.com/spf13/cobra"
)

var (
	folderParentUID  string
	folderForceRules bool
)

var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Manage dashboard folders",
}

var folderListCmd = &cobra.Command{
	Use:   "list <cluster>",
	Short: "List folders, optionally under a parent folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := svc.ListFolders(args[0], folderParentUID)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"cluster": args[0],
			"folders": result,
			"count":   len(result),
		})
	},
}

var folderGetCmd = &cobra.Command{
	Use:   "get <cluster> <uid>",
	Short: "Fetch one folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		folder, err := svc.GetFolder(args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(folder)
	},
}

var folderCreateCmd = &cobra.Command{
	Use:   "create <cluster> <title>",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		folder, err := svc.CreateFolder(args[0], args[1], folderParentUID)
		if err != nil {
			return err
		}
		return printJSON(folder)
	},
}

var folderUpdateCmd = &cobra.Command{
	Use:   "update <cluster> <uid> <title>",
	Short: "Rename a folder and optionally move it under a new parent",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		folder, err := svc.UpdateFolder(args[0], args[1], args[2], folderParentUID)
		if err != nil {
			return err
		}
		return printJSON(folder)
	},
}

var folderDeleteCmd = &cobra.Command{
	Use:   "delete <cluster> <uid>",
	Short: "Delete a folder and its dashboards",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := svc.DeleteFolder(args[0], args[1], folderForceRules); err != nil {
			return err
		}
		return printJSON(map[string]any{
			"cluster": args[0],
			"uid":     args[1],
			"deleted": true,
		})
	},
}

func init() {
	folderListCmd.Flags().StringVar(&folderParentUID, "parent", "", "parent folder uid")
	folderCreateCmd.Flags().StringVar(&folderParentUID, "parent", "", "parent folder uid")
	folderUpdateCmd.Flags().StringVar(&folderParentUID, "parent", "", "move under this parent folder uid")
	folderDeleteCmd.Flags().BoolVar(&folderForceRules, "force-delete-rules", false, "also delete alert rules in the folder")

	folderCmd.AddCommand(folderListCmd, folderGetCmd, folderCreateCmd, folderUpdateCmd, folderDeleteCmd)
}
