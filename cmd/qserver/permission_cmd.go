package main

import "github.com/spf13/cobra"

var permissionCmd = &cobra.Command{
	Use:   "permission",
	Short: "Query what a user group is allowed to submit or reference",
}

var plansAllowedCmd = &cobra.Command{
	Use:   "plans-allowed",
	Short: "List plan names the group may submit",
	Run: func(cmd *cobra.Command, args []string) {
		group, _ := cmd.Flags().GetString("user-group")
		callAndPrint("plans_allowed", map[string]interface{}{"user_group": group})
	},
}

var devicesAllowedCmd = &cobra.Command{
	Use:   "devices-allowed",
	Short: "List device names the group may reference",
	Run: func(cmd *cobra.Command, args []string) {
		group, _ := cmd.Flags().GetString("user-group")
		callAndPrint("devices_allowed", map[string]interface{}{"user_group": group})
	},
}

func init() {
	for _, c := range []*cobra.Command{plansAllowedCmd, devicesAllowedCmd} {
		c.Flags().String("user-group", "", "Submitting group to check")
	}
	permissionCmd.AddCommand(plansAllowedCmd, devicesAllowedCmd)
}
