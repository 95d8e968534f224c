package main

import "github.com/spf13/cobra"

var environmentCmd = &cobra.Command{
	Use:   "environment",
	Short: "Manage the Worker environment",
}

var environmentOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "Open the environment (spawns the Worker)",
	Run: func(cmd *cobra.Command, args []string) {
		callAndPrint("environment_open", nil)
	},
}

var environmentCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Close the environment gracefully",
	Run: func(cmd *cobra.Command, args []string) {
		callAndPrint("environment_close", nil)
	},
}

var environmentDestroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Forcibly kill the Worker and requeue any plan it was running",
	Run: func(cmd *cobra.Command, args []string) {
		callAndPrint("environment_destroy", nil)
	},
}

func init() {
	environmentCmd.AddCommand(environmentOpenCmd, environmentCloseCmd, environmentDestroyCmd)
}
