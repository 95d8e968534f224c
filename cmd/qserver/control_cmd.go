package main

import "github.com/spf13/cobra"

// control groups admin operations against the Manager process itself,
// distinct from the internal "manager" re-exec entry point.
var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Stop or kill the Manager process",
}

var controlStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the Manager (manager_stop)",
	Run: func(cmd *cobra.Command, args []string) {
		mode, _ := cmd.Flags().GetString("mode")
		callAndPrint("manager_stop", map[string]interface{}{"mode": mode})
	},
}

var controlKillCmd = &cobra.Command{
	Use:   "kill",
	Short: "Simulate Manager unresponsiveness (manager_kill); always times out",
	Run: func(cmd *cobra.Command, args []string) {
		callAndPrint("manager_kill", nil)
	},
}

func init() {
	controlStopCmd.Flags().String("mode", "safe_on", "safe_on (reject if a plan is running) or safe_off (force through)")
	controlCmd.AddCommand(controlStopCmd, controlKillCmd)
	rootCmd.AddCommand(controlCmd)
}
