package main

import "github.com/spf13/cobra"

// re groups the run-engine control commands forwarded to the currently
// executing plan: pause/resume/stop/abort/halt.
var reCmd = &cobra.Command{
	Use:   "re",
	Short: "Control the currently running plan",
}

var rePauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the running plan",
	Run: func(cmd *cobra.Command, args []string) {
		mode, _ := cmd.Flags().GetString("mode")
		var params interface{}
		if mode != "" {
			params = map[string]interface{}{"mode": mode}
		}
		callAndPrint("re_pause", params)
	},
}

var reResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused plan",
	Run: func(cmd *cobra.Command, args []string) {
		callAndPrint("re_resume", nil)
	},
}

var reStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the paused plan",
	Run: func(cmd *cobra.Command, args []string) {
		callAndPrint("re_stop", nil)
	},
}

var reAbortCmd = &cobra.Command{
	Use:   "abort",
	Short: "Abort the paused plan",
	Run: func(cmd *cobra.Command, args []string) {
		callAndPrint("re_abort", nil)
	},
}

var reHaltCmd = &cobra.Command{
	Use:   "halt",
	Short: "Halt the paused plan immediately",
	Run: func(cmd *cobra.Command, args []string) {
		callAndPrint("re_halt", nil)
	},
}

func init() {
	rePauseCmd.Flags().String("mode", "", "deferred (default) or immediate")
	reCmd.AddCommand(rePauseCmd, reResumeCmd, reStopCmd, reAbortCmd, reHaltCmd)
}
