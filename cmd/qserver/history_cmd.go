package main

import "github.com/spf13/cobra"

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the plan execution history",
}

var historyGetCmd = &cobra.Command{
	Use:   "get",
	Short: "List history entries",
	Run: func(cmd *cobra.Command, args []string) {
		callAndPrint("history_get", nil)
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear history",
	Run: func(cmd *cobra.Command, args []string) {
		callAndPrint("history_clear", nil)
	},
}

func init() {
	historyCmd.AddCommand(historyGetCmd, historyClearCmd)
}
