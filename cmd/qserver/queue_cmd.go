package main

import (
	"encoding/json"

	"github.com/cuemby/qserver/pkg/queue"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manipulate the plan queue",
}

var queueAddCmd = &cobra.Command{
	Use:   "add <plan-name>",
	Short: "Add a plan to the queue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		argsJSON, _ := cmd.Flags().GetString("args")
		kwargsJSON, _ := cmd.Flags().GetString("kwargs")
		userGroup, _ := cmd.Flags().GetString("user-group")

		item := &queue.Item{Name: args[0], UserGroup: userGroup}
		if argsJSON != "" {
			if err := json.Unmarshal([]byte(argsJSON), &item.Args); err != nil {
				argError("--args must be a JSON array: " + err.Error())
			}
		}
		if kwargsJSON != "" {
			if err := json.Unmarshal([]byte(kwargsJSON), &item.Kwargs); err != nil {
				argError("--kwargs must be a JSON object: " + err.Error())
			}
		}

		callAndPrint("queue_item_add", map[string]interface{}{
			"item":     item,
			"position": positionFromFlags(cmd),
		})
	},
}

var queueGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Get a single queued item by uid or index",
	Run: func(cmd *cobra.Command, args []string) {
		callAndPrint("queue_item_get", refFromFlags(cmd))
	},
}

var queueRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove a queued item by uid or index",
	Run: func(cmd *cobra.Command, args []string) {
		callAndPrint("queue_plan_remove", refFromFlags(cmd))
	},
}

var queueMoveCmd = &cobra.Command{
	Use:   "move",
	Short: "Move a queued item to a new position",
	Run: func(cmd *cobra.Command, args []string) {
		srcUID, _ := cmd.Flags().GetString("uid")
		srcIndex, _ := cmd.Flags().GetInt("index")
		dstUID, _ := cmd.Flags().GetString("dst-uid")
		dstIndex, _ := cmd.Flags().GetInt("dst-index")
		before, _ := cmd.Flags().GetBool("before")

		src := map[string]interface{}{}
		if srcUID != "" {
			src["uid"] = srcUID
		} else {
			src["index"] = srcIndex
		}

		dst := map[string]interface{}{"before": before}
		if dstUID != "" {
			dst["uid"] = dstUID
		} else {
			dst["index"] = dstIndex
		}

		callAndPrint("queue_plan_move", map[string]interface{}{"src": src, "dst": dst})
	},
}

var queueGetAllCmd = &cobra.Command{
	Use:   "get-all",
	Short: "List the entire queue plus the currently running item",
	Run: func(cmd *cobra.Command, args []string) {
		callAndPrint("queue_get", nil)
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the queue",
	Run: func(cmd *cobra.Command, args []string) {
		callAndPrint("queue_clear", nil)
	},
}

var queueStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start executing the queue",
	Run: func(cmd *cobra.Command, args []string) {
		callAndPrint("queue_start", nil)
	},
}

var queueStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the queue loop after the current plan finishes",
	Run: func(cmd *cobra.Command, args []string) {
		callAndPrint("queue_stop", nil)
	},
}

var queueStopCancelCmd = &cobra.Command{
	Use:   "stop-cancel",
	Short: "Cancel a pending queue_stop",
	Run: func(cmd *cobra.Command, args []string) {
		callAndPrint("queue_stop_cancel", nil)
	},
}

func positionFromFlags(cmd *cobra.Command) map[string]interface{} {
	front, _ := cmd.Flags().GetBool("front")
	back, _ := cmd.Flags().GetBool("back")
	index, _ := cmd.Flags().GetInt("position-index")
	beforeUID, _ := cmd.Flags().GetString("before-uid")
	afterUID, _ := cmd.Flags().GetString("after-uid")

	switch {
	case front:
		return map[string]interface{}{"front": true}
	case beforeUID != "":
		return map[string]interface{}{"before_uid": beforeUID}
	case afterUID != "":
		return map[string]interface{}{"after_uid": afterUID}
	case cmd.Flags().Changed("position-index"):
		return map[string]interface{}{"index": index}
	case back:
		fallthrough
	default:
		return map[string]interface{}{"back": true}
	}
}

func refFromFlags(cmd *cobra.Command) map[string]interface{} {
	uid, _ := cmd.Flags().GetString("uid")
	index, _ := cmd.Flags().GetInt("index")
	if uid != "" {
		return map[string]interface{}{"uid": uid}
	}
	return map[string]interface{}{"index": index}
}

func init() {
	queueAddCmd.Flags().String("args", "", "JSON array of positional args")
	queueAddCmd.Flags().String("kwargs", "", "JSON object of keyword args")
	queueAddCmd.Flags().String("user-group", "", "Submitting group, checked by the permission collaborator")
	queueAddCmd.Flags().Bool("front", false, "Insert at the front of the queue")
	queueAddCmd.Flags().Bool("back", true, "Insert at the back of the queue (default)")
	queueAddCmd.Flags().Int("position-index", 0, "Insert at this index")
	queueAddCmd.Flags().String("before-uid", "", "Insert before this uid")
	queueAddCmd.Flags().String("after-uid", "", "Insert after this uid")

	for _, c := range []*cobra.Command{queueGetCmd, queueRemoveCmd} {
		c.Flags().String("uid", "", "Plan uid")
		c.Flags().Int("index", -1, "Queue index")
	}

	queueMoveCmd.Flags().String("uid", "", "Source plan uid")
	queueMoveCmd.Flags().Int("index", 0, "Source queue index")
	queueMoveCmd.Flags().String("dst-uid", "", "Destination plan uid")
	queueMoveCmd.Flags().Int("dst-index", 0, "Destination queue index")
	queueMoveCmd.Flags().Bool("before", false, "Place before dst-uid rather than after")

	queueCmd.AddCommand(
		queueAddCmd, queueGetCmd, queueRemoveCmd, queueMoveCmd,
		queueGetAllCmd, queueClearCmd, queueStartCmd, queueStopCmd, queueStopCancelCmd,
	)
}
