package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/cuemby/qserver/pkg/controlchannel"
	"github.com/spf13/cobra"
)

// events exposes the Manager's event broker over the control channel via
// events_get, a long-poll endpoint: each call returns everything new since
// the since-seq it was given, plus the next_seq to pass on the following
// call.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect manager/worker lifecycle events",
}

var eventsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Fetch events since a sequence number",
	Run: func(cmd *cobra.Command, args []string) {
		since, _ := cmd.Flags().GetInt64("since-seq")
		follow, _ := cmd.Flags().GetBool("follow")
		interval, _ := cmd.Flags().GetDuration("interval")

		if !follow {
			callAndPrint("events_get", map[string]interface{}{"since_seq": since})
			return
		}

		for {
			next, ok := callEventsGetOnce(since)
			if !ok {
				os.Exit(controlchannel.ExitLinkFailure)
			}
			since = next
			time.Sleep(interval)
		}
	},
}

// callEventsGetOnce issues one events_get call, prints the reply, and
// returns its next_seq for the --follow loop's next iteration. Unlike
// callAndPrint it never exits, since a follow loop needs to keep running
// after a successful call.
func callEventsGetOnce(sinceSeq int64) (int64, bool) {
	c, err := controlchannel.Dial(controlSocketPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "qserver: dial: %v\n", err)
		return 0, false
	}
	defer c.Close()

	reply, err := c.Call("events_get", map[string]interface{}{"since_seq": sinceSeq}, defaultCallTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "qserver: events_get: %v\n", err)
		return 0, false
	}

	printed, marshalErr := json.MarshalIndent(json.RawMessage(reply.Raw), "", "  ")
	if marshalErr != nil {
		fmt.Println(string(reply.Raw))
	} else {
		fmt.Println(string(printed))
	}

	var parsed struct {
		NextSeq int64 `json:"next_seq"`
	}
	if err := json.Unmarshal(reply.Raw, &parsed); err != nil {
		return sinceSeq, true
	}
	return parsed.NextSeq, true
}

func init() {
	eventsGetCmd.Flags().Int64("since-seq", 0, "Only return events after this sequence number")
	eventsGetCmd.Flags().Bool("follow", false, "Keep polling for new events")
	eventsGetCmd.Flags().Duration("interval", time.Second, "Poll interval when --follow is set")
	eventsCmd.AddCommand(eventsGetCmd)
	rootCmd.AddCommand(eventsCmd)
}
