package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/cuemby/qserver/pkg/controlchannel"
)

// defaultCallTimeout matches spec.md §5's 2s control-channel deadline.
const defaultCallTimeout = 2 * time.Second

// callAndPrint dials the control channel, issues method with params,
// prints the raw reply as JSON, and exits with the CLI convention's code
// (spec.md §6.1: 0 success, 2 rejected, 4 client-side argument error,
// nonzero-other on timeout).
func callAndPrint(method string, params interface{}) {
	c, err := controlchannel.Dial(controlSocketPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "qserver: dial: %v\n", err)
		os.Exit(controlchannel.ExitLinkFailure)
	}
	defer c.Close()

	reply, err := c.Call(method, params, defaultCallTimeout)
	code := controlchannel.ExitCodeFor(reply, err)
	if err != nil {
		fmt.Fprintf(os.Stderr, "qserver: %s: %v\n", method, err)
		os.Exit(code)
	}

	printed, marshalErr := json.MarshalIndent(json.RawMessage(reply.Raw), "", "  ")
	if marshalErr != nil {
		fmt.Println(string(reply.Raw))
	} else {
		fmt.Println(string(printed))
	}
	os.Exit(code)
}

// argError prints a usage message and exits with the client-side argument
// error code — used before any request is sent to the Manager.
func argError(msg string) {
	fmt.Fprintf(os.Stderr, "qserver: %s\n", msg)
	os.Exit(controlchannel.ExitClientError)
}
