package controlchannel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cuemby/qserver/pkg/rpc"
)

// CLI exit codes per spec.md §6. ExitClientError (4) is for the CLI layer's
// own argument validation, before a request is ever sent — ExitCodeFor
// never returns it, since by the time Call runs the request already left
// the client.
const (
	ExitSuccess     = 0
	ExitRejected    = 2
	ExitClientError = 4
	ExitTimeout     = 5
	ExitLinkFailure = 1
)

// Client is a thin wrapper around one rpc.Link dialed to a control-channel
// Unix domain socket.
type Client struct {
	conn net.Conn
	link *rpc.Link
}

// Dial connects to socketPath and starts the link.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("controlchannel: dial %s: %w", socketPath, err)
	}
	link := rpc.NewLink(conn, nil, nil)
	link.Start()
	return &Client{conn: conn, link: link}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.link.Close()
}

// Reply is the common {success, msg, ...} envelope every control-channel
// command replies with.
type Reply struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

// Call issues method with params and bounds the round trip by timeout.
// It returns the parsed {success, msg} envelope alongside the raw reply,
// so callers needing extra fields (queue_get's items, history_get's
// entries, ...) can re-unmarshal Raw themselves.
func (c *Client) Call(method string, params interface{}, timeout time.Duration) (*Reply, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	raw, err := c.link.Call(ctx, method, params)
	if err != nil {
		return nil, err
	}

	var reply Reply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("controlchannel: unmarshal reply: %w", err)
	}
	reply.Raw = raw
	return &reply, nil
}

// ExitCodeFor maps a Call outcome to the CLI exit-code convention.
func ExitCodeFor(reply *Reply, err error) int {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ExitTimeout
		}
		return ExitLinkFailure
	}
	if reply == nil || !reply.Success {
		return ExitRejected
	}
	return ExitSuccess
}
