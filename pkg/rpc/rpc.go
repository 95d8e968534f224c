// Package rpc implements the length-prefixed JSON framing used for both
// the Watchdog-Manager and Manager-Worker links, and for the Manager's
// external control channel. Each frame is a 4-byte big-endian length
// prefix followed by a JSON-encoded Envelope — the same tagged-envelope
// idea as the teacher's Raft Command (pkg/manager/fsm.go), generalized
// into a transport instead of a log-entry format.
package rpc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame's JSON body, guarding against a
// corrupt or adversarial length prefix turning into an unbounded read.
const MaxFrameSize = 64 << 20 // 64 MiB

// Kind identifies what an Envelope carries.
type Kind string

const (
	KindRequest      Kind = "request"
	KindReply        Kind = "reply"
	KindNotification Kind = "notification"
)

// Envelope is the wire shape of every frame exchanged over a Link.
type Envelope struct {
	Kind   Kind            `json:"kind"`
	ID     uint64          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Reply  json.RawMessage `json:"reply,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// WriteFrame encodes v as a length-prefixed JSON frame and writes it to w.
func WriteFrame(w io.Writer, v *Envelope) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("rpc: marshal envelope: %w", err)
	}
	if len(body) > MaxFrameSize {
		return fmt.Errorf("rpc: frame too large: %d bytes", len(body))
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))

	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("rpc: write length prefix: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("rpc: write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed JSON frame from r.
func ReadFrame(r io.Reader) (*Envelope, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(prefix[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("rpc: frame too large: %d bytes", n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("rpc: read frame body: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("rpc: unmarshal envelope: %w", err)
	}
	return &env, nil
}
