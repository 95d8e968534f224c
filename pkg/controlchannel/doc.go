// Package controlchannel serves the client-facing command surface over a
// Unix domain socket, using pkg/rpc framing and delegating every method to
// a Manager. It is the concrete realization of spec.md §6's "request/reply
// over a socket transport" and carries the CLI exit-code convention.
package controlchannel
