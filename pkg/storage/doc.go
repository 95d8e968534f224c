// Package storage implements the Manager's queue/history/running/
// env_state persistence, rehydrated on startup and written synchronously
// after every in-memory mutation (see DESIGN.md's Open Question decision
// on synchronous-before-ACK persistence).
package storage
