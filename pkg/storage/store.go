// Package storage persists queue, history, running-plan, and environment
// state so a restarted Manager can rehydrate instead of starting cold.
// Two backends are provided: BoltStore for a single-host embedded file,
// and ValkeyStore for the Redis-protocol-compatible external store
// spec.md §6 describes as a collaborator.
package storage

import "github.com/cuemby/qserver/pkg/queue"

// EnvState mirrors the Manager's environment-state enum, stored as a
// plain string under the qs:env_state key.
type EnvState string

const (
	EnvClosed     EnvState = "closed"
	EnvOpening    EnvState = "opening"
	EnvOpen       EnvState = "open"
	EnvClosing    EnvState = "closing"
	EnvDestroying EnvState = "destroying"
)

// Store defines the persistence seam the Manager writes through after
// every mutation, and reads from once at startup to rehydrate.
type Store interface {
	// SaveQueue overwrites the persisted queue with items, in order.
	SaveQueue(items []*queue.Item) error
	// LoadQueue returns the persisted queue in order, or an empty slice
	// if nothing has been saved yet.
	LoadQueue() ([]*queue.Item, error)

	// AppendHistory appends one entry to the persisted history.
	AppendHistory(entry *queue.HistoryEntry) error
	// LoadHistory returns the full persisted history in order.
	LoadHistory() ([]*queue.HistoryEntry, error)
	// ClearHistory discards all persisted history entries.
	ClearHistory() error

	// SaveRunning persists the currently-executing item, or clears it
	// when item is nil.
	SaveRunning(item *queue.Item) error
	// LoadRunning returns the persisted running item, or nil if none.
	LoadRunning() (*queue.Item, error)

	// SaveEnvState persists the environment state string.
	SaveEnvState(state EnvState) error
	// LoadEnvState returns the persisted environment state, or
	// EnvClosed if nothing has been saved yet.
	LoadEnvState() (EnvState, error)

	// Close releases any resources the store holds open.
	Close() error
}
