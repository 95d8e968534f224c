package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cuemby/qserver/pkg/queue"
	"github.com/valkey-io/valkey-go"
)

const (
	keyQueue   = "qs:queue"
	keyHistory = "qs:history"
	keyRunning = "qs:running"
	keyEnv     = "qs:env_state"
)

// ValkeyStore implements Store against a Redis-protocol-compatible
// endpoint via valkey-go — the external persistent-state collaborator
// spec.md §6 names, used instead of a hand-rolled Redis client because
// the pack already ships this library for exactly this role.
type ValkeyStore struct {
	client valkey.Client
	ctx    context.Context
}

// NewValkeyStore connects to the given Valkey/Redis addresses.
func NewValkeyStore(addrs []string) (*ValkeyStore, error) {
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: addrs})
	if err != nil {
		return nil, fmt.Errorf("storage: connect valkey: %w", err)
	}
	return &ValkeyStore{client: client, ctx: context.Background()}, nil
}

// SaveQueue overwrites qs:queue with items in order.
func (s *ValkeyStore) SaveQueue(items []*queue.Item) error {
	c := s.client
	if err := c.Do(s.ctx, c.B().Del().Key(keyQueue).Build()).Error(); err != nil {
		return fmt.Errorf("storage: clear qs:queue: %w", err)
	}
	if len(items) == 0 {
		return nil
	}
	encoded, err := encodeAll(items)
	if err != nil {
		return err
	}
	return c.Do(s.ctx, c.B().Rpush().Key(keyQueue).Element(encoded...).Build()).Error()
}

// LoadQueue returns the persisted qs:queue in order.
func (s *ValkeyStore) LoadQueue() ([]*queue.Item, error) {
	c := s.client
	raw, err := c.Do(s.ctx, c.B().Lrange().Key(keyQueue).Start(0).Stop(-1).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("storage: read qs:queue: %w", err)
	}
	items := make([]*queue.Item, 0, len(raw))
	for _, r := range raw {
		var item queue.Item
		if err := json.Unmarshal([]byte(r), &item); err != nil {
			return nil, fmt.Errorf("storage: unmarshal qs:queue entry: %w", err)
		}
		items = append(items, &item)
	}
	return items, nil
}

// AppendHistory appends one entry to qs:history.
func (s *ValkeyStore) AppendHistory(entry *queue.HistoryEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("storage: marshal history entry: %w", err)
	}
	c := s.client
	return c.Do(s.ctx, c.B().Rpush().Key(keyHistory).Element(string(raw)).Build()).Error()
}

// LoadHistory returns the full persisted qs:history in order.
func (s *ValkeyStore) LoadHistory() ([]*queue.HistoryEntry, error) {
	c := s.client
	raw, err := c.Do(s.ctx, c.B().Lrange().Key(keyHistory).Start(0).Stop(-1).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("storage: read qs:history: %w", err)
	}
	entries := make([]*queue.HistoryEntry, 0, len(raw))
	for _, r := range raw {
		var entry queue.HistoryEntry
		if err := json.Unmarshal([]byte(r), &entry); err != nil {
			return nil, fmt.Errorf("storage: unmarshal qs:history entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

// ClearHistory discards qs:history.
func (s *ValkeyStore) ClearHistory() error {
	c := s.client
	return c.Do(s.ctx, c.B().Del().Key(keyHistory).Build()).Error()
}

// SaveRunning persists (or clears, if item is nil) qs:running.
func (s *ValkeyStore) SaveRunning(item *queue.Item) error {
	c := s.client
	if item == nil {
		return c.Do(s.ctx, c.B().Del().Key(keyRunning).Build()).Error()
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("storage: marshal running item: %w", err)
	}
	return c.Do(s.ctx, c.B().Set().Key(keyRunning).Value(string(raw)).Build()).Error()
}

// LoadRunning returns the persisted qs:running item, or nil if unset.
func (s *ValkeyStore) LoadRunning() (*queue.Item, error) {
	c := s.client
	raw, err := c.Do(s.ctx, c.B().Get().Key(keyRunning).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: read qs:running: %w", err)
	}
	var item queue.Item
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return nil, fmt.Errorf("storage: unmarshal qs:running: %w", err)
	}
	return &item, nil
}

// SaveEnvState persists qs:env_state.
func (s *ValkeyStore) SaveEnvState(state EnvState) error {
	c := s.client
	return c.Do(s.ctx, c.B().Set().Key(keyEnv).Value(string(state)).Build()).Error()
}

// LoadEnvState returns qs:env_state, defaulting to EnvClosed if unset.
func (s *ValkeyStore) LoadEnvState() (EnvState, error) {
	c := s.client
	raw, err := c.Do(s.ctx, c.B().Get().Key(keyEnv).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return EnvClosed, nil
		}
		return EnvClosed, fmt.Errorf("storage: read qs:env_state: %w", err)
	}
	return EnvState(raw), nil
}

// Close releases the client's connections.
func (s *ValkeyStore) Close() error {
	s.client.Close()
	return nil
}

func encodeAll(items []*queue.Item) ([]string, error) {
	out := make([]string, len(items))
	for i, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("storage: marshal queue item: %w", err)
		}
		out[i] = string(raw)
	}
	return out, nil
}
