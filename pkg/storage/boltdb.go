package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cuemby/qserver/pkg/queue"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketQueue   = []byte("qs:queue")
	bucketHistory = []byte("qs:history")
	bucketRunning = []byte("qs:running")
	bucketMeta    = []byte("qs:meta")

	keyRunningItem = []byte("item")
	keyEnvState    = []byte("env_state")
)

// BoltStore implements Store on a local bbolt file, the single-host
// fallback used when no Valkey/Redis endpoint is configured.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) a qserver.db file under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "qserver.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketQueue, bucketHistory, bucketRunning, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// SaveQueue overwrites the queue bucket with items in order.
func (s *BoltStore) SaveQueue(items []*queue.Item) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketQueue)
		if err := deleteAll(b); err != nil {
			return err
		}
		for i, item := range items {
			raw, err := json.Marshal(item)
			if err != nil {
				return fmt.Errorf("storage: marshal queue item: %w", err)
			}
			if err := b.Put(orderedKey(i), raw); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadQueue returns the persisted queue in order.
func (s *BoltStore) LoadQueue() ([]*queue.Item, error) {
	var items []*queue.Item
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketQueue)
		return b.ForEach(func(_, v []byte) error {
			var item queue.Item
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("storage: unmarshal queue item: %w", err)
			}
			items = append(items, &item)
			return nil
		})
	})
	return items, err
}

// AppendHistory appends one entry, keyed by insertion order.
func (s *BoltStore) AppendHistory(entry *queue.HistoryEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistory)
		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("storage: marshal history entry: %w", err)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(orderedKey(int(seq)), raw)
	})
}

// LoadHistory returns the full persisted history in order.
func (s *BoltStore) LoadHistory() ([]*queue.HistoryEntry, error) {
	var entries []*queue.HistoryEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistory)
		return b.ForEach(func(_, v []byte) error {
			var entry queue.HistoryEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("storage: unmarshal history entry: %w", err)
			}
			entries = append(entries, &entry)
			return nil
		})
	})
	return entries, err
}

// ClearHistory discards all persisted history entries.
func (s *BoltStore) ClearHistory() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketHistory); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket(bucketHistory)
		return err
	})
}

// SaveRunning persists (or, if item is nil, clears) the running item.
func (s *BoltStore) SaveRunning(item *queue.Item) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRunning)
		if item == nil {
			return b.Delete(keyRunningItem)
		}
		raw, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("storage: marshal running item: %w", err)
		}
		return b.Put(keyRunningItem, raw)
	})
}

// LoadRunning returns the persisted running item, or nil if none.
func (s *BoltStore) LoadRunning() (*queue.Item, error) {
	var item *queue.Item
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketRunning).Get(keyRunningItem)
		if raw == nil {
			return nil
		}
		item = &queue.Item{}
		return json.Unmarshal(raw, item)
	})
	return item, err
}

// SaveEnvState persists the environment state string.
func (s *BoltStore) SaveEnvState(state EnvState) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyEnvState, []byte(state))
	})
}

// LoadEnvState returns the persisted environment state, defaulting to
// EnvClosed if nothing has been saved.
func (s *BoltStore) LoadEnvState() (EnvState, error) {
	var state EnvState = EnvClosed
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketMeta).Get(keyEnvState)
		if raw != nil {
			state = EnvState(raw)
		}
		return nil
	})
	return state, err
}

// Close releases the underlying bbolt file handle.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func deleteAll(b *bolt.Bucket) error {
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		if err := c.Delete(); err != nil {
			return err
		}
	}
	return nil
}

func orderedKey(i int) []byte {
	return []byte(fmt.Sprintf("%020d", i))
}
