package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

const (
	// Bucket holds every station document in the bolt file.
	Bucket = "station"
	// StateKey is the queue document's key within Bucket.
	StateKey = "score_queue"

	// Another process holding the file fails Open instead of hanging.
	defaultOpenTimeout = time.Second
)

// OpenBolt opens (or creates) the station's bolt file with its bucket.
func OpenBolt(path string) (*bbolt.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create station directory %s: %w", dir, err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: defaultOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt file %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(Bucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return db, nil
}

// BoltStorage keeps the queue document in a bolt file. Each Save is one
// fsynced transaction.
type BoltStorage struct {
	db *bbolt.DB
}

// NewBoltStorage stores the queue in db, which must have been opened with OpenBolt.
func NewBoltStorage(db *bbolt.DB) *BoltStorage {
	return &BoltStorage{db: db}
}

// Load reads the queue document. A missing document is an empty queue.
func (s *BoltStorage) Load(_ context.Context) (State, error) {
	var st State
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(Bucket))
		if b == nil {
			return nil
		}
		data := b.Get([]byte(StateKey))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &st)
	})
	if err != nil {
		return State{}, fmt.Errorf("load %s: %w", StateKey, err)
	}
	return st, nil
}

// Save replaces the queue document.
func (s *BoltStorage) Save(_ context.Context, st State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal queue: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(Bucket))
		if b == nil {
			return fmt.Errorf("bucket %s does not exist", Bucket)
		}
		return b.Put([]byte(StateKey), data)
	})
}

// MemoryStorage keeps the queue document in memory. It round-trips through
// JSON so tests see exactly what a restart would.
type MemoryStorage struct {
	mu   sync.Mutex
	data []byte
	err  error
}

// NewMemoryStorage returns an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// FailWith makes every later Save fail with err; nil restores normal behavior.
func (s *MemoryStorage) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Load implements Storage.
func (s *MemoryStorage) Load(_ context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st State
	if s.data == nil {
		return st, nil
	}
	if err := json.Unmarshal(s.data, &st); err != nil {
		return State{}, err
	}
	return st, nil
}

// Save implements Storage.
func (s *MemoryStorage) Save(_ context.Context, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	s.data = data
	return nil
}
