package storage

import (
	"errors"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	bolt "go.etcd.io/bbolt"
)

// ErrNotFound is returned when a key has no value in the store.
var ErrNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store. This allows the
// ledger to use any backend (in-memory for tests, persistent for production).
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Close() // A way to gracefully shut down the database connection.
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDB() *MemDB {
	return &MemDB{
		data: make(map[string][]byte),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	// Nothing to close for an in-memory database.
}

// --- LevelDB (persistent) ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.db.Close()
}

// --- BoltDB (persistent, single-file) ---

var boltBucket = []byte("state")

// BoltDB is a persistent key-value store backed by a single bbolt file.
type BoltDB struct {
	db *bolt.DB
}

// NewBoltDB creates or opens a bbolt database at the specified path.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &BoltDB{db: db}, nil
}

// Put inserts or updates a key-value pair.
func (bdb *BoltDB) Put(key []byte, value []byte) error {
	return bdb.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put(key, value)
	})
}

// Get retrieves a value for a given key.
func (bdb *BoltDB) Get(key []byte) ([]byte, error) {
	var value []byte
	err := bdb.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(boltBucket).Get(key)
		if raw == nil {
			return ErrNotFound
		}
		value = append([]byte(nil), raw...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Close closes the database connection.
func (bdb *BoltDB) Close() {
	bdb.db.Close()
}
