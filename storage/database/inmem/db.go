package inmemdb

import (
	"context"
	"sync"
)

// DB keeps collections in process memory. Everything is lost on exit.
type DB struct {
	mutex  sync.RWMutex
	tables map[string][]byte
}

func Open() (*DB, error) {
	return &DB{tables: make(map[string][]byte)}, nil
}

func (db *DB) Load(_ context.Context, collection string) ([]byte, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	records, ok := db.tables[collection]
	if !ok {
		return []byte("[]"), nil
	}
	out := make([]byte, len(records))
	copy(out, records)
	return out, nil
}

func (db *DB) Save(_ context.Context, collection string, records []byte) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	stored := make([]byte, len(records))
	copy(stored, records)
	db.tables[collection] = stored
	return nil
}

func (db *DB) Close() error {
	return nil
}
