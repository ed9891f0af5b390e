package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-results/core"
	"github.com/trezcool/masomo-results/storage/database"
	"github.com/trezcool/masomo-results/storage/database/filedb"
	inmemdb "github.com/trezcool/masomo-results/storage/database/inmem"
	"github.com/trezcool/masomo-results/storage/database/mongodb"
)

// DB funnels every mutation through one writer lock, so that each Mutate* closure sees and
// replaces a whole collection without interleaving with another one.
type DB struct {
	adapter database.Adapter
	mu      sync.RWMutex
}

func NewDB(adapter database.Adapter) *DB {
	return &DB{adapter: adapter}
}

// Open opens the adapter of conf.Storage.Engine.
func Open(ctx context.Context, conf *core.Config) (*DB, error) {
	var (
		adapter database.Adapter
		err     error
	)
	switch conf.Storage.Engine {
	case core.StorageMemory:
		adapter, err = inmemdb.Open()
	case core.StorageFile:
		adapter, err = filedb.Open(conf.Storage.Dir)
	case core.StoragePostgres:
		adapter, err = database.OpenPostgres(ctx, conf)
	case core.StorageMongo:
		adapter, err = mongodb.Open(ctx, conf.Storage.URL, conf.Storage.Database, conf.Storage.Timeout)
	default:
		return nil, errors.Errorf("unknown storage engine %q", conf.Storage.Engine)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s storage", conf.Storage.Engine)
	}
	return NewDB(adapter), nil
}

func (db *DB) Close() error {
	return db.adapter.Close()
}

func load[T any](ctx context.Context, adapter database.Adapter, collection string) ([]T, error) {
	raw, err := adapter.Load(ctx, collection)
	if err != nil {
		return nil, err
	}
	records := make([]T, 0)
	if len(raw) == 0 {
		return records, nil
	}
	if err = json.Unmarshal(raw, &records); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", collection)
	}
	return records, nil
}

// read loads a collection under the read lock.
func read[T any](ctx context.Context, db *DB, collection string) ([]T, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return load[T](ctx, db.adapter, collection)
}

// mutate loads a collection, hands it to fn and saves fn's output, all under the write lock.
// Nothing is saved when fn fails; fn's error is returned as is.
func mutate[T any](ctx context.Context, db *DB, collection string, fn func([]T) ([]T, error)) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	records, err := load[T](ctx, db.adapter, collection)
	if err != nil {
		return err
	}
	records, err = fn(records)
	if err != nil {
		return err
	}
	if records == nil {
		records = make([]T, 0)
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", collection)
	}
	return db.adapter.Save(ctx, collection, raw)
}
