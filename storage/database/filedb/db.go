package filedb

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// DB stores each collection as `<dir>/<collection>.json`.
// Saves write a temp file and rename it over the previous one.
type DB struct {
	dir   string
	mutex sync.Mutex
}

func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating %s", dir)
	}
	return &DB{dir: dir}, nil
}

func (db *DB) path(collection string) string {
	return filepath.Join(db.dir, collection+".json")
}

func (db *DB) Load(_ context.Context, collection string) ([]byte, error) {
	records, err := os.ReadFile(db.path(collection))
	if os.IsNotExist(err) {
		return []byte("[]"), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", collection)
	}
	return records, nil
}

func (db *DB) Save(ctx context.Context, collection string, records []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db.mutex.Lock()
	defer db.mutex.Unlock()

	tmp, err := os.CreateTemp(db.dir, collection+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "saving %s", collection)
	}
	defer func() { _ = os.Remove(tmp.Name()) }() // no-op once renamed

	if _, err = tmp.Write(records); err == nil {
		err = tmp.Sync()
	}
	if cErr := tmp.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		return errors.Wrapf(err, "saving %s", collection)
	}
	if err = os.Rename(tmp.Name(), db.path(collection)); err != nil {
		return errors.Wrapf(err, "saving %s", collection)
	}
	return nil
}

func (db *DB) Close() error {
	return nil
}
