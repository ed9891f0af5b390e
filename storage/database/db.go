package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-results/core"
)

// Collections
const (
	Results         = "results"
	CompilationJobs = "compilationJobs"
	Payments        = "payments"
	FeeStructures   = "feeStructures"
)

var Collections = []string{Results, CompilationJobs, Payments, FeeStructures}

// Adapter persists whole collections as JSON arrays.
type Adapter interface {
	// Load returns the collection, `[]` when it was never saved.
	Load(ctx context.Context, collection string) ([]byte, error)
	// Save atomically replaces the collection.
	Save(ctx context.Context, collection string, records []byte) error
	Close() error
}

var emptyCollection = []byte("[]")

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	name       TEXT PRIMARY KEY,
	records    JSONB NOT NULL DEFAULT '[]',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres stores each collection as one JSONB row of the `collections` table.
type Postgres struct {
	db *sqlx.DB
}

var _ Adapter = (*Postgres)(nil)

// OpenPostgres connects to conf.Storage.URL, waits for the database and creates the schema.
func OpenPostgres(ctx context.Context, conf *core.Config) (*Postgres, error) {
	db, err := sqlx.Open("postgres", conf.Storage.URL)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "pinging database")
	}
	if err = Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(ctx context.Context, db *sqlx.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.PingContext(ctx)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "DB ping cancelled")
		case <-time.After(time.Duration(attempts) * 100 * time.Millisecond):
		}
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}

func (p *Postgres) Load(ctx context.Context, collection string) ([]byte, error) {
	var records []byte
	err := p.db.GetContext(ctx, &records, `SELECT records FROM collections WHERE name = $1`, collection)
	if errors.Is(err, sql.ErrNoRows) {
		return emptyCollection, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", collection)
	}
	return records, nil
}

func (p *Postgres) Save(ctx context.Context, collection string, records []byte) error {
	q := `INSERT INTO collections (name, records, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET records = EXCLUDED.records, updated_at = EXCLUDED.updated_at`
	if _, err := p.db.ExecContext(ctx, q, collection, string(records), core.Now()); err != nil {
		return errors.Wrapf(err, "saving %s", collection)
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
