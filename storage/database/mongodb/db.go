package mongodb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const collectionsName = "collections"

// DB stores each collection as one document `{_id: <collection>, records: [...]}`.
type DB struct {
	client  *mongo.Client
	coll    *mongo.Collection
	timeout time.Duration
}

func Open(ctx context.Context, uri, database string, timeout time.Duration) (*DB, error) {
	connCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(timeout).
		SetConnectTimeout(timeout)
	client, err := mongo.Connect(connCtx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongo")
	}
	if err = client.Ping(connCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "pinging mongo")
	}
	return &DB{
		client:  client,
		coll:    client.Database(database).Collection(collectionsName),
		timeout: timeout,
	}, nil
}

type document struct {
	ID      string        `bson:"_id"`
	Records bson.RawValue `bson:"records"`
}

func (db *DB) Load(ctx context.Context, collection string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()

	var doc document
	err := db.coll.FindOne(ctx, bson.M{"_id": collection}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return []byte("[]"), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", collection)
	}

	// relaxed extended JSON keeps plain JSON values as they were saved
	ext, err := bson.MarshalExtJSON(bson.D{{Key: "records", Value: doc.Records}}, false, false)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", collection)
	}
	var out struct {
		Records json.RawMessage `json:"records"`
	}
	if err = json.Unmarshal(ext, &out); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", collection)
	}
	return out.Records, nil
}

func (db *DB) Save(ctx context.Context, collection string, records []byte) error {
	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()

	wrapped := make([]byte, 0, len(records)+12)
	wrapped = append(wrapped, `{"records":`...)
	wrapped = append(wrapped, records...)
	wrapped = append(wrapped, '}')

	var body bson.D
	if err := bson.UnmarshalExtJSON(wrapped, false, &body); err != nil {
		return errors.Wrapf(err, "encoding %s", collection)
	}
	doc := append(bson.D{{Key: "_id", Value: collection}}, body...)

	_, err := db.coll.ReplaceOne(ctx, bson.M{"_id": collection}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrapf(err, "saving %s", collection)
	}
	return nil
}

func (db *DB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), db.timeout)
	defer cancel()
	return db.client.Disconnect(ctx)
}
