// Package mongo implements the store interface for MongoDB. Each table is a collection of the database and records
// are documents whose _id is the rendered key.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mgo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/tarancss/mcw/lib/store"
)

// DefaultDatabase is used when the connection uri does not name a database.
const DefaultDatabase = "mcw"

// Mongo implements a connection to a MongoDB database.
type Mongo struct {
	c  *mgo.Client
	db *mgo.Database
}

// New returns a Mongo client connection to the specified MongoDB database uri. The database is taken from the uri
// path, ie. mongodb://localhost/wallets, or DefaultDatabase.
func New(uri string) (*Mongo, error) {
	opts := options.Client().ApplyURI(uri)
	c, err := mgo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongo DB in %s: %w", uri, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:gomnd // 5 seconds timeout
	defer cancel()

	if err = c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("error connecting to mongo DB: %w", err)
	}

	name := DefaultDatabase
	if cs, errCS := connstring.Parse(uri); errCS == nil && cs.Database != "" {
		name = cs.Database
	}
	return &Mongo{c: c, db: c.Database(name)}, nil
}

// Close will close the database connection. Must be called at termination time.
func (m *Mongo) Close(ctx context.Context) error {
	return m.c.Disconnect(ctx)
}

// Table implements store.DB.
func (m *Mongo) Table(name string) store.Table {
	return &table{col: m.db.Collection(name)}
}

type table struct {
	col *mgo.Collection
}

func id(k store.Key) (bson.M, error) {
	if k.IsZero() {
		return nil, store.ErrEmptyKey
	}
	return bson.M{"_id": k.String()}, nil
}

func toRecord(m bson.M) store.Record {
	delete(m, "_id")
	return store.Record(m)
}

func (t *table) Get(ctx context.Context, k store.Key) (store.Record, error) {
	filter, err := id(k)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	err = t.col.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mgo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: get %s: %w", k, err)
	}
	return toRecord(doc), nil
}

func (t *table) GetAll(ctx context.Context) ([]store.Record, error) {
	cur, err := t.col.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("mongo: find: %w", err)
	}
	defer cur.Close(ctx)

	var all []store.Record
	for cur.Next(ctx) {
		var doc bson.M
		if err = cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo: decoding: %w", err)
		}
		all = append(all, toRecord(doc))
	}
	return all, cur.Err()
}

func (t *table) Put(ctx context.Context, k store.Key, r store.Record) error {
	filter, err := id(k)
	if err != nil {
		return err
	}
	_, err = t.col.ReplaceOne(ctx, filter, bson.M(r), options.Replace().SetUpsert(true))
	return err
}

func (t *table) Update(ctx context.Context, k store.Key, r store.Record) error {
	filter, err := id(k)
	if err != nil {
		return err
	}
	res, err := t.col.UpdateOne(ctx, filter, bson.D{{Key: "$set", Value: bson.M(r)}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrDataNotFound
	}
	return nil
}

func (t *table) Delete(ctx context.Context, k store.Key) error {
	filter, err := id(k)
	if err != nil {
		return err
	}
	_, err = t.col.DeleteOne(ctx, filter)
	return err
}

func (t *table) BatchPut(ctx context.Context, entries []store.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	models := make([]mgo.WriteModel, 0, len(entries))
	for _, e := range entries {
		filter, err := id(e.Key)
		if err != nil {
			return err
		}
		models = append(models, mgo.NewReplaceOneModel().SetFilter(filter).SetReplacement(bson.M(e.Record)).
			SetUpsert(true))
	}
	_, err := t.col.BulkWrite(ctx, models)
	return err
}

func (t *table) BatchDelete(ctx context.Context, keys []store.Key) error {
	if len(keys) == 0 {
		return nil
	}
	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = k.String()
	}
	_, err := t.col.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	return err
}

func (t *table) BatchUpdate(ctx context.Context, entries []store.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	models := make([]mgo.WriteModel, 0, len(entries))
	for _, e := range entries {
		filter, err := id(e.Key)
		if err != nil {
			return err
		}
		models = append(models, mgo.NewUpdateOneModel().SetFilter(filter).
			SetUpdate(bson.D{{Key: "$set", Value: bson.M(e.Record)}}))
	}
	res, err := t.col.BulkWrite(ctx, models)
	if err != nil {
		return err
	}
	if res.MatchedCount < int64(len(entries)) {
		return store.ErrDataNotFound
	}
	return nil
}
