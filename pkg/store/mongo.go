// Package store provides the MongoDB-backed stored-function repository.
//
// Stored functions live in a per-database collection (system.js by
// convention): one document per function, the function name in _id and
// the function body in value. The package implements
// scripting.FunctionStore for reads and bumps the process-wide
// stored-function version on every write, so pooled scopes resynchronize
// on their next use.
package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/acruikshank/scriptpool/pkg/config"
	"github.com/acruikshank/scriptpool/pkg/errors"
	"github.com/acruikshank/scriptpool/pkg/logger"
	"github.com/acruikshank/scriptpool/pkg/scripting"
)

// MongoStore reads and writes stored functions in MongoDB.
type MongoStore struct {
	client     *mongo.Client
	collection string
	log        *zap.Logger
}

// storedDoc is the wire shape of one stored function.
type storedDoc struct {
	ID    interface{}   `bson:"_id"`
	Value bson.RawValue `bson:"value"`
}

// Connect opens a client for the configured deployment and verifies it
// with a ping.
func Connect(ctx context.Context, cfg config.StoreConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "store.uri is required")
	}

	connectCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "connecting to mongodb")
	}
	if err := client.Ping(connectCtx, readpref.SecondaryPreferred()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "pinging mongodb")
	}

	collection := cfg.Collection
	if collection == "" {
		collection = "system.js"
	}

	return &MongoStore{
		client:     client,
		collection: collection,
		log:        logger.With(zap.String("component", "store")),
	}, nil
}

// StoredFunctions implements scripting.FunctionStore. The cursor runs
// with secondary-preferred reads; any cursor failure aborts the fetch.
func (s *MongoStore) StoredFunctions(ctx context.Context, db string) ([]scripting.StoredFunction, error) {
	coll := s.client.Database(db).Collection(s.collection)

	cursor, err := coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "querying stored functions").
			WithDetail("database", db)
	}
	defer cursor.Close(ctx)

	var funcs []scripting.StoredFunction
	for cursor.Next(ctx) {
		var doc storedDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "decoding stored function")
		}

		name, ok := doc.ID.(string)
		if !ok {
			return nil, errors.New(errors.ErrorTypeData, "stored function name has to be a string").
				WithDetail("_id", doc.ID)
		}
		if doc.Value.Type == 0 {
			return nil, errors.New(errors.ErrorTypeData, "stored function value has to be set").
				WithDetail("name", name)
		}

		funcs = append(funcs, scripting.StoredFunction{Name: name, Value: doc.Value})
	}
	if err := cursor.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "iterating stored functions")
	}

	return funcs, nil
}

// SaveFunction upserts one stored function and bumps the process-wide
// stored-function version.
func (s *MongoStore) SaveFunction(ctx context.Context, db, name string, value interface{}) error {
	coll := s.client.Database(db).Collection(s.collection)

	_, err := coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: name}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "value", Value: value}}}},
		options.Update().SetUpsert(true))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "saving stored function").
			WithDetail("name", name)
	}

	scripting.StoredFuncMod()
	s.log.Debug("stored function saved",
		zap.String("database", db), zap.String("name", name))
	return nil
}

// RemoveFunction deletes one stored function and bumps the
// process-wide stored-function version.
func (s *MongoStore) RemoveFunction(ctx context.Context, db, name string) error {
	coll := s.client.Database(db).Collection(s.collection)

	if _, err := coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: name}}); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "removing stored function").
			WithDetail("name", name)
	}

	scripting.StoredFuncMod()
	return nil
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
