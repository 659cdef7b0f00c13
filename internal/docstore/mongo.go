package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

const mongoClaimsCollection = "unique_keys"

// MongoStore keeps each collection in its own MongoDB collection with the
// record id as _id. Unique claims are guard documents in unique_keys whose
// _id is the claimed (collection, field, value).
type MongoStore struct {
	db     *mongo.Database
	logger *logging.Logger
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore wraps a connected database handle.
func NewMongoStore(db *mongo.Database, logger *logging.Logger) *MongoStore {
	if db == nil {
		panic("docstore: mongo database required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &MongoStore{db: db, logger: logger}
}

// ConnectMongo dials uri, pings the server and returns the named database.
func ConnectMongo(ctx context.Context, uri, database string) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("docstore: connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("docstore: ping mongo: %w", err)
	}
	return client.Database(database), nil
}

func (s *MongoStore) Get(ctx context.Context, collection, id string) ([]byte, error) {
	var doc bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: find %s/%s: %w", collection, id, err)
	}
	return bsonToJSON(doc)
}

// Insert writes the document. With unique claims the guard documents and
// the record are written in one transaction, so the deployment must be a
// replica set (a single node one is enough).
func (s *MongoStore) Insert(ctx context.Context, collection, id string, body []byte, opts ...InsertOption) error {
	doc, err := jsonToBSON(body)
	if err != nil {
		return fmt.Errorf("docstore: encode %s/%s: %w", collection, id, err)
	}
	doc["_id"] = id

	o := applyInsertOptions(opts)
	if len(o.unique) == 0 {
		_, err := s.db.Collection(collection).InsertOne(ctx, doc)
		return mongoInsertError(err, collection, id)
	}

	guards := make([]any, len(o.unique))
	for i, claim := range o.unique {
		guards[i] = bson.M{"_id": uniqueKey(collection, claim), "documentId": id}
	}
	return s.db.Client().UseSession(ctx, func(sc mongo.SessionContext) error {
		_, err := sc.WithTransaction(sc, func(tx mongo.SessionContext) (any, error) {
			if _, err := s.db.Collection(mongoClaimsCollection).InsertMany(tx, guards); err != nil {
				return nil, mongoInsertError(err, mongoClaimsCollection, id)
			}
			if _, err := s.db.Collection(collection).InsertOne(tx, doc); err != nil {
				return nil, mongoInsertError(err, collection, id)
			}
			return nil, nil
		})
		return err
	})
}

// mongoInsertError maps duplicate keys to ErrConflict.
func mongoInsertError(err error, collection, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConflict):
		return err
	case mongo.IsDuplicateKeyError(err):
		return ErrConflict
	default:
		return fmt.Errorf("docstore: insert %s/%s: %w", collection, id, err)
	}
}

func (s *MongoStore) Update(ctx context.Context, collection, id string, patch Patch) error {
	filter := bson.M{"_id": id}
	for _, cond := range patch.Expect {
		filter[cond.Field] = cond.Value
	}
	// Round-trip through JSON so values are stored exactly as Insert would
	// store them (times as strings, not BSON dates).
	raw, err := json.Marshal(patch.Set)
	if err != nil {
		return fmt.Errorf("docstore: encode patch: %w", err)
	}
	set, err := jsonToBSON(raw)
	if err != nil {
		return fmt.Errorf("docstore: encode patch: %w", err)
	}
	res, err := s.db.Collection(collection).UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("docstore: update %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	n, err := s.db.Collection(collection).CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("docstore: count %s/%s: %w", collection, id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConditionFailed
}

func (s *MongoStore) Find(ctx context.Context, collection string, q Query) ([][]byte, error) {
	filter := bson.M{}
	for _, cond := range q.Where {
		filter[cond.Field] = cond.Value
	}
	findOpts := options.Find()
	if q.Limit > 0 {
		findOpts.SetLimit(int64(q.Limit))
	}
	cur, err := s.db.Collection(collection).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("docstore: find %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	var out [][]byte
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("docstore: decode %s: %w", collection, err)
		}
		body, err := bsonToJSON(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, body)
	}
	return out, cur.Err()
}

func jsonToBSON(body []byte) (bson.M, error) {
	var doc bson.M
	if err := bson.UnmarshalExtJSON(body, false, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func bsonToJSON(doc bson.M) ([]byte, error) {
	delete(doc, "_id")
	body, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode json: %w", err)
	}
	return body, nil
}
