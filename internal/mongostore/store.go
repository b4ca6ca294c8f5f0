// Package mongostore reads and writes mdstats collections in MongoDB.
//
// It is the production counterpart of internal/store: the same Find,
// Values and Insert operations, with query trees sent to the server as
// native filter documents instead of compiled SQL.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/roach88/mdstats/internal/ir"
	"github.com/roach88/mdstats/internal/queryir"
)

// Store is a MongoDB-backed document store.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects to the server at uri and pings it.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	if database == "" {
		return nil, errors.New("mongostore: empty database name")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// Ping verifies the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Find streams the documents of collection that match filter in natural
// order, with the exclude fields projected away.
func (s *Store) Find(ctx context.Context, collection string, filter queryir.Node, exclude []string) iter.Seq2[ir.IRObject, error] {
	return func(yield func(ir.IRObject, error) bool) {
		q, err := CompileFilter(filter)
		if err != nil {
			yield(nil, fmt.Errorf("find in %s: %w", collection, err))
			return
		}

		opts := options.Find()
		if proj := ExclusionProjection(exclude); len(proj) > 0 {
			opts.SetProjection(proj)
		}

		cur, err := s.db.Collection(collection).Find(ctx, q, opts)
		if err != nil {
			yield(nil, fmt.Errorf("find in %s: %w", collection, err))
			return
		}
		defer cur.Close(context.WithoutCancel(ctx))

		for cur.Next(ctx) {
			var raw bson.D
			if err := cur.Decode(&raw); err != nil {
				yield(nil, fmt.Errorf("find in %s: decode: %w", collection, err))
				return
			}
			if !yield(FromBSON(raw).(ir.IRObject), nil) {
				return
			}
		}
		if err := cur.Err(); err != nil {
			yield(nil, fmt.Errorf("find in %s: %w", collection, err))
		}
	}
}

// Values returns field from every document of collection that matches
// filter and has the field. No limit is applied.
//
// Satisfies reference.Lookup.
func (s *Store) Values(ctx context.Context, collection string, filter queryir.Node, field string) ([]ir.IRValue, error) {
	q, err := CompileFilter(queryir.Conjoin(filter, queryir.Leaf{
		Field:     field,
		Predicate: ir.IRObject{"$exists": ir.IRBool(true)},
	}))
	if err != nil {
		return nil, fmt.Errorf("values of %s in %s: %w", field, collection, err)
	}

	opts := options.Find().SetProjection(InclusionProjection(field))
	cur, err := s.db.Collection(collection).Find(ctx, q, opts)
	if err != nil {
		return nil, fmt.Errorf("values of %s in %s: %w", field, collection, err)
	}
	defer cur.Close(context.WithoutCancel(ctx))

	values := []ir.IRValue{}
	for cur.Next(ctx) {
		var raw bson.D
		if err := cur.Decode(&raw); err != nil {
			return nil, fmt.Errorf("values of %s in %s: decode: %w", field, collection, err)
		}
		if v, ok := ir.Lookup(FromBSON(raw).(ir.IRObject), field); ok {
			values = append(values, v)
		}
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("values of %s in %s: %w", field, collection, err)
	}
	return values, nil
}

// Insert writes docs to collection. Documents with an _id replace any
// stored document with that id; the rest are inserted with a server id.
func (s *Store) Insert(ctx context.Context, collection string, docs ...ir.IRObject) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	models := make([]mongo.WriteModel, 0, len(docs))
	for _, doc := range docs {
		body := toDocument(doc)
		if id, ok := doc["_id"]; ok && !ir.IsNull(id) {
			models = append(models, mongo.NewReplaceOneModel().
				SetFilter(bson.D{{Key: "_id", Value: ToBSON(id)}}).
				SetReplacement(body).
				SetUpsert(true))
			continue
		}
		models = append(models, mongo.NewInsertOneModel().SetDocument(withoutID(body)))
	}

	if _, err := s.db.Collection(collection).BulkWrite(ctx, models); err != nil {
		return 0, fmt.Errorf("insert into %s: %w", collection, err)
	}
	return len(docs), nil
}

func withoutID(doc bson.D) bson.D {
	out := doc[:0:0]
	for _, e := range doc {
		if e.Key != "_id" {
			out = append(out, e)
		}
	}
	return out
}

// ExclusionProjection builds a projection dropping fields.
func ExclusionProjection(fields []string) bson.D {
	proj := make(bson.D, 0, len(fields))
	for _, f := range fields {
		proj = append(proj, bson.E{Key: f, Value: 0})
	}
	return proj
}

// InclusionProjection builds a projection keeping only field.
func InclusionProjection(field string) bson.D {
	proj := bson.D{{Key: field, Value: 1}}
	if field != "_id" {
		proj = append(proj, bson.E{Key: "_id", Value: 0})
	}
	return proj
}
