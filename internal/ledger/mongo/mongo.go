// Package mongo stores the remote ledger in a MongoDB collection, one
// document per transaction with _id set to the transaction id.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"spendsync/internal/core"
	"spendsync/internal/ledger"
)

// Collection is the subset of *mongo.Collection used by the ledger.
type Collection interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

var _ Collection = (*mongo.Collection)(nil)

type Ledger struct {
	coll Collection
}

var _ ledger.Ledger = (*Ledger)(nil)

func New(coll Collection) *Ledger {
	return &Ledger{coll: coll}
}

// Connect establishes a connection to MongoDB and verifies it with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	slog.DebugContext(ctx, "Attempting to connect to MongoDB")

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	slog.InfoContext(ctx, "Successfully established connection to MongoDB")
	return client, nil
}

func (l *Ledger) Query(ctx context.Context, field string, value any, fn func(string, ledger.Document) error) error {
	cur, err := l.coll.Find(ctx, bson.M{field: value})
	if err != nil {
		return core.NewRemoteError("query", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			// A single undecodable document must not abort the stream.
			slog.WarnContext(ctx, "Skipping undecodable ledger document", "error", err)
			continue
		}
		id, doc := fromBSON(raw)
		if err := fn(id, doc); err != nil {
			return err
		}
	}
	if err := cur.Err(); err != nil {
		return core.NewRemoteError("query", err)
	}
	return nil
}

func (l *Ledger) Get(ctx context.Context, id string) (ledger.Document, error) {
	var raw bson.M
	err := l.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, core.NewRemoteError("get", &core.NotFoundError{Kind: "document", ID: id})
	}
	if err != nil {
		return nil, core.NewRemoteError("get", err)
	}
	_, doc := fromBSON(raw)
	return doc, nil
}

func (l *Ledger) Set(ctx context.Context, id string, doc ledger.Document) error {
	_, err := l.coll.ReplaceOne(ctx, bson.M{"_id": id}, toBSON(id, doc), options.Replace().SetUpsert(true))
	if err != nil {
		return core.NewRemoteError("set", err)
	}
	return nil
}

func (l *Ledger) Update(ctx context.Context, id string, doc ledger.Document) error {
	res, err := l.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M(doc)})
	if err != nil {
		return core.NewRemoteError("update", err)
	}
	if res.MatchedCount == 0 {
		return core.NewRemoteError("update", &core.NotFoundError{Kind: "document", ID: id})
	}
	return nil
}

func (l *Ledger) Delete(ctx context.Context, id string) error {
	if _, err := l.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return core.NewRemoteError("delete", err)
	}
	return nil
}

func toBSON(id string, doc ledger.Document) bson.M {
	out := make(bson.M, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	out["_id"] = id
	return out
}

// fromBSON strips _id and converts driver types into the plain values
// ledger.FromDocument understands.
func fromBSON(raw bson.M) (string, ledger.Document) {
	var id string
	switch v := raw["_id"].(type) {
	case string:
		id = v
	case primitive.ObjectID:
		id = v.Hex()
	}

	doc := make(ledger.Document, len(raw))
	for k, v := range raw {
		if k == "_id" {
			continue
		}
		doc[k] = normalize(v)
	}
	return id, doc
}

func normalize(v any) any {
	switch x := v.(type) {
	case primitive.A:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	case primitive.DateTime:
		return x.Time()
	case primitive.Decimal128:
		return x.String()
	default:
		return v
	}
}
