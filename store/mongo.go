package store

import (
	"context"
	"fmt"

	"github.com/bsaid97/go-polygon-overlap/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo opens a separate client per handle so every chunk worker holds its
// own connection.
type Mongo struct {
	uri        string
	database   string
	collection string
}

func NewMongo(cfg config.Store) *Mongo {
	return &Mongo{
		uri:        cfg.URI,
		database:   cfg.Database,
		collection: cfg.Collection,
	}
}

func (m *Mongo) Open(ctx context.Context) (RecordStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(m.uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &mongoHandle{
		client: client,
		coll:   client.Database(m.database).Collection(m.collection),
	}, nil
}

func (m *Mongo) Close() error { return nil }

type mongoHandle struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// FindAll sorts by _id; ObjectIDs grow with insertion time.
func (h *mongoHandle) FindAll(ctx context.Context) ([]GeometryRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := h.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []GeometryRecord
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		records = append(records, recordFromDocument(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

func (h *mongoHandle) UpdateLog(ctx context.Context, id string, entry LogEntry) error {
	filter := bson.M{"_id": mongoID(id)}
	update := bson.M{"$set": bson.M{"log": logDocument(entry)}}
	res, err := h.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("update log %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (h *mongoHandle) InsertRecord(ctx context.Context, fields map[string]any) (string, error) {
	res, err := h.coll.InsertOne(ctx, bson.M(fields))
	if err != nil {
		return "", fmt.Errorf("insert record: %w", err)
	}
	return idString(res.InsertedID), nil
}

func (h *mongoHandle) Close(ctx context.Context) error {
	return h.client.Disconnect(ctx)
}

func recordFromDocument(doc bson.M) GeometryRecord {
	rec := GeometryRecord{
		ID:     idString(doc["_id"]),
		Fields: make(map[string]any, len(doc)),
	}
	for k, v := range doc {
		switch k {
		case "_id":
		case "log":
			rec.Log = logFromDocument(v)
		default:
			rec.Fields[k] = normalize(v)
		}
	}
	return rec
}

// normalize turns driver container types into plain []any and
// map[string]any so the parser sees the same shapes for every backend.
func normalize(v any) any {
	switch t := v.(type) {
	case primitive.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case bson.M:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case primitive.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	}
	return v
}

func idString(v any) string {
	switch t := v.(type) {
	case primitive.ObjectID:
		return t.Hex()
	case string:
		return t
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// mongoID maps a hex id back to an ObjectID; anything else is used as is.
func mongoID(id string) any {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}

func logDocument(e LogEntry) bson.M {
	doc := bson.M{"record_id": mongoID(e.RecordID)}
	if e.Invalid {
		doc["invalid"] = true
		doc["reason"] = e.Reason
		return doc
	}
	doc["overlap_with"] = mongoID(e.OverlapWith)
	doc["overlap_percentage"] = e.OverlapPercentage
	return doc
}

func logFromDocument(v any) *LogEntry {
	doc, ok := normalize(v).(map[string]any)
	if !ok {
		return nil
	}
	e := &LogEntry{
		RecordID:    idString(doc["record_id"]),
		OverlapWith: idString(doc["overlap_with"]),
	}
	if pct, ok := doc["overlap_percentage"].(float64); ok {
		e.OverlapPercentage = pct
	}
	if invalid, ok := doc["invalid"].(bool); ok {
		e.Invalid = invalid
	}
	if reason, ok := doc["reason"].(string); ok {
		e.Reason = reason
	}
	return e
}

