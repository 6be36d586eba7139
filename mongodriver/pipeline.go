package mongodriver

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Aggregate runs the pipeline against collection and returns every document
func (c *Conn) Aggregate(ctx context.Context, collection string, pipeline []bson.D) ([]map[string]any, error) {
	if collection == "" {
		return nil, errors.New("mongodriver: aggregate requires collection")
	}

	cursor, err := c.db.Collection(collection).Aggregate(ctx, mongo.Pipeline(pipeline))
	if err != nil {
		return nil, errors.Wrapf(err, "mongodriver: aggregate %s", collection)
	}
	defer cursor.Close(ctx) //nolint:errcheck

	var results []bson.M
	if err := cursor.All(ctx, &results); err != nil {
		return nil, errors.Wrapf(err, "mongodriver: aggregate %s: read cursor", collection)
	}
	return toMaps(results), nil
}

// Count returns the number of documents matching filter
func (c *Conn) Count(ctx context.Context, collection string, filter map[string]any) (int64, error) {
	if filter == nil {
		filter = bson.M{}
	}
	n, err := c.db.Collection(collection).CountDocuments(ctx, filter)
	if err != nil {
		return 0, errors.Wrapf(err, "mongodriver: count %s", collection)
	}
	return n, nil
}

// FindOne returns the first document matching filter or ErrNotFound
func (c *Conn) FindOne(ctx context.Context, collection string, filter map[string]any) (map[string]any, error) {
	var doc bson.M
	err := c.db.Collection(collection).FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "mongodriver: findOne %s", collection)
	}
	return normalizeValue(doc).(map[string]any), nil
}

// UpdateOne applies update to the first document matching filter. Array
// filters are attached only when present.
func (c *Conn) UpdateOne(ctx context.Context, collection string, filter, update map[string]any,
	arrayFilters []any,
) (int64, int64, error) {
	if len(update) == 0 {
		return 0, 0, errors.New("mongodriver: updateOne requires an update document")
	}

	updateOpts := options.UpdateOne()
	if len(arrayFilters) != 0 {
		updateOpts.SetArrayFilters(arrayFilters)
	}

	result, err := c.db.Collection(collection).UpdateOne(ctx, filter, update, updateOpts)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "mongodriver: updateOne %s", collection)
	}
	return result.MatchedCount, result.ModifiedCount, nil
}

// InsertOne inserts doc and returns its _id
func (c *Conn) InsertOne(ctx context.Context, collection string, doc map[string]any) (any, error) {
	result, err := c.db.Collection(collection).InsertOne(ctx, doc)
	if err != nil {
		return nil, errors.Wrapf(err, "mongodriver: insertOne %s", collection)
	}
	return normalizeID(result.InsertedID), nil
}

func toMaps(docs []bson.M) []map[string]any {
	out := make([]map[string]any, len(docs))
	for i, d := range docs {
		out[i] = normalizeValue(d).(map[string]any)
	}
	return out
}

// normalizeValue converts driver container types into plain maps and
// slices so results marshal to JSON objects and arrays.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case bson.M:
		return normalizeMap(val)
	case map[string]any:
		return normalizeMap(val)
	case bson.D:
		m := make(map[string]any, len(val))
		for _, e := range val {
			m[e.Key] = normalizeValue(e.Value)
		}
		return m
	case bson.A:
		return normalizeSlice(val)
	case []any:
		return normalizeSlice(val)
	default:
		return v
	}
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeSlice(s []any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = normalizeValue(v)
	}
	return out
}

// normalizeID widens numeric ids to int64
func normalizeID(id any) any {
	switch v := id.(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		if v == float64(int64(v)) {
			return int64(v)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return id
	}
}
