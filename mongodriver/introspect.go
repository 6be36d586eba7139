package mongodriver

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Collections lists the collection names in the database
func (c *Conn) Collections(ctx context.Context) ([]string, error) {
	names, err := c.db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return nil, errors.Wrap(err, "mongodriver: list collections")
	}
	return names, nil
}

// HasCollection reports whether a collection called name exists
func (c *Conn) HasCollection(ctx context.Context, name string) (bool, error) {
	names, err := c.db.ListCollectionNames(ctx, bson.M{"name": name})
	if err != nil {
		return false, errors.Wrap(err, "mongodriver: list collections")
	}
	return len(names) != 0, nil
}
