package core

import (
	"context"

	"github.com/patel-ankitb/nestproject-sub000/mongodriver"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Store is a live handle on one tenant database. A Store is shared by
// every request targeting the same connection string and database name.
type Store interface {
	Aggregate(ctx context.Context, collection string, pipeline []bson.D) ([]map[string]any, error)
	Count(ctx context.Context, collection string, filter map[string]any) (int64, error)

	// FindOne returns mongodriver.ErrNotFound when nothing matches
	FindOne(ctx context.Context, collection string, filter map[string]any) (map[string]any, error)

	UpdateOne(ctx context.Context, collection string, filter, update map[string]any,
		arrayFilters []any) (matched int64, modified int64, err error)
	InsertOne(ctx context.Context, collection string, doc map[string]any) (any, error)
	HasCollection(ctx context.Context, name string) (bool, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Dialer opens a Store for the given connection string and database
type Dialer func(ctx context.Context, connString, dbName string) (Store, error)

// mongoDialer returns the default dialer backed by the mongo driver
func mongoDialer(conf *Config) Dialer {
	opts := mongodriver.DialOptions{
		ConnectTimeout:         conf.ConnectTimeout,
		ServerSelectionTimeout: conf.ServerSelectionTimeout,
		Timeout:                conf.OperationTimeout,
		MaxPoolSize:            conf.MaxPoolSize,
	}
	return func(ctx context.Context, connString, dbName string) (Store, error) {
		c, err := mongodriver.Dial(ctx, connString, dbName, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
