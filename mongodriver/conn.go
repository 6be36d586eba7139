package mongodriver

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ErrNotFound is returned by FindOne when no document matches the filter
var ErrNotFound = errors.New("mongodriver: no documents found")

// DialOptions configures a new connection
type DialOptions struct {
	ConnectTimeout         time.Duration
	ServerSelectionTimeout time.Duration
	Timeout                time.Duration
	MaxPoolSize            uint64
}

// Conn is a handle on one database of a connected client. The underlying
// mongo.Client owns its own connection pool.
type Conn struct {
	db     *mongo.Database
	client *mongo.Client
}

// Dial connects to the server at connString and verifies it with a ping
func Dial(ctx context.Context, connString, dbName string, opts DialOptions) (*Conn, error) {
	co := options.Client().ApplyURI(connString).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	if opts.ConnectTimeout > 0 {
		co.SetConnectTimeout(opts.ConnectTimeout)
	}
	if opts.ServerSelectionTimeout > 0 {
		co.SetServerSelectionTimeout(opts.ServerSelectionTimeout)
	}
	if opts.Timeout > 0 {
		co.SetTimeout(opts.Timeout)
	}
	if opts.MaxPoolSize > 0 {
		co.SetMaxPoolSize(opts.MaxPoolSize)
	}

	client, err := mongo.Connect(co)
	if err != nil {
		return nil, errors.Wrap(err, "mongodriver: connect")
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background()) //nolint:errcheck
		return nil, errors.Wrap(err, "mongodriver: ping")
	}

	return NewConn(client, dbName), nil
}

// NewConn wraps an already connected client
func NewConn(client *mongo.Client, dbName string) *Conn {
	return &Conn{
		db:     client.Database(dbName),
		client: client,
	}
}

// Database returns the name of the database this handle targets
func (c *Conn) Database() string {
	return c.db.Name()
}

// Ping checks the server is reachable
func (c *Conn) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx, nil); err != nil {
		return errors.Wrap(err, "mongodriver: ping")
	}
	return nil
}

// Close disconnects the client and releases its pool
func (c *Conn) Close(ctx context.Context) error {
	if err := c.client.Disconnect(ctx); err != nil {
		return errors.Wrap(err, "mongodriver: disconnect")
	}
	return nil
}
