// Package mongo implements the run repository on MongoDB, the storage the
// experiment recorder writes to.
package mongo

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

// ClientConfig holds connection parameters for the MongoDB client.
type ClientConfig struct {
	URI                    string
	ServerSelectionTimeout time.Duration
}

// Client wraps a mongo.Client.
type Client struct {
	client *mongo.Client
}

// New connects to MongoDB and verifies the server is reachable.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	timeout := cfg.ServerSelectionTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(timeout)

	c, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := c.Ping(ctx, nil); err != nil {
		_ = c.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}
	return &Client{client: c}, nil
}

// Underlying returns the raw driver client.
func (c *Client) Underlying() *mongo.Client {
	return c.client
}

// Close disconnects from the server.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// Ping checks that the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongo: ping: %w", err)
	}
	return nil
}

// collection returns an existing collection, failing with ErrNotFound when
// the database or the collection is missing.
func (c *Client) collection(ctx context.Context, database, name string) (*mongo.Collection, error) {
	dbs, err := c.client.ListDatabaseNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("mongo: list databases: %w", err)
	}
	if !slices.Contains(dbs, database) {
		return nil, fmt.Errorf("mongo: database %q: %w", database, domain.ErrNotFound)
	}

	exists, err := c.collectionExists(ctx, database, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("mongo: collection %s.%s: %w", database, name, domain.ErrNotFound)
	}
	return c.client.Database(database).Collection(name), nil
}

func (c *Client) collectionExists(ctx context.Context, database, name string) (bool, error) {
	names, err := c.client.Database(database).ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return false, fmt.Errorf("mongo: list collections of %s: %w", database, err)
	}
	return len(names) > 0, nil
}

// insertNew inserts docs into a collection that must not exist yet.
func (c *Client) insertNew(ctx context.Context, database, name string, docs []any) (int64, error) {
	exists, err := c.collectionExists(ctx, database, name)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, fmt.Errorf("mongo: collection %s.%s: %w", database, name, domain.ErrAlreadyExists)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	res, err := c.client.Database(database).Collection(name).InsertMany(ctx, docs)
	if err != nil {
		return 0, fmt.Errorf("mongo: insert into %s.%s: %w", database, name, err)
	}
	return int64(len(res.InsertedIDs)), nil
}
