package database

import (
	"context"
	"fmt"
	"time"

	"github.com/mapster/mapster/backend/go-services/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names used by the API.
const (
	UsersCollection     = "users"
	DocumentsCollection = "documents"
	ShapesCollection    = "shapes"
)

// ConnectMongo opens a connection and returns the client. Caller should call client.Disconnect(ctx).
func ConnectMongo(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// ConnectWithRetry retries ConnectMongo with exponential backoff to tolerate startup races.
func ConnectWithRetry(ctx context.Context, uri string, timeout time.Duration, attempts int) (*mongo.Client, error) {
	backoff := time.Second
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		client, err := ConnectMongo(ctx, uri, timeout)
		if err == nil {
			return client, nil
		}
		lastErr = err
		logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, attempts, err)
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("mongo: giving up after %d attempts: %w", attempts, lastErr)
}

// EnsureIndexes creates the secondary indexes the repositories query by.
// The unique email index on users is owned by users.MongoUserRepository.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	docs := mongo.IndexModel{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: 1}}}
	if _, err := db.Collection(DocumentsCollection).Indexes().CreateOne(ctx, docs); err != nil {
		return fmt.Errorf("documents index: %w", err)
	}
	shapes := mongo.IndexModel{Keys: bson.D{{Key: "docId", Value: 1}, {Key: "index", Value: 1}}}
	if _, err := db.Collection(ShapesCollection).Indexes().CreateOne(ctx, shapes); err != nil {
		return fmt.Errorf("shapes index: %w", err)
	}
	return nil
}
