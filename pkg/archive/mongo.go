// Package archive mirrors the session database into MongoDB for long-term
// retention and offline analysis. The archive is write-mostly: the device
// store stays authoritative and archiving is re-runnable.
package archive

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"voicenotes/pkg/domain"
)

// Client wraps the MongoDB client and the sessions collection.
type Client struct {
	mongoClient *mongo.Client
	collection  *mongo.Collection
}

// NewClient connects to MongoDB and selects the sessions collection.
func NewClient(ctx context.Context, connectionString, databaseName, collectionName string) (*Client, error) {
	clientOptions := options.Client().ApplyURI(connectionString)
	mongoClient, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := mongoClient.Ping(ctx, nil); err != nil {
		_ = mongoClient.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Client{
		mongoClient: mongoClient,
		collection:  mongoClient.Database(databaseName).Collection(collectionName),
	}, nil
}

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	if c.mongoClient == nil {
		return nil
	}
	return c.mongoClient.Disconnect(ctx)
}

// SaveSession upserts one session keyed by sessionId, so re-archiving after
// a transcript or summary update overwrites the stale copy.
func (c *Client) SaveSession(ctx context.Context, sess *domain.Session) error {
	if c.collection == nil {
		return fmt.Errorf("collection not initialized")
	}

	filter := bson.M{"session_id": sess.SessionID}
	update := bson.M{"$set": sess}
	opts := options.Update().SetUpsert(true)

	_, err := c.collection.UpdateOne(ctx, filter, update, opts)
	return err
}

// ArchivedIDs fetches every archived sessionId as a set.
func (c *Client) ArchivedIDs(ctx context.Context) (map[string]bool, error) {
	if c.collection == nil {
		return nil, fmt.Errorf("collection not initialized")
	}

	cursor, err := c.collection.Find(ctx, bson.M{},
		options.Find().SetProjection(bson.M{"session_id": 1, "_id": 0}))
	if err != nil {
		return nil, fmt.Errorf("query archived ids: %w", err)
	}
	defer cursor.Close(ctx)

	ids := make(map[string]bool)
	for cursor.Next(ctx) {
		var result struct {
			SessionID string `bson:"session_id"`
		}
		if err := cursor.Decode(&result); err != nil {
			continue
		}
		if result.SessionID != "" {
			ids[result.SessionID] = true
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return ids, nil
}
