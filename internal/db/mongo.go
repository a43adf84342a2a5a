package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	ChatsCollection    = "chats"
	DisputesCollection = "disputes"
)

// ConnectDB initializes and returns a MongoDB client and database instance.
func ConnectDB(uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping the primary node
	ctxPing, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := client.Ping(ctxPing, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(dbName)
	fmt.Println("Successfully connected to MongoDB!")

	return client, db, nil
}

// DisconnectDB closes the MongoDB client connection.
func DisconnectDB(client *mongo.Client) error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect MongoDB: %w", err)
	}
	fmt.Println("MongoDB connection closed.")
	return nil
}

// EnsureIndexes creates the indexes the services rely on. It is idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	chatIndexes := []mongo.IndexModel{
		{
			// One live thread per participant set and booking.
			Keys: bson.D{{Key: "thread_key", Value: 1}},
			Options: options.Index().
				SetName("thread_key_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"thread_key": bson.M{"$exists": true}}),
		},
		{Keys: bson.D{{Key: "participants.user_id", Value: 1}, {Key: "status", Value: 1}, {Key: "last_message.timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "scheduled_close_date", Value: 1}}},
	}
	if _, err := db.Collection(ChatsCollection).Indexes().CreateMany(ctx, chatIndexes); err != nil {
		return fmt.Errorf("failed to create chat indexes: %w", err)
	}

	disputeIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "dispute_id", Value: 1}}, Options: options.Index().SetName("dispute_id_unique").SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "booking_id", Value: 1}}},
		{Keys: bson.D{{Key: "customer_id", Value: 1}}},
		{Keys: bson.D{{Key: "technician_id", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "escalation_deadline", Value: 1}}},
	}
	if _, err := db.Collection(DisputesCollection).Indexes().CreateMany(ctx, disputeIndexes); err != nil {
		return fmt.Errorf("failed to create dispute indexes: %w", err)
	}
	return nil
}
