package database

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoDB wraps the MongoDB client and database
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
	dbName   string
}

// Collection names
const (
	CollectionSessionNotes   = "session_notes"
	CollectionAccountBudgets = "account_budgets"
)

// NewMongoDB creates a new MongoDB connection with connection pooling
func NewMongoDB(uri string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dbName := extractDBName(uri)
	if dbName == "" {
		dbName = "modelmux"
	}

	db := &MongoDB{
		client:   client,
		database: client.Database(dbName),
		dbName:   dbName,
	}

	log.Printf("✅ MongoDB connected (database: %s)", dbName)
	return db, nil
}

// EnsureIndexes creates the indexes the session note sweep depends on
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	notes := m.Collection(CollectionSessionNotes)

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "sessionId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "expiresAt", Value: 1}}},
	}

	if _, err := notes.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create session note indexes: %w", err)
	}

	budgets := m.Collection(CollectionAccountBudgets)
	budgetIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "accountId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := budgets.Indexes().CreateOne(ctx, budgetIndex); err != nil {
		return fmt.Errorf("failed to create budget index: %w", err)
	}

	return nil
}

// Database returns the underlying mongo database handle
func (m *MongoDB) Database() *mongo.Database {
	return m.database
}

// Collection returns a collection by name
func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.database.Collection(name)
}

// Close disconnects the client
func (m *MongoDB) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// extractDBName pulls the database name out of a mongodb:// URI
func extractDBName(uri string) string {
	trimmed := strings.TrimPrefix(uri, "mongodb+srv://")
	trimmed = strings.TrimPrefix(trimmed, "mongodb://")

	slashIdx := strings.Index(trimmed, "/")
	if slashIdx < 0 || slashIdx == len(trimmed)-1 {
		return ""
	}

	name := trimmed[slashIdx+1:]
	if qIdx := strings.Index(name, "?"); qIdx >= 0 {
		name = name[:qIdx]
	}
	return name
}
