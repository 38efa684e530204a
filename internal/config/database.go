package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type MongoDBClient struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// NewMongoDBClient connects, pings, and registers a disconnect hook on the fx lifecycle.
func NewMongoDBClient(lc fx.Lifecycle, cfg *AppConfig, log *zap.Logger) (*MongoDBClient, error) {
	clientOptions := options.Client().ApplyURI(cfg.MongoURI)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Info("Connected to MongoDB", zap.String("database", cfg.MongoDB))

	lc.Append(fx.Hook{
		OnStop: func(stopCtx context.Context) error {
			log.Info("Closing MongoDB connection ...")
			return client.Disconnect(stopCtx)
		},
	})
	return &MongoDBClient{Client: client, Database: client.Database(cfg.MongoDB)}, nil
}

// CreateIndexes creates the given indexes, bounded to five seconds.
func CreateIndexes(collection *mongo.Collection, models []mongo.IndexModel) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := collection.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create indexes on %s: %w", collection.Name(), err)
	}
	return nil
}

func (c *MongoDBClient) GetCollection(collectionName string) *mongo.Collection {
	return c.Database.Collection(collectionName)
}
