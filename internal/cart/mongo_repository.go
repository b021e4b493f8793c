package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fjod/go_cart/internal/domain"
)

const cartTTL = 90 * 24 * time.Hour

type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		collection: db.Collection("carts"),
	}
}

// ConnectMongoDB connects and pings before returning the database handle.
func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

func (m *MongoRepository) Get(ctx context.Context, ownerID string) (*domain.Cart, error) {
	var c domain.Cart

	err := m.collection.FindOne(ctx, bson.M{"user_id": ownerID}).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return &c, nil
}

func (m *MongoRepository) Save(ctx context.Context, c *domain.Cart) error {
	filter := bson.M{"user_id": c.OwnerID}
	opts := options.Replace().SetUpsert(true)

	if _, err := m.collection.ReplaceOne(ctx, filter, c, opts); err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}

func (m *MongoRepository) Delete(ctx context.Context, ownerID string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"user_id": ownerID})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (m *MongoRepository) DeleteIfID(ctx context.Context, ownerID, cartID string) (bool, error) {
	result, err := m.collection.DeleteOne(ctx, bson.M{"user_id": ownerID, "cart_id": cartID})
	if err != nil {
		return false, fmt.Errorf("failed to delete cart: %w", err)
	}
	return result.DeletedCount == 1, nil
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(cartTTL.Seconds())),
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
