// Package mongo implements store.Store on MongoDB. A chat and its message log
// live in one document so every append is a single atomic update.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vovakirdan/myconnect-server/internal/store"
)

const (
	chatsCollection         = "chats"
	identitiesCollection    = "identities"
	notificationsCollection = "notifications"
)

// MongoStore implements store.Store for MongoDB.
type MongoStore struct {
	client        *mongo.Client
	db            *mongo.Database
	chats         *mongo.Collection
	identities    *mongo.Collection
	notifications *mongo.Collection
}

// New connects to uri, pings the server and ensures indexes on dbName.
func New(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	defer cancelPing()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(dbName)
	s := &MongoStore{
		client:        client,
		db:            db,
		chats:         db.Collection(chatsCollection),
		identities:    db.Collection(identitiesCollection),
		notifications: db.Collection(notificationsCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	if _, err := s.chats.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "chat_key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("chat_key_unique"),
		},
		{
			Keys:    bson.D{{Key: "participants", Value: 1}, {Key: "is_public", Value: 1}},
			Options: options.Index().SetName("participants_idx"),
		},
	}); err != nil {
		return fmt.Errorf("create chat indexes: %w", err)
	}

	if _, err := s.identities.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "tenant_scope", Value: 1}, {Key: "role", Value: 1}},
		Options: options.Index().SetName("scope_role_idx"),
	}); err != nil {
		return fmt.Errorf("create identity indexes: %w", err)
	}

	if _, err := s.notifications.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("recipient_created_idx"),
	}); err != nil {
		return fmt.Errorf("create notification indexes: %w", err)
	}
	return nil
}

// Drop removes the whole database. Used by tests.
func (s *MongoStore) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return fmt.Errorf("query %s: %w", kind, err)
}

var _ store.Store = (*MongoStore)(nil)
