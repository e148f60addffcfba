package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vovakirdan/myconnect-server/internal/store"
)

type notificationDoc struct {
	ID          string            `bson:"_id"`
	RecipientID string            `bson:"recipient_id"`
	Title       string            `bson:"title"`
	Body        string            `bson:"body"`
	Type        string            `bson:"type"`
	Payload     map[string]string `bson:"payload"`
	IsRead      bool              `bson:"is_read"`
	CreatedAt   time.Time         `bson:"created_at"`
}

func (d *notificationDoc) toStore() *store.Notification {
	n := &store.Notification{
		ID:          d.ID,
		RecipientID: d.RecipientID,
		Title:       d.Title,
		Body:        d.Body,
		Type:        d.Type,
		Payload:     d.Payload,
		IsRead:      d.IsRead,
		CreatedAt:   d.CreatedAt.UTC(),
	}
	if n.Payload == nil {
		n.Payload = map[string]string{}
	}
	return n
}

// ==== NotificationStore implementation ====

func (s *MongoStore) CreateNotification(ctx context.Context, n *store.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	payload := n.Payload
	if payload == nil {
		payload = map[string]string{}
	}
	doc := notificationDoc{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Title:       n.Title,
		Body:        n.Body,
		Type:        n.Type,
		Payload:     payload,
		IsRead:      n.IsRead,
		CreatedAt:   n.CreatedAt,
	}
	if _, err := s.notifications.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *MongoStore) ListNotifications(ctx context.Context, recipientID string, limit int) ([]*store.Notification, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := s.notifications.Find(ctx, bson.M{"recipient_id": recipientID}, opts)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer cur.Close(ctx)

	out := []*store.Notification{}
	for cur.Next(ctx) {
		var doc notificationDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode notification: %w", err)
		}
		out = append(out, doc.toStore())
	}
	return out, cur.Err()
}

func (s *MongoStore) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	count, err := s.notifications.CountDocuments(ctx, bson.M{"recipient_id": recipientID, "is_read": false})
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func (s *MongoStore) MarkRead(ctx context.Context, id, recipientID string) (*store.Notification, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc notificationDoc
	err := s.notifications.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "recipient_id": recipientID},
		bson.M{"$set": bson.M{"is_read": true}},
		opts,
	).Decode(&doc)
	if err != nil {
		return nil, notFound("notification", id, err)
	}
	return doc.toStore(), nil
}

func (s *MongoStore) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	res, err := s.notifications.UpdateMany(ctx,
		bson.M{"recipient_id": recipientID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true}},
	)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) DeleteNotification(ctx context.Context, id, recipientID string) error {
	res, err := s.notifications.DeleteOne(ctx, bson.M{"_id": id, "recipient_id": recipientID})
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("notification %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *MongoStore) DeleteAllNotifications(ctx context.Context, recipientID string) (int64, error) {
	res, err := s.notifications.DeleteMany(ctx, bson.M{"recipient_id": recipientID})
	if err != nil {
		return 0, fmt.Errorf("delete notifications: %w", err)
	}
	return res.DeletedCount, nil
}
