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

type messageDoc struct {
	ID       string    `bson:"_id"`
	SenderID string    `bson:"sender_id"`
	Text     string    `bson:"text"`
	SentAt   time.Time `bson:"sent_at"`
}

type chatDoc struct {
	ID              string       `bson:"_id"`
	Key             string       `bson:"chat_key"`
	Participants    []string     `bson:"participants"`
	Messages        []messageDoc `bson:"messages"`
	IsPublic        bool         `bson:"is_public"`
	TenantScope     *string      `bson:"tenant_scope"`
	DisplayName     string       `bson:"display_name"`
	LastMessageText *string      `bson:"last_message_text"`
	LastMessageAt   *time.Time   `bson:"last_message_at"`
	CreatedAt       time.Time    `bson:"created_at"`
	UpdatedAt       time.Time    `bson:"updated_at"`
}

func (d *chatDoc) toStore() *store.Chat {
	chat := &store.Chat{
		ID:              d.ID,
		Participants:    d.Participants,
		Messages:        make([]store.Message, 0, len(d.Messages)),
		IsPublic:        d.IsPublic,
		TenantScope:     d.TenantScope,
		DisplayName:     d.DisplayName,
		LastMessageText: d.LastMessageText,
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
	}
	if chat.Participants == nil {
		chat.Participants = []string{}
	}
	if d.LastMessageAt != nil {
		t := d.LastMessageAt.UTC()
		chat.LastMessageAt = &t
	}
	for _, m := range d.Messages {
		chat.Messages = append(chat.Messages, store.Message{
			ID:       m.ID,
			SenderID: m.SenderID,
			Text:     m.Text,
			SentAt:   m.SentAt.UTC(),
		})
	}
	return chat
}

// ==== ChatStore implementation ====

// FindOrCreateChat upserts by chat_key. Two racing upserts can both miss the
// filter; the unique index rejects the loser, which then reads the winner.
func (s *MongoStore) FindOrCreateChat(ctx context.Context, nc *store.NewChat) (*store.Chat, bool, error) {
	now := time.Now().UTC()
	participants := nc.Participants
	if participants == nil {
		participants = []string{}
	}
	update := bson.M{"$setOnInsert": bson.M{
		"_id":               nc.ID,
		"participants":      participants,
		"messages":          bson.A{},
		"is_public":         nc.IsPublic,
		"tenant_scope":      nc.TenantScope,
		"display_name":      nc.DisplayName,
		"last_message_text": nil,
		"last_message_at":   nil,
		"created_at":        now,
		"updated_at":        now,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc chatDoc
	err := s.chats.FindOneAndUpdate(ctx, bson.M{"chat_key": nc.Key}, update, opts).Decode(&doc)
	if err != nil {
		if !mongo.IsDuplicateKeyError(err) {
			return nil, false, fmt.Errorf("upsert chat: %w", err)
		}
		if err := s.chats.FindOne(ctx, bson.M{"chat_key": nc.Key}).Decode(&doc); err != nil {
			return nil, false, notFound("chat", nc.Key, err)
		}
	}
	return doc.toStore(), doc.ID == nc.ID, nil
}

func (s *MongoStore) GetChat(ctx context.Context, id string) (*store.Chat, error) {
	var doc chatDoc
	if err := s.chats.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, notFound("chat", id, err)
	}
	return doc.toStore(), nil
}

func (s *MongoStore) GetChatByKey(ctx context.Context, key string) (*store.Chat, error) {
	var doc chatDoc
	if err := s.chats.FindOne(ctx, bson.M{"chat_key": key}).Decode(&doc); err != nil {
		return nil, notFound("chat", key, err)
	}
	return doc.toStore(), nil
}

func (s *MongoStore) ListDirectChats(ctx context.Context, userID string) ([]*store.Chat, error) {
	opts := options.Find().
		SetProjection(bson.M{"messages": 0}).
		SetSort(bson.D{{Key: "last_message_at", Value: -1}, {Key: "created_at", Value: -1}})
	cur, err := s.chats.Find(ctx, bson.M{"participants": userID, "is_public": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer cur.Close(ctx)

	var chats []*store.Chat
	for cur.Next(ctx) {
		var doc chatDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode chat: %w", err)
		}
		chats = append(chats, doc.toStore())
	}
	return chats, cur.Err()
}

func (s *MongoStore) AddParticipant(ctx context.Context, chatID, userID string) (*store.Chat, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc chatDoc
	err := s.chats.FindOneAndUpdate(ctx,
		bson.M{"_id": chatID},
		bson.M{"$addToSet": bson.M{"participants": userID}},
		opts,
	).Decode(&doc)
	if err != nil {
		return nil, notFound("chat", chatID, err)
	}
	return doc.toStore(), nil
}

// AppendMessage pushes the message and rewrites the summary in one pipeline
// update. sent_at is the server clock clamped to the previous last_message_at.
func (s *MongoStore) AppendMessage(ctx context.Context, chatID string, msg *store.Message) (*store.Chat, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"_sent_at": bson.M{"$max": bson.A{"$$NOW", bson.M{"$ifNull": bson.A{"$last_message_at", "$$NOW"}}}},
		}}},
		{{Key: "$set", Value: bson.M{
			"messages": bson.M{"$concatArrays": bson.A{
				bson.M{"$ifNull": bson.A{"$messages", bson.A{}}},
				bson.A{bson.M{
					"_id":       bson.M{"$literal": msg.ID},
					"sender_id": bson.M{"$literal": msg.SenderID},
					"text":      bson.M{"$literal": msg.Text},
					"sent_at":   "$_sent_at",
				}},
			}},
			"last_message_text": bson.M{"$literal": msg.Text},
			"last_message_at":   "$_sent_at",
			"updated_at":        "$_sent_at",
		}}},
		{{Key: "$unset", Value: "_sent_at"}},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc chatDoc
	if err := s.chats.FindOneAndUpdate(ctx, bson.M{"_id": chatID}, pipeline, opts).Decode(&doc); err != nil {
		return nil, notFound("chat", chatID, err)
	}

	n := len(doc.Messages)
	if n == 0 || doc.Messages[n-1].ID != msg.ID {
		return nil, errors.New("append message: tail does not match inserted message")
	}
	msg.SentAt = doc.Messages[n-1].SentAt.UTC()
	return doc.toStore(), nil
}

func (s *MongoStore) RemoveMessages(ctx context.Context, chatID string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	_, err := s.chats.UpdateOne(ctx,
		bson.M{"_id": chatID},
		bson.M{"$pull": bson.M{"messages": bson.M{"_id": bson.M{"$in": messageIDs}}}},
	)
	if err != nil {
		return fmt.Errorf("remove messages: %w", err)
	}
	return nil
}

func (s *MongoStore) RecomputeSummary(ctx context.Context, chatID string) (*store.Chat, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"_tail": bson.M{"$arrayElemAt": bson.A{bson.M{"$ifNull": bson.A{"$messages", bson.A{}}}, -1}},
		}}},
		{{Key: "$set", Value: bson.M{
			"last_message_text": bson.M{"$ifNull": bson.A{"$_tail.text", nil}},
			"last_message_at":   bson.M{"$ifNull": bson.A{"$_tail.sent_at", nil}},
			"updated_at":        "$$NOW",
		}}},
		{{Key: "$unset", Value: "_tail"}},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc chatDoc
	if err := s.chats.FindOneAndUpdate(ctx, bson.M{"_id": chatID}, pipeline, opts).Decode(&doc); err != nil {
		return nil, notFound("chat", chatID, err)
	}
	return doc.toStore(), nil
}
