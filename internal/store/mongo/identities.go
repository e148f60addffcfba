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

type identityDoc struct {
	ID          string    `bson:"_id"`
	DisplayName string    `bson:"display_name"`
	Role        string    `bson:"role"`
	TenantScope string    `bson:"tenant_scope"`
	DeviceToken *string   `bson:"device_token"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func (d *identityDoc) toStore() *store.Identity {
	identity := &store.Identity{
		ID:          d.ID,
		DisplayName: d.DisplayName,
		Role:        store.Role(d.Role),
		TenantScope: d.TenantScope,
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
	if identity.Role == "" {
		identity.Role = store.RoleUser
	}
	if d.DeviceToken != nil && *d.DeviceToken != "" {
		token := *d.DeviceToken
		identity.DeviceToken = &token
	}
	return identity
}

// ==== IdentityStore implementation ====

func (s *MongoStore) UpsertIdentity(ctx context.Context, identity *store.Identity) error {
	update := bson.M{"$set": bson.M{
		"display_name": identity.DisplayName,
		"role":         string(identity.Role),
		"tenant_scope": identity.TenantScope,
		"updated_at":   time.Now().UTC(),
	}}
	_, err := s.identities.UpdateOne(ctx, bson.M{"_id": identity.ID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert identity: %w", err)
	}
	return nil
}

func (s *MongoStore) GetIdentity(ctx context.Context, id string) (*store.Identity, error) {
	var doc identityDoc
	if err := s.identities.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, notFound("identity", id, err)
	}
	return doc.toStore(), nil
}

func (s *MongoStore) ListIdentities(ctx context.Context, ids []string) ([]*store.Identity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := s.identities.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer cur.Close(ctx)

	var identities []*store.Identity
	for cur.Next(ctx) {
		var doc identityDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode identity: %w", err)
		}
		identities = append(identities, doc.toStore())
	}
	return identities, cur.Err()
}

// GetScopeOwner prefers an admin over a super-admin sharing the scope.
func (s *MongoStore) GetScopeOwner(ctx context.Context, scope string) (*store.Identity, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	for _, role := range []store.Role{store.RoleAdmin, store.RoleSuperAdmin} {
		var doc identityDoc
		err := s.identities.FindOne(ctx, bson.M{"tenant_scope": scope, "role": string(role)}, opts).Decode(&doc)
		if err == nil {
			return doc.toStore(), nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("query scope owner: %w", err)
		}
	}
	return nil, fmt.Errorf("scope owner %s: %w", scope, store.ErrNotFound)
}

func (s *MongoStore) SetDeviceToken(ctx context.Context, id string, token *string) error {
	update := bson.M{
		"$set": bson.M{
			"device_token": token,
			"updated_at":   time.Now().UTC(),
		},
		"$setOnInsert": bson.M{
			"display_name": "",
			"role":         string(store.RoleUser),
			"tenant_scope": "",
		},
	}
	_, err := s.identities.UpdateOne(ctx, bson.M{"_id": id}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("set device token: %w", err)
	}
	return nil
}
