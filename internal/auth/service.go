package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/vovakirdan/myconnect-server/internal/store"
)

var (
	// ErrInvalidToken is returned when a bearer token cannot be verified.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidActor is returned when token claims do not describe a usable member.
	ErrInvalidActor = errors.New("invalid actor")
)

// Actor is the verified member behind a request.
type Actor struct {
	ID          string
	DisplayName string
	Role        store.Role
	TenantScope string
}

// Scope returns the tenant scope or nil when the actor belongs to none.
func (a *Actor) Scope() *string {
	if a.TenantScope == "" {
		return nil
	}
	s := a.TenantScope
	return &s
}

// Identity converts the actor into its stored profile.
func (a *Actor) Identity() *store.Identity {
	return &store.Identity{
		ID:          a.ID,
		DisplayName: a.DisplayName,
		Role:        a.Role,
		TenantScope: a.TenantScope,
	}
}

// Service verifies tokens and keeps the local identity copy in step with them.
type Service struct {
	store     store.IdentityStore
	jwtConfig *JWTConfig
	synced    *expirable.LRU[string, Actor]
}

// Sync cache defaults.
const (
	DefaultSyncCacheSize = 4096
	DefaultSyncTTL       = 5 * time.Minute
)

// NewService creates a new authentication service.
func NewService(identities store.IdentityStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     identities,
		jwtConfig: jwtConfig,
		synced:    expirable.NewLRU[string, Actor](DefaultSyncCacheSize, nil, DefaultSyncTTL),
	}
}

// IssueToken mints a token for actor.
func (s *Service) IssueToken(actor Actor) (string, error) {
	actor, err := normalizeActor(actor)
	if err != nil {
		return "", err
	}
	token, err := GenerateToken(s.jwtConfig, actor)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

// Authenticate verifies tokenString and upserts the actor's identity unless
// an identical profile was synced recently.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (*Actor, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	actor, err := normalizeActor(Actor{
		ID:          claims.UserID,
		DisplayName: claims.Name,
		Role:        store.Role(claims.Role),
		TenantScope: claims.TenantScope,
	})
	if err != nil {
		return nil, err
	}

	if cached, ok := s.synced.Get(actor.ID); ok && cached == actor {
		return &actor, nil
	}
	if err := s.store.UpsertIdentity(ctx, actor.Identity()); err != nil {
		return nil, fmt.Errorf("sync identity: %w", err)
	}
	s.synced.Add(actor.ID, actor)
	return &actor, nil
}

func normalizeActor(a Actor) (Actor, error) {
	a.ID = strings.TrimSpace(a.ID)
	a.DisplayName = strings.TrimSpace(a.DisplayName)
	a.TenantScope = strings.TrimSpace(a.TenantScope)
	if a.ID == "" {
		return a, fmt.Errorf("%w: id is required", ErrInvalidActor)
	}
	switch a.Role {
	case "":
		a.Role = store.RoleUser
	case store.RoleUser, store.RoleAdmin, store.RoleSuperAdmin:
	default:
		return a, fmt.Errorf("%w: unknown role %q", ErrInvalidActor, a.Role)
	}
	return a, nil
}
