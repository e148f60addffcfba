package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/vovakirdan/myconnect-server/internal/store"
)

// ==== IdentityStore implementation ====

// UpsertIdentity stores profile fields, leaving the device token untouched.
func (s *SQLiteStore) UpsertIdentity(ctx context.Context, identity *store.Identity) error {
	query := `
		INSERT INTO identities (id, display_name, role, tenant_scope, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			role         = excluded.role,
			tenant_scope = excluded.tenant_scope,
			updated_at   = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		identity.ID,
		identity.DisplayName,
		string(identity.Role),
		identity.TenantScope,
		s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert identity: %w", err)
	}
	return nil
}

// GetIdentity retrieves an identity by ID.
func (s *SQLiteStore) GetIdentity(ctx context.Context, id string) (*store.Identity, error) {
	query := `
		SELECT id, display_name, role, tenant_scope, device_token, updated_at
		FROM identities
		WHERE id = ?
	`
	identity, err := scanIdentity(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("identity %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query identity: %w", err)
	}
	return identity, nil
}

// ListIdentities returns the identities found among ids; unknown ids are skipped.
func (s *SQLiteStore) ListIdentities(ctx context.Context, ids []string) ([]*store.Identity, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var identities []*store.Identity
	for _, chunk := range lo.Chunk(ids, maxBindVars) {
		batch, err := s.listIdentities(ctx, chunk)
		if err != nil {
			return nil, err
		}
		identities = append(identities, batch...)
	}
	return identities, nil
}

func (s *SQLiteStore) listIdentities(ctx context.Context, ids []string) ([]*store.Identity, error) {
	query := `
		SELECT id, display_name, role, tenant_scope, device_token, updated_at
		FROM identities
		WHERE id IN (` + placeholders(len(ids)) + `)
	`
	rows, err := s.db.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var identities []*store.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, identity)
	}
	return identities, rows.Err()
}

// GetScopeOwner returns the admin identity owning the given tenant scope.
func (s *SQLiteStore) GetScopeOwner(ctx context.Context, scope string) (*store.Identity, error) {
	query := `
		SELECT id, display_name, role, tenant_scope, device_token, updated_at
		FROM identities
		WHERE tenant_scope = ? AND role IN ('admin', 'super-admin')
		ORDER BY CASE role WHEN 'admin' THEN 0 ELSE 1 END, updated_at DESC
		LIMIT 1
	`
	identity, err := scanIdentity(s.db.QueryRowContext(ctx, query, scope))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("scope owner %s: %w", scope, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query scope owner: %w", err)
	}
	return identity, nil
}

// SetDeviceToken registers or clears (nil) the push token of an identity.
func (s *SQLiteStore) SetDeviceToken(ctx context.Context, id string, token *string) error {
	query := `
		INSERT INTO identities (id, device_token, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			device_token = excluded.device_token,
			updated_at   = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, id, token, s.now().UTC()); err != nil {
		return fmt.Errorf("set device token: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*store.Identity, error) {
	var identity store.Identity
	var role string
	var token sql.NullString
	if err := row.Scan(
		&identity.ID,
		&identity.DisplayName,
		&role,
		&identity.TenantScope,
		&token,
		&identity.UpdatedAt,
	); err != nil {
		return nil, err
	}
	identity.Role = store.Role(role)
	if token.Valid && token.String != "" {
		identity.DeviceToken = &token.String
	}
	return &identity, nil
}
