package store

import "strings"

const (
	directKeyPrefix = "dm:"
	scopeKeyPrefix  = "public:"
)

// DirectKey is the uniqueness key of the direct chat between two users.
// The pair is unordered: DirectKey(a, b) == DirectKey(b, a).
func DirectKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return directKeyPrefix + a + ":" + b
}

// ScopeKey is the uniqueness key of the public chat for a tenant scope.
// A nil or blank scope maps to the default public chat.
func ScopeKey(scope *string) string {
	if scope == nil {
		return scopeKeyPrefix
	}
	return scopeKeyPrefix + strings.TrimSpace(*scope)
}

// NormalizeScope returns nil for the default scope and a trimmed copy otherwise.
func NormalizeScope(scope *string) *string {
	if scope == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*scope)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
