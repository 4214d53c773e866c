// Package scope provides the tenant + legal-entity ownership scope that
// partitions every stock figure, and request-scoped context helpers.
package scope

import (
	"context"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
)

// Scope identifies the owner of a ledger record. Tenants are fully
// isolated from each other; legal entities partition figures inside a
// tenant. Every repository query is constrained by a Scope.
type Scope struct {
	TenantID      string `db:"tenant_id" json:"tenantId"`
	LegalEntityID id.ID  `db:"legal_entity_id" json:"legalEntityId"`
}

// New builds a Scope from its parts.
func New(tenantID string, legalEntityID id.ID) Scope {
	return Scope{TenantID: tenantID, LegalEntityID: legalEntityID}
}

// Validate checks that both scope parts are set.
func (s Scope) Validate() error {
	if s.TenantID == "" {
		return apperror.NewInvalidInput("tenant is required").WithDetail("field", "tenantId")
	}
	if id.IsNil(s.LegalEntityID) {
		return apperror.NewInvalidInput("legal entity is required").WithDetail("field", "legalEntityId")
	}
	return nil
}

// Equal reports whether two scopes identify the same owner.
func (s Scope) Equal(other Scope) bool {
	return s.TenantID == other.TenantID && s.LegalEntityID == other.LegalEntityID
}

type scopeKey struct{}

// WithScope stores the request scope in context.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// FromContext returns the scope from context, if any.
func FromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(Scope)
	return s, ok
}

// TenantIDFromContext returns the tenant id from context or empty string.
func TenantIDFromContext(ctx context.Context) string {
	if s, ok := FromContext(ctx); ok {
		return s.TenantID
	}
	return ""
}
