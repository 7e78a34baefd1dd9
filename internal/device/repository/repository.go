// Package repository persists the per-tenant device record: the durable set
// of session identifiers expected to be active for a tenant. Records are
// replayed at bootstrap to recreate sessions after a process restart.
package repository

import "context"

// Repository defines persistence for device records. All operations are
// idempotent; implementations serialize read-modify-write per tenant so
// concurrent transitions of two sessions under the same tenant cannot lose
// updates.
type Repository interface {
	// List returns the session ids recorded for the tenant; empty when
	// none are recorded.
	List(ctx context.Context, tenantID string) ([]string, error)
	// Add records a session id for the tenant. No-op if already present.
	Add(ctx context.Context, tenantID, sessionID string) error
	// Remove deletes a session id for the tenant. No-op if absent.
	Remove(ctx context.Context, tenantID, sessionID string) error
	// Tenants returns all tenants that have a device record.
	Tenants(ctx context.Context) ([]string, error)
}
