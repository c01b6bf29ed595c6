// Package store is the tenant-scoped record store behind imports and
// reconciliation. Every call takes a tenant ID and never reads or writes
// outside that tenant.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("natural key already exists")
)

type Record struct {
	ID         uuid.UUID `json:"id"`
	TenantID   uuid.UUID `json:"tenantId"`
	Entity     string    `json:"entity"`
	NaturalKey string    `json:"naturalKey,omitempty"`
	Data       Data      `json:"data"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Filter selects records of one entity. Eq compares the text form of a
// data field exactly; Contains is a case-insensitive substring match.
// Conditions are AND-ed. Limit <= 0 means no limit.
type Filter struct {
	Eq       map[string]string
	Contains map[string]string
	Limit    int
}

type Store interface {
	Get(ctx context.Context, tenantID uuid.UUID, entity string, id uuid.UUID) (Record, error)
	// GetForUpdate is Get that also holds the record against concurrent
	// writers until the surrounding InTx returns.
	GetForUpdate(ctx context.Context, tenantID uuid.UUID, entity string, id uuid.UUID) (Record, error)
	FindByNaturalKey(ctx context.Context, tenantID uuid.UUID, entity, key string) (Record, error)
	Find(ctx context.Context, tenantID uuid.UUID, entity string, filter Filter) ([]Record, error)
	// Create inserts rec. A zero ID is replaced with a new one.
	Create(ctx context.Context, tenantID uuid.UUID, entity string, rec Record) (Record, error)
	// Update merges data into the record's existing data.
	Update(ctx context.Context, tenantID uuid.UUID, entity string, id uuid.UUID, data Data) (Record, error)
	Delete(ctx context.Context, tenantID uuid.UUID, entity string, id uuid.UUID) error
	// LastSequence returns the highest numeric suffix among natural keys of
	// the form prefix+digits, or 0 when there are none.
	LastSequence(ctx context.Context, tenantID uuid.UUID, entity, prefix string) (int, error)
	// InTx runs fn against a store whose writes commit together or not at all.
	InTx(ctx context.Context, fn func(Store) error) error
}

// Principal is the tenant and user an API token acts for.
type Principal struct {
	TokenID    uuid.UUID
	TenantID   uuid.UUID
	UserID     uuid.UUID
	TenantName string
	UserEmail  string
	Scopes     []string
}
