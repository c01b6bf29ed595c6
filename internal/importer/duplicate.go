package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fleetify/api/internal/store"
)

type Policy string

const (
	PolicySkipDuplicates Policy = "skip-duplicates"
	PolicyUpsert         Policy = "upsert"
)

func PolicyFor(opts Options) Policy {
	if opts.Upsert {
		return PolicyUpsert
	}
	return PolicySkipDuplicates
}

type Disposition string

const (
	DispositionInsert Disposition = "insert"
	DispositionUpdate Disposition = "update"
	DispositionSkip   Disposition = "skip"
)

// Decision is what to do with a row, plus the record it collides with.
type Decision struct {
	Disposition Disposition
	Existing    *store.Record
}

// Guard decides insert, update or skip by natural key within one tenant.
type Guard struct {
	store    store.Store
	tenantID uuid.UUID
	policy   Policy
}

func NewGuard(s store.Store, tenantID uuid.UUID, policy Policy) *Guard {
	return &Guard{store: s, tenantID: tenantID, policy: policy}
}

func (g *Guard) Check(ctx context.Context, entity, key string) (Decision, error) {
	if key == "" {
		return Decision{Disposition: DispositionInsert}, nil
	}
	existing, err := g.store.FindByNaturalKey(ctx, g.tenantID, entity, key)
	if errors.Is(err, store.ErrNotFound) {
		return Decision{Disposition: DispositionInsert}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("check duplicate %s %s: %w", entity, key, err)
	}
	if g.policy == PolicyUpsert {
		return Decision{Disposition: DispositionUpdate, Existing: &existing}, nil
	}
	return Decision{Disposition: DispositionSkip, Existing: &existing}, nil
}
