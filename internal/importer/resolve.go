package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fleetify/api/internal/store"
)

// Resolution is the outcome of looking up a referenced record. Candidates
// counts the name matches when the lookup got that far.
type Resolution struct {
	ID         uuid.UUID
	Resolved   bool
	Candidates int
}

// Resolver finds referenced records within one tenant.
type Resolver struct {
	store    store.Store
	tenantID uuid.UUID
}

func NewResolver(s store.Store, tenantID uuid.UUID) *Resolver {
	return &Resolver{store: s, tenantID: tenantID}
}

// Resolve trusts an explicit ID, then tries the natural key, then a
// partial name match (narrowed by phone when one is given). A name lookup
// only resolves when it finds exactly one record. Store failures are the
// only errors; not finding anything is an unresolved Resolution.
func (r *Resolver) Resolve(ctx context.Context, target *Kind, in RefInput) (Resolution, error) {
	if in.ID != "" {
		id, err := uuid.Parse(in.ID)
		if err != nil {
			return Resolution{}, fmt.Errorf("parse id %q: %w", in.ID, err)
		}
		return Resolution{ID: id, Resolved: true}, nil
	}

	if in.Code != "" {
		rec, err := r.store.FindByNaturalKey(ctx, r.tenantID, target.Entity, in.Code)
		if err == nil {
			return Resolution{ID: rec.ID, Resolved: true, Candidates: 1}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return Resolution{}, fmt.Errorf("look up %s %s: %w", target.Name, in.Code, err)
		}
	}

	filter := store.Filter{Limit: 2}
	if in.Name != "" && target.NameField != "" {
		filter.Contains = map[string]string{target.NameField: in.Name}
	}
	if in.Phone != "" && target.PhoneField != "" {
		filter.Eq = map[string]string{target.PhoneField: in.Phone}
	}
	if filter.Contains == nil && filter.Eq == nil {
		return Resolution{}, nil
	}

	matches, err := r.store.Find(ctx, r.tenantID, target.Entity, filter)
	if err != nil {
		return Resolution{}, fmt.Errorf("search %s: %w", target.Name, err)
	}
	if len(matches) != 1 {
		return Resolution{Candidates: len(matches)}, nil
	}
	return Resolution{ID: matches[0].ID, Resolved: true, Candidates: 1}, nil
}
