package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Overlay is a copy-on-write view over a base Store. Reads see the base
// plus everything written through the overlay; writes never reach the
// base. Dry-run imports execute against an overlay so they behave exactly
// like a real run without persisting anything.
type Overlay struct {
	base  Store
	layer *Memory

	mu      sync.RWMutex
	deleted map[uuid.UUID]bool
}

func NewOverlay(base Store) *Overlay {
	return &Overlay{base: base, layer: NewMemory(), deleted: map[uuid.UUID]bool{}}
}

func (o *Overlay) isDeleted(id uuid.UUID) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.deleted[id]
}

func (o *Overlay) Get(ctx context.Context, tenantID uuid.UUID, entity string, id uuid.UUID) (Record, error) {
	if rec, err := o.layer.Get(ctx, tenantID, entity, id); err == nil {
		return rec, nil
	}
	if o.isDeleted(id) {
		return Record{}, ErrNotFound
	}
	return o.base.Get(ctx, tenantID, entity, id)
}

// GetForUpdate is Get. Overlay writes never reach the base, so base rows
// are not locked.
func (o *Overlay) GetForUpdate(ctx context.Context, tenantID uuid.UUID, entity string, id uuid.UUID) (Record, error) {
	return o.Get(ctx, tenantID, entity, id)
}

func (o *Overlay) FindByNaturalKey(ctx context.Context, tenantID uuid.UUID, entity, key string) (Record, error) {
	if rec, err := o.layer.FindByNaturalKey(ctx, tenantID, entity, key); err == nil {
		return rec, nil
	}
	rec, err := o.base.FindByNaturalKey(ctx, tenantID, entity, key)
	if err != nil {
		return Record{}, err
	}
	if o.isDeleted(rec.ID) {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (o *Overlay) Find(ctx context.Context, tenantID uuid.UUID, entity string, filter Filter) ([]Record, error) {
	layered, err := o.layer.Find(ctx, tenantID, entity, Filter{Eq: filter.Eq, Contains: filter.Contains})
	if err != nil {
		return nil, err
	}
	shadowed, err := o.layer.Find(ctx, tenantID, entity, Filter{})
	if err != nil {
		return nil, err
	}

	baseFilter := filter
	if filter.Limit > 0 {
		baseFilter.Limit = filter.Limit + len(shadowed)
	}
	baseRecords, err := o.base.Find(ctx, tenantID, entity, baseFilter)
	if err != nil {
		return nil, err
	}

	hidden := make(map[uuid.UUID]bool, len(shadowed))
	for _, rec := range shadowed {
		hidden[rec.ID] = true
	}
	out := make([]Record, 0, len(baseRecords)+len(layered))
	for _, rec := range baseRecords {
		if hidden[rec.ID] || o.isDeleted(rec.ID) {
			continue
		}
		out = append(out, rec)
	}
	out = append(out, layered...)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (o *Overlay) Create(ctx context.Context, tenantID uuid.UUID, entity string, rec Record) (Record, error) {
	if rec.NaturalKey != "" {
		if _, err := o.FindByNaturalKey(ctx, tenantID, entity, rec.NaturalKey); err == nil {
			return Record{}, fmt.Errorf("create %s %s: %w", entity, rec.NaturalKey, ErrConflict)
		} else if !errors.Is(err, ErrNotFound) {
			return Record{}, err
		}
	}
	return o.layer.Create(ctx, tenantID, entity, rec)
}

func (o *Overlay) Update(ctx context.Context, tenantID uuid.UUID, entity string, id uuid.UUID, data Data) (Record, error) {
	if _, err := o.layer.Get(ctx, tenantID, entity, id); err != nil {
		if o.isDeleted(id) {
			return Record{}, ErrNotFound
		}
		rec, err := o.base.Get(ctx, tenantID, entity, id)
		if err != nil {
			return Record{}, err
		}
		o.layer.mu.Lock()
		o.layer.put(rec)
		o.layer.mu.Unlock()
	}
	return o.layer.Update(ctx, tenantID, entity, id, data)
}

func (o *Overlay) Delete(ctx context.Context, tenantID uuid.UUID, entity string, id uuid.UUID) error {
	if _, err := o.Get(ctx, tenantID, entity, id); err != nil {
		return err
	}
	if err := o.layer.Delete(ctx, tenantID, entity, id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	o.mu.Lock()
	o.deleted[id] = true
	o.mu.Unlock()
	return nil
}

func (o *Overlay) LastSequence(ctx context.Context, tenantID uuid.UUID, entity, prefix string) (int, error) {
	base, err := o.base.LastSequence(ctx, tenantID, entity, prefix)
	if err != nil {
		return 0, err
	}
	layered, err := o.layer.LastSequence(ctx, tenantID, entity, prefix)
	if err != nil {
		return 0, err
	}
	return max(base, layered), nil
}

func (o *Overlay) InTx(ctx context.Context, fn func(Store) error) error {
	o.mu.RLock()
	deleted := make(map[uuid.UUID]bool, len(o.deleted))
	for id := range o.deleted {
		deleted[id] = true
	}
	o.mu.RUnlock()

	err := o.layer.InTx(ctx, func(Store) error { return fn(overlayTx{o}) })
	if err != nil {
		o.mu.Lock()
		o.deleted = deleted
		o.mu.Unlock()
	}
	return err
}

type overlayTx struct {
	*Overlay
}

func (tx overlayTx) InTx(ctx context.Context, fn func(Store) error) error {
	return fn(tx)
}
