package importer

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fleetify/api/internal/store"
)

// Allocator hands out PREFIX-NNNN natural keys for one run. The highest
// existing number is read once per entity; later keys are counted in memory.
type Allocator struct {
	store    store.Store
	tenantID uuid.UUID
	last     map[string]int
}

func NewAllocator(s store.Store, tenantID uuid.UUID) *Allocator {
	return &Allocator{store: s, tenantID: tenantID, last: map[string]int{}}
}

func (a *Allocator) Next(ctx context.Context, entity string, seq Sequence) (string, error) {
	counter := entity + "|" + seq.Prefix
	last, ok := a.last[counter]
	if !ok {
		var err error
		last, err = a.store.LastSequence(ctx, a.tenantID, entity, seq.Prefix)
		if err != nil {
			return "", fmt.Errorf("read %s sequence: %w", entity, err)
		}
	}
	last++
	a.last[counter] = last
	return FormatKey(seq, last), nil
}

func FormatKey(seq Sequence, n int) string {
	return fmt.Sprintf("%s%0*d", seq.Prefix, seq.Width, n)
}
