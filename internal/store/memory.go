package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store. Data passes through a JSON round trip on
// every write so reads look the same as they do from PostgreSQL.
// Transactions run one at a time and restore a snapshot when fn fails.
// Writes made outside InTx are not isolated from them.
type Memory struct {
	txMu    sync.Mutex
	mu      sync.RWMutex
	records map[uuid.UUID]Record
	order   []uuid.UUID
	keys    map[string]uuid.UUID
	tokens  map[string]Principal
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		records: map[uuid.UUID]Record{},
		keys:    map[string]uuid.UUID{},
		tokens:  map[string]Principal{},
		now:     time.Now,
	}
}

func naturalKeyIndex(tenantID uuid.UUID, entity, key string) string {
	return tenantID.String() + "|" + entity + "|" + key
}

func (m *Memory) Get(ctx context.Context, tenantID uuid.UUID, entity string, id uuid.UUID) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok || rec.TenantID != tenantID || rec.Entity != entity {
		return Record{}, ErrNotFound
	}
	return copyRecord(rec), nil
}

// GetForUpdate is Get; InTx already serialises transactions.
func (m *Memory) GetForUpdate(ctx context.Context, tenantID uuid.UUID, entity string, id uuid.UUID) (Record, error) {
	return m.Get(ctx, tenantID, entity, id)
}

func (m *Memory) FindByNaturalKey(ctx context.Context, tenantID uuid.UUID, entity, key string) (Record, error) {
	if key == "" {
		return Record{}, ErrNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.keys[naturalKeyIndex(tenantID, entity, key)]
	if !ok {
		return Record{}, ErrNotFound
	}
	return copyRecord(m.records[id]), nil
}

func (m *Memory) Find(ctx context.Context, tenantID uuid.UUID, entity string, filter Filter) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, id := range m.order {
		rec, ok := m.records[id]
		if !ok || rec.TenantID != tenantID || rec.Entity != entity {
			continue
		}
		if !matches(rec, filter) {
			continue
		}
		out = append(out, copyRecord(rec))
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) Create(ctx context.Context, tenantID uuid.UUID, entity string, rec Record) (Record, error) {
	data, err := normalizeData(rec.Data)
	if err != nil {
		return Record{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if _, exists := m.records[rec.ID]; exists {
		return Record{}, fmt.Errorf("create %s: %w", entity, ErrConflict)
	}
	if rec.NaturalKey != "" {
		if _, exists := m.keys[naturalKeyIndex(tenantID, entity, rec.NaturalKey)]; exists {
			return Record{}, fmt.Errorf("create %s %s: %w", entity, rec.NaturalKey, ErrConflict)
		}
	}
	now := m.now().UTC()
	rec.TenantID = tenantID
	rec.Entity = entity
	rec.Data = data
	rec.CreatedAt = now
	rec.UpdatedAt = now
	m.put(rec)
	return copyRecord(rec), nil
}

func (m *Memory) Update(ctx context.Context, tenantID uuid.UUID, entity string, id uuid.UUID, data Data) (Record, error) {
	patch, err := normalizeData(data)
	if err != nil {
		return Record{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || rec.TenantID != tenantID || rec.Entity != entity {
		return Record{}, ErrNotFound
	}
	merged := Data{}
	for k, v := range rec.Data {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	rec.Data = merged
	rec.UpdatedAt = m.now().UTC()
	m.records[id] = rec
	return copyRecord(rec), nil
}

func (m *Memory) Delete(ctx context.Context, tenantID uuid.UUID, entity string, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || rec.TenantID != tenantID || rec.Entity != entity {
		return ErrNotFound
	}
	delete(m.records, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
	if rec.NaturalKey != "" {
		delete(m.keys, naturalKeyIndex(tenantID, entity, rec.NaturalKey))
	}
	return nil
}

func (m *Memory) LastSequence(ctx context.Context, tenantID uuid.UUID, entity, prefix string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	last := 0
	for _, rec := range m.records {
		if rec.TenantID != tenantID || rec.Entity != entity {
			continue
		}
		if n, ok := sequenceSuffix(rec.NaturalKey, prefix); ok && n > last {
			last = n
		}
	}
	return last, nil
}

func (m *Memory) InTx(ctx context.Context, fn func(Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snapshot := m.snapshot()
	if err := fn(memoryTx{m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

// memoryTx is the store handed to a transaction body. A nested InTx joins
// the running transaction.
type memoryTx struct {
	*Memory
}

func (tx memoryTx) InTx(ctx context.Context, fn func(Store) error) error {
	return fn(tx)
}

// AddToken registers a token hash for PrincipalByTokenHash.
func (m *Memory) AddToken(tokenHash string, principal Principal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[tokenHash] = principal
}

func (m *Memory) PrincipalByTokenHash(ctx context.Context, tokenHash string) (Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	principal, ok := m.tokens[tokenHash]
	if !ok {
		return Principal{}, ErrNotFound
	}
	return principal, nil
}

// put stores rec as-is. Callers hold the write lock.
func (m *Memory) put(rec Record) {
	if _, exists := m.records[rec.ID]; !exists {
		m.order = append(m.order, rec.ID)
	}
	m.records[rec.ID] = rec
	if rec.NaturalKey != "" {
		m.keys[naturalKeyIndex(rec.TenantID, rec.Entity, rec.NaturalKey)] = rec.ID
	}
}

type memorySnapshot struct {
	records map[uuid.UUID]Record
	order   []uuid.UUID
	keys    map[string]uuid.UUID
}

func (m *Memory) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := memorySnapshot{
		records: make(map[uuid.UUID]Record, len(m.records)),
		order:   append([]uuid.UUID(nil), m.order...),
		keys:    make(map[string]uuid.UUID, len(m.keys)),
	}
	for id, rec := range m.records {
		snap.records[id] = rec
	}
	for k, id := range m.keys {
		snap.keys[k] = id
	}
	return snap
}

func (m *Memory) restore(snap memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = snap.records
	m.order = snap.order
	m.keys = snap.keys
}

func matches(rec Record, filter Filter) bool {
	for field, want := range filter.Eq {
		if rec.Data.Text(field) != want {
			return false
		}
	}
	for field, want := range filter.Contains {
		if !strings.Contains(strings.ToLower(rec.Data.Text(field)), strings.ToLower(want)) {
			return false
		}
	}
	return true
}

func copyRecord(rec Record) Record {
	data := make(Data, len(rec.Data))
	for k, v := range rec.Data {
		data[k] = v
	}
	rec.Data = data
	return rec
}

func sequenceSuffix(key, prefix string) (int, bool) {
	if !strings.HasPrefix(key, prefix) {
		return 0, false
	}
	digits := key[len(prefix):]
	if digits == "" || len(digits) > 18 {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}
