package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Postgres stores records as JSONB rows in the records table.
type Postgres struct {
	db querier
}

func NewPostgres(db querier) *Postgres {
	return &Postgres{db: db}
}

const recordColumns = `id, tenant_id, entity, natural_key, data, created_at, updated_at`

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec Record
		raw []byte
	)
	if err := row.Scan(&rec.ID, &rec.TenantID, &rec.Entity, &rec.NaturalKey, &raw, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return Record{}, err
	}
	rec.Data = Data{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &rec.Data); err != nil {
			return Record{}, fmt.Errorf("decode record data: %w", err)
		}
	}
	return rec, nil
}

func (p *Postgres) Get(ctx context.Context, tenantID uuid.UUID, entity string, id uuid.UUID) (Record, error) {
	return p.get(ctx, tenantID, entity, id, "")
}

// GetForUpdate takes a row lock; outside a transaction it is released at
// once.
func (p *Postgres) GetForUpdate(ctx context.Context, tenantID uuid.UUID, entity string, id uuid.UUID) (Record, error) {
	return p.get(ctx, tenantID, entity, id, "FOR UPDATE")
}

func (p *Postgres) get(ctx context.Context, tenantID uuid.UUID, entity string, id uuid.UUID, lock string) (Record, error) {
	rec, err := scanRecord(p.db.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM records
		WHERE tenant_id = $1 AND entity = $2 AND id = $3
		`+lock, tenantID, entity, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get %s: %w", entity, err)
	}
	return rec, nil
}

func (p *Postgres) FindByNaturalKey(ctx context.Context, tenantID uuid.UUID, entity, key string) (Record, error) {
	if key == "" {
		return Record{}, ErrNotFound
	}
	rec, err := scanRecord(p.db.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM records
		WHERE tenant_id = $1 AND entity = $2 AND natural_key = $3
	`, tenantID, entity, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("find %s by key: %w", entity, err)
	}
	return rec, nil
}

func (p *Postgres) Find(ctx context.Context, tenantID uuid.UUID, entity string, filter Filter) ([]Record, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + recordColumns + ` FROM records WHERE tenant_id = $1 AND entity = $2`)
	args := []any{tenantID, entity}

	for _, field := range sortedKeys(filter.Eq) {
		args = append(args, field, filter.Eq[field])
		fmt.Fprintf(&sb, ` AND data->>$%d::text = $%d::text`, len(args)-1, len(args))
	}
	for _, field := range sortedKeys(filter.Contains) {
		args = append(args, field, "%"+escapeLike(filter.Contains[field])+"%")
		fmt.Fprintf(&sb, ` AND data->>$%d::text ILIKE $%d::text`, len(args)-1, len(args))
	}
	sb.WriteString(` ORDER BY created_at, id`)
	if filter.Limit > 0 {
		sb.WriteString(` LIMIT ` + strconv.Itoa(filter.Limit))
	}

	rows, err := p.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", entity, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", entity, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find %s: %w", entity, err)
	}
	return out, nil
}

func (p *Postgres) Create(ctx context.Context, tenantID uuid.UUID, entity string, rec Record) (Record, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	data, err := json.Marshal(nonNilData(rec.Data))
	if err != nil {
		return Record{}, fmt.Errorf("encode %s data: %w", entity, err)
	}
	created, err := scanRecord(p.db.QueryRow(ctx, `
		INSERT INTO records (id, tenant_id, entity, natural_key, data)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+recordColumns, rec.ID, tenantID, entity, rec.NaturalKey, data))
	if err != nil {
		if isUniqueViolation(err) {
			return Record{}, fmt.Errorf("create %s %s: %w", entity, rec.NaturalKey, ErrConflict)
		}
		return Record{}, fmt.Errorf("create %s: %w", entity, err)
	}
	return created, nil
}

func (p *Postgres) Update(ctx context.Context, tenantID uuid.UUID, entity string, id uuid.UUID, data Data) (Record, error) {
	patch, err := json.Marshal(nonNilData(data))
	if err != nil {
		return Record{}, fmt.Errorf("encode %s data: %w", entity, err)
	}
	updated, err := scanRecord(p.db.QueryRow(ctx, `
		UPDATE records
		SET data = data || $4::jsonb, updated_at = now()
		WHERE tenant_id = $1 AND entity = $2 AND id = $3
		RETURNING `+recordColumns, tenantID, entity, id, patch))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("update %s: %w", entity, err)
	}
	return updated, nil
}

func (p *Postgres) Delete(ctx context.Context, tenantID uuid.UUID, entity string, id uuid.UUID) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM records WHERE tenant_id = $1 AND entity = $2 AND id = $3`, tenantID, entity, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", entity, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) LastSequence(ctx context.Context, tenantID uuid.UUID, entity, prefix string) (int, error) {
	var last int64
	err := p.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(substring(natural_key FROM char_length($3::text) + 1)::bigint), 0)
		FROM records
		WHERE tenant_id = $1
			AND entity = $2
			AND left(natural_key, char_length($3::text)) = $3::text
			AND substring(natural_key FROM char_length($3::text) + 1) ~ '^[0-9]{1,18}$'
	`, tenantID, entity, prefix).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("last %s sequence: %w", entity, err)
	}
	return int(last), nil
}

func (p *Postgres) InTx(ctx context.Context, fn func(Store) error) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&Postgres{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (p *Postgres) PrincipalByTokenHash(ctx context.Context, tokenHash string) (Principal, error) {
	var principal Principal
	err := p.db.QueryRow(ctx, `
		SELECT t.id, t.tenant_id, t.user_id, tn.name, u.email, t.scopes
		FROM api_tokens t
		JOIN tenants tn ON tn.id = t.tenant_id
		JOIN users u ON u.id = t.user_id AND u.tenant_id = t.tenant_id
		WHERE t.token_hash = $1
			AND t.revoked_at IS NULL
			AND (t.expires_at IS NULL OR t.expires_at > now())
	`, tokenHash).Scan(&principal.TokenID, &principal.TenantID, &principal.UserID, &principal.TenantName, &principal.UserEmail, &principal.Scopes)
	if errors.Is(err, pgx.ErrNoRows) {
		return Principal{}, ErrNotFound
	}
	if err != nil {
		return Principal{}, fmt.Errorf("load token principal: %w", err)
	}
	_, _ = p.db.Exec(ctx, `UPDATE api_tokens SET last_used_at = $2 WHERE id = $1`, principal.TokenID, time.Now().UTC())
	return principal, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func nonNilData(d Data) Data {
	if d == nil {
		return Data{}
	}
	return d
}
