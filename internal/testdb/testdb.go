// Package testdb prepares a clean PostgreSQL schema for integration tests.
// Tests that use it skip unless TEST_DATABASE_URL is set; run them with
// -p 1 because every package resets the same schema.
package testdb

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/fleetify/api/internal/db"
	"github.com/fleetify/api/migrations"
)

func Open(t *testing.T) *pgxpool.Pool {
	t.Helper()
	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, databaseURL)
	if err != nil {
		t.Fatalf("connect test db: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, `DROP SCHEMA public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("drop schema: %v", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		t.Fatalf("set goose dialect: %v", err)
	}
	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return pool
}

// SeedTenant inserts a tenant and one user and returns their IDs.
func SeedTenant(t *testing.T, pool *pgxpool.Pool, slug, email string) (uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	var tenantID, userID uuid.UUID
	if err := pool.QueryRow(ctx, `INSERT INTO tenants (slug, name) VALUES ($1, $1) RETURNING id`, slug).Scan(&tenantID); err != nil {
		t.Fatalf("insert tenant: %v", err)
	}
	if err := pool.QueryRow(ctx, `
		INSERT INTO users (tenant_id, email, full_name) VALUES ($1, $2, $2) RETURNING id
	`, tenantID, email).Scan(&userID); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return tenantID, userID
}

// SeedToken stores tokenHash for the user with the given scopes.
func SeedToken(t *testing.T, pool *pgxpool.Pool, tenantID, userID uuid.UUID, tokenHash string, scopes []string) {
	t.Helper()
	if _, err := pool.Exec(context.Background(), `
		INSERT INTO api_tokens (tenant_id, user_id, name, token_hash, scopes)
		VALUES ($1, $2, 'test', $3, $4)
	`, tenantID, userID, tokenHash, scopes); err != nil {
		t.Fatalf("insert token: %v", err)
	}
}
