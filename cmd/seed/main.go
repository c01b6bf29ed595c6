package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fleetify/api/internal/app"
	"github.com/fleetify/api/internal/auth"
	"github.com/fleetify/api/internal/config"
	"github.com/fleetify/api/internal/db"
	"github.com/fleetify/api/internal/importer"
	"github.com/fleetify/api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	email := envOrDefault("SEED_ADMIN_EMAIL", "admin@local.fleetify")
	fullName := envOrDefault("SEED_ADMIN_NAME", "Local Admin")
	tenantSlug := envOrDefault("SEED_TENANT_SLUG", "local-dev")
	tenantName := envOrDefault("SEED_TENANT_NAME", "Local Dev Fleet")
	withDemo := envOrDefault("SEED_DEMO_DATA", "true") == "true"

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback(ctx)

	var tenantID uuid.UUID
	if err := tx.QueryRow(ctx, `
		INSERT INTO tenants (slug, name, currency)
		VALUES ($1, $2, $3)
		ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, tenantSlug, tenantName, cfg.Currency).Scan(&tenantID); err != nil {
		log.Fatalf("upsert tenant: %v", err)
	}

	var userID uuid.UUID
	if err := tx.QueryRow(ctx, `
		INSERT INTO users (tenant_id, email, full_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, lower(email)) DO UPDATE SET full_name = EXCLUDED.full_name
		RETURNING id
	`, tenantID, email, fullName).Scan(&userID); err != nil {
		log.Fatalf("upsert user: %v", err)
	}

	token, err := auth.GenerateToken()
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO api_tokens (tenant_id, user_id, name, token_hash, scopes)
		VALUES ($1, $2, 'seed', $3, $4)
	`, tenantID, userID, auth.HashToken(token), []string{"*"}); err != nil {
		log.Fatalf("insert token: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("commit tx: %v", err)
	}

	if withDemo {
		im, err := app.NewImporter(cfg, store.NewPostgres(pool), nil)
		if err != nil {
			log.Fatalf("build importer: %v", err)
		}
		for _, batch := range demoData() {
			result, err := im.Run(ctx, importer.Job{
				Kind:    batch.kind,
				UserID:  userID,
				Options: importer.Options{Upsert: true, TargetTenantID: tenantID.String()},
				Rows:    batch.rows,
			}, nil)
			if err != nil {
				log.Fatalf("seed %s: %v", batch.kind, err)
			}
			fmt.Printf("Seeded %s: %d written, %d failed\n", batch.kind, result.Successful, result.Failed)
			for _, rowErr := range result.Errors {
				fmt.Printf("  row %d: %s\n", rowErr.Row, rowErr.Message)
			}
		}
	}

	fmt.Printf("Seed completed. Tenant=%s (%s), user=%s\nAPI token (shown once): %s\n", tenantSlug, tenantID, email, token)
}

type batch struct {
	kind string
	rows []importer.Row
}

func demoData() []batch {
	rows := func(header string, lines ...string) []importer.Row {
		cols := strings.Split(header, ",")
		out := make([]importer.Row, 0, len(lines))
		for i, line := range lines {
			values := map[string]string{}
			for j, v := range strings.Split(line, ",") {
				values[cols[j]] = v
			}
			out = append(out, importer.Row{Number: i + 2, Values: values})
		}
		return out
	}
	return []batch{
		{kind: "customers", rows: rows("customer_code,name,phone",
			"CUS-0001,Ahmed Al-Sabah,+965 5555 1234",
			"CUS-0002,Fatima Al-Mutairi,+965 6666 4321",
		)},
		{kind: "vehicles", rows: rows("plate_number,make,model,year,daily_rate",
			"12-34567,Toyota,Camry,2023,15.000",
			"45-67890,Nissan,Patrol,2024,35.000",
		)},
		{kind: "invoices", rows: rows("invoice_number,invoice_date,total_amount,customer_code,description",
			"INV-0001,2025-01-15,250.000,CUS-0001,January rent Camry 12-34567",
			"INV-0002,2025-02-15,250.000,CUS-0001,February rent Camry 12-34567",
			"INV-0003,2025-02-01,900.000,CUS-0002,February rent Patrol 45-67890",
		)},
		{kind: "payments", rows: rows("payment_number,amount,payment_date,payment_method,customer_code,invoice_code,reference_number",
			"PAY-0001,250.000,2025-01-20,cash,CUS-0001,INV-0001,INV-0001",
			"PAY-0002,250.000,2025-02-18,knet,CUS-0001,,INV-0002",
			"PAY-0003,400.000,2025-02-05,bank transfer,CUS-0002,,",
		)},
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
