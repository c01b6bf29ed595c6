package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/fleetify/api/internal/config"
	"github.com/fleetify/api/migrations"
)

func main() {
	verbose := flag.Bool("v", false, "log every statement goose runs")
	flag.Usage = func() {
		log.Printf("usage: migrate [-v] [up|up-by-one|up-to VERSION|down|down-to VERSION|redo|status|version]")
	}
	flag.Parse()

	command := "up"
	var args []string
	if flag.NArg() > 0 {
		command = flag.Arg(0)
		args = flag.Args()[1:]
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	goose.SetVerbose(*verbose)
	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("goose dialect: %v", err)
	}
	if err := goose.RunContext(ctx, command, db, ".", args...); err != nil {
		log.Fatalf("goose %s: %v", command, err)
	}
}
