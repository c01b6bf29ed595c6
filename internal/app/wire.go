package app

import (
	"fmt"
	"log/slog"

	"github.com/fleetify/api/internal/config"
	"github.com/fleetify/api/internal/db"
	"github.com/fleetify/api/internal/importer"
	"github.com/fleetify/api/internal/store"
)

// NewImporter builds the importer the server, worker and CLI share.
func NewImporter(cfg config.Config, s store.Store, logger *slog.Logger) (*importer.Importer, error) {
	catalog, err := importer.LoadCatalog(cfg.KindsFile)
	if err != nil {
		return nil, fmt.Errorf("load import kinds: %w", err)
	}
	opts := []importer.Option{importer.WithRowTimeout(cfg.ImportRowTimeout)}
	if logger != nil {
		opts = append(opts, importer.WithLogger(logger))
	}
	return importer.New(s, catalog, opts...), nil
}

func RedisOptions(cfg config.Config) db.RedisOptions {
	return db.RedisOptions{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}
