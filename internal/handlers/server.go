package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/fleetify/api/internal/audit"
	"github.com/fleetify/api/internal/config"
	"github.com/fleetify/api/internal/httpx"
	"github.com/fleetify/api/internal/importer"
	"github.com/fleetify/api/internal/jobs"
	"github.com/fleetify/api/internal/matching"
	"github.com/fleetify/api/internal/middleware"
	"github.com/fleetify/api/internal/progress"
	"github.com/fleetify/api/internal/runs"
	"github.com/fleetify/api/internal/store"
)

type Server struct {
	Config   config.Config
	Store    store.Store
	Importer *importer.Importer
	Runs     *runs.Repository
	Executor *runs.Executor
	// Queue is nil when no Redis is configured; async imports are then
	// refused.
	Queue   jobs.Enqueuer
	Matcher *matching.Matcher
	Linker  *matching.Linker
	Audit   *audit.Logger
	Logger  *slog.Logger
}

func NewServer(cfg config.Config, s store.Store, im *importer.Importer, tracker progress.Tracker, queue jobs.Enqueuer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	repo := runs.NewRepository(s)
	return &Server{
		Config:   cfg,
		Store:    s,
		Importer: im,
		Runs:     repo,
		Executor: runs.NewExecutor(repo, im, tracker, logger),
		Queue:    queue,
		Matcher:  matching.NewMatcher(matching.NewFinder(s, cfg.MatchPoolLimit), matching.NewScorer(cfg.Currency)),
		Linker:   matching.NewLinker(s),
		Audit:    audit.NewLogger(s),
		Logger:   logger,
	}
}

func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requireActor(w http.ResponseWriter, r *http.Request) (middleware.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok || actor.TenantID == uuid.Nil {
		httpx.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
		return middleware.Actor{}, false
	}
	return actor, true
}

func (s *Server) audit(r *http.Request, actor middleware.Actor, tenantID uuid.UUID, action, entityType string, entityID *uuid.UUID, metadata map[string]any) {
	userID := actor.UserID
	err := s.Audit.Log(r.Context(), audit.Entry{
		TenantID:   tenantID,
		UserID:     &userID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		RequestID:  middleware.RequestIDFromContext(r.Context()),
		Metadata:   metadata,
	})
	if err != nil {
		s.Logger.Warn("audit_log_failed", "action", action, "error", err, "request_id", middleware.RequestIDFromContext(r.Context()))
	}
}
