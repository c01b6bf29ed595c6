package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	openapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/fleetify/api/api"
	"github.com/fleetify/api/internal/config"
	"github.com/fleetify/api/internal/handlers"
	"github.com/fleetify/api/internal/httpx"
	"github.com/fleetify/api/internal/importer"
	"github.com/fleetify/api/internal/jobs"
	"github.com/fleetify/api/internal/middleware"
	"github.com/fleetify/api/internal/progress"
	"github.com/fleetify/api/internal/store"
)

// Deps are the collaborators the HTTP layer runs on.
type Deps struct {
	Store    store.Store
	Tokens   middleware.TokenLookup
	Importer *importer.Importer
	Progress progress.Tracker
	// Queue may be nil; async imports then answer 503.
	Queue jobs.Enqueuer
}

// Spreadsheet parts of an upload are validated as opaque files.
var uploadContentTypes = []string{
	"text/csv",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

func NewRouter(cfg config.Config, deps Deps, logger *slog.Logger) (http.Handler, error) {
	for _, contentType := range uploadContentTypes {
		openapi3filter.RegisterBodyDecoder(contentType, openapi3filter.FileBodyDecoder)
	}

	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(api.Spec)
	if err != nil {
		return nil, fmt.Errorf("load openapi spec: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate openapi spec: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.SecurityHeaders(cfg.Env))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(middleware.NewBodyLimits(cfg.APIMaxBodyBytes,
		middleware.BodyLimitOverride{PathPrefix: "/v1/imports/", MaxBytes: cfg.ImportMaxBodyBytes},
	).Handler)

	apiRouter := chi.NewRouter()
	apiRouter.Use(openapimiddleware.OapiRequestValidatorWithOptions(doc, &openapimiddleware.Options{
		SilenceServersWarning: true,
		ErrorHandler: func(w http.ResponseWriter, message string, statusCode int) {
			requestID := w.Header().Get("X-Request-Id")
			httpx.WriteJSON(w, statusCode, middleware.ErrorEnvelope{
				Error:     middleware.ErrorBody{Code: "validation_error", Message: message},
				RequestID: requestID,
			})
		},
	}))

	h := handlers.NewServer(cfg, deps.Store, deps.Importer, deps.Progress, deps.Queue, logger)
	authMW := middleware.AuthMiddleware{Tokens: deps.Tokens, Logger: logger}
	importLimiter := middleware.NewIPRateLimiterWithMaxEntries(cfg.ImportRateLimit, cfg.RateLimitWindow, cfg.RateLimitMaxIPs)
	limitImports := importLimiter.Middleware("Too many import requests")

	apiRouter.Get("/health", h.GetHealth)

	apiRouter.Group(func(protected chi.Router) {
		protected.Use(authMW.RequireAuth)

		protected.Route("/v1", func(v1 chi.Router) {
			v1.With(middleware.RequireScope(middleware.ScopeImportsRead)).Get("/import-kinds", h.ListImportKinds)
			v1.With(middleware.RequireScope(middleware.ScopeImportsRead)).Get("/imports/templates/{kind}", func(w http.ResponseWriter, r *http.Request) {
				h.GetImportTemplate(w, r, chi.URLParam(r, "kind"))
			})

			v1.With(middleware.RequireScope(middleware.ScopeImportsRead)).Get("/imports/runs/{runId}", withUUID("runId", h.GetImportRun))
			v1.With(middleware.RequireScope(middleware.ScopeImportsRead)).Get("/imports/runs/{runId}/errors.csv", withUUID("runId", h.GetImportRunErrors))

			v1.Group(func(writes chi.Router) {
				writes.Use(middleware.RequireScope(middleware.ScopeImportsWrite), limitImports)
				writes.Post("/imports/{kind}", func(w http.ResponseWriter, r *http.Request) {
					h.RunImport(w, r, chi.URLParam(r, "kind"))
				})
				writes.Post("/imports/{kind}/async", func(w http.ResponseWriter, r *http.Request) {
					h.QueueImport(w, r, chi.URLParam(r, "kind"))
				})
				writes.Post("/imports/{kind}/upload", func(w http.ResponseWriter, r *http.Request) {
					h.UploadImport(w, r, chi.URLParam(r, "kind"))
				})
			})

			v1.With(middleware.RequireScope(middleware.ScopePaymentsMatch)).Get("/payments/{paymentId}/matches", withUUID("paymentId", h.ListPaymentMatches))
			v1.With(middleware.RequireScope(middleware.ScopePaymentsLink)).Post("/payments/{paymentId}/link", withUUID("paymentId", h.LinkPayment))
		})
	})

	r.Mount("/api", apiRouter)
	return r, nil
}

func withUUID(param string, next func(http.ResponseWriter, *http.Request, openapi_types.UUID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, param))
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "invalid_id", param+" must be a UUID", nil)
			return
		}
		next(w, r, id)
	}
}
