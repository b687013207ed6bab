package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/fuomag9/paperdrive/internal/config"
	"github.com/fuomag9/paperdrive/internal/library"
	"github.com/fuomag9/paperdrive/internal/logger"
	"github.com/fuomag9/paperdrive/internal/oauth"
	"github.com/fuomag9/paperdrive/internal/storage"
	"github.com/fuomag9/paperdrive/internal/topics"
)

// Library is the application surface the handlers call.
type Library interface {
	BeginAuthorization(ctx context.Context, ownerHint string) (oauth.Authorization, error)
	CompleteAuthorization(ctx context.Context, state, code, callbackURL string) (library.Session, error)
	ListTopics(ctx context.Context, workspaceID string) ([]string, error)
	ListRecords(ctx context.Context, workspaceID, topic string) ([]topics.Record, error)
	IngestDocument(ctx context.Context, workspaceID, topic, filename string, data []byte) (library.IngestResult, error)
	IngestByIdentifier(ctx context.Context, workspaceID, topic, identifier string) (library.IngestResult, error)
	UpdateRecord(ctx context.Context, workspaceID, topic string, serial int, patch topics.Patch) (topics.Record, error)
	DeleteRecord(ctx context.Context, workspaceID, topic string, serial int) error
	UploadDocuments(ctx context.Context, workspaceID string, docs []library.Document) ([]storage.File, error)
}

var _ Library = (*library.Service)(nil)

// NewRouter creates a new HTTP router
func NewRouter(cfg *config.Config, lib Library, limiter *RateLimiter, log *logger.Logger) http.Handler {
	log = log.With("component", "api")
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeadersMiddleware(cfg))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(limiter))

		r.Get("/authorize", HandleAuthorize(lib, log))
		r.Get("/oauth2callback", HandleOAuthCallback(cfg, lib, log))

		r.Route("/api", func(r chi.Router) {
			r.Get("/topics", HandleListTopics(lib, log))
			r.Get("/records", HandleListRecords(lib, log))
			r.Patch("/records/{serial}", HandleUpdateRecord(lib, log))
			r.Delete("/records/{serial}", HandleDeleteRecord(lib, log))
			r.Post("/documents", HandleIngestDocuments(lib, log))
			r.Post("/documents/raw", HandleUploadDocuments(lib, log))
			r.Post("/identifiers", HandleIngestIdentifiers(lib, log))
		})
	})

	return r
}
