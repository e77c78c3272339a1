// Package api provides the REST API for aircraft status.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"fleet_status/internal/ledger"
)

// Server exposes the ledger over HTTP.
type Server struct {
	ledger      *ledger.Ledger
	port        int
	authEnabled bool
	apiKeys     map[string]string // Key to actor name.
	corsOrigins []string
	log         *zap.Logger
}

// Config holds configuration for the API server.
type Config struct {
	Port        int
	AuthEnabled bool
	// APIKeys lists accepted keys as "actor:key" or a bare "key"; the actor
	// name is recorded on every transition made with that key.
	APIKeys     []string
	CORSOrigins []string
	Logger      *zap.Logger
}

// NewServer creates a new API server.
func NewServer(l *ledger.Ledger, cfg Config) *Server {
	keys := make(map[string]string)
	for i, k := range cfg.APIKeys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		actor, key, ok := strings.Cut(k, ":")
		if !ok || actor == "" {
			actor, key = fmt.Sprintf("api-key-%d", i+1), k
		}
		keys[key] = actor
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Server{
		ledger:      l,
		port:        cfg.Port,
		authEnabled: cfg.AuthEnabled,
		apiKeys:     keys,
		corsOrigins: origins,
		log:         log.Named("api"),
	}
}

// Handler returns the full HTTP handler with middleware, serving the API
// under /api/v1.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Standard middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS for browser access.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))

	r.Mount("/api/v1", s.Router())
	return r
}

// Router returns the API routes without the /api/v1 prefix or the
// outer middleware, for embedding and tests.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	// Health check (no auth required).
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.authEnabled {
			r.Use(s.authMiddleware)
		} else {
			r.Use(anonymous)
		}

		r.Get("/aircraft", s.handleListAircraft)
		r.Post("/aircraft", s.handleCreateAircraft)
		r.Get("/aircraft/aog", s.handleListAOG)
		r.Get("/aircraft/{id}", s.handleGetDossier)
		r.Patch("/aircraft/{id}", s.handleUpdateAircraft)
		r.Post("/aircraft/{id}/status", s.handleTransition)
		r.Post("/aircraft/{id}/limits", s.handleAddLimit)
		r.Post("/aircraft/{id}/forms", s.handleAddForm)

		r.Get("/status/{status}", s.handleListByStatus)
		r.Get("/stats", s.handleStats)
		r.Get("/archive", s.handleArchive)

		r.Post("/limits/{id}/resolve", s.handleResolveLimit)
		r.Delete("/limits/{id}", s.handleDeleteLimit)
		r.Delete("/forms/{id}", s.handleDeleteForm)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("API listening",
			zap.String("addr", srv.Addr),
			zap.Bool("auth", s.authEnabled))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type actorKey struct{}

// ActorFrom returns the authenticated caller stored by the auth middleware.
func ActorFrom(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}

func withActor(r *http.Request, actor string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), actorKey{}, actor))
}

func anonymous(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, withActor(r, "anonymous"))
	})
}

// authMiddleware validates API key authentication.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check X-API-Key header first.
		apiKey := r.Header.Get("X-API-Key")

		// Fall back to Authorization: Bearer <key>.
		if apiKey == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "API key required")
			return
		}

		actor, ok := s.apiKeys[apiKey]
		if !ok {
			writeError(w, http.StatusForbidden, "PERMISSION_DENIED", "Invalid API key")
			return
		}

		next.ServeHTTP(w, withActor(r, actor))
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
