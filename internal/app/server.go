package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kelechi-eze/MedVault/internal/api/handlers"
	"github.com/kelechi-eze/MedVault/internal/config"
	"github.com/kelechi-eze/MedVault/internal/core"
	"github.com/kelechi-eze/MedVault/internal/core/enrichment_engine"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, store core.RecordStore, obj core.ObjectClient, sup *enrichment_engine.Supervisor, logger *slog.Logger) *Server {
	docHandler := handlers.NewDocumentHandler(store, obj, sup, cfg)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		api.Post("/documents", docHandler.UploadDocument)
		api.Get("/documents", docHandler.ListDocuments)
		api.Get("/documents/{id}", docHandler.GetDocument)
		api.Post("/documents/{id}/cancel", docHandler.CancelDocument)
		api.Delete("/documents/{id}", docHandler.DeleteDocument)
		api.Post("/documents/{id}/convert", docHandler.ForceConvert)

		api.Get("/pipeline/stats", docHandler.PipelineStats)
		api.Post("/pipeline/reset", docHandler.ResetPipeline)
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv, logger: logger}
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}
