package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kelechi-eze/MedVault/internal/config"
	"github.com/kelechi-eze/MedVault/internal/core"
	"github.com/kelechi-eze/MedVault/internal/core/crypto"
	db "github.com/kelechi-eze/MedVault/internal/core/database"
	"github.com/kelechi-eze/MedVault/internal/core/enrichment_engine"
	"github.com/kelechi-eze/MedVault/internal/core/extraction"
	"github.com/kelechi-eze/MedVault/internal/core/llm"
	objectclient "github.com/kelechi-eze/MedVault/internal/core/object-client"
	"github.com/kelechi-eze/MedVault/internal/models"
)

type App struct {
	DBClient     *db.DatabaseClient
	ObjectClient *objectclient.S3Client
	Supervisor   *enrichment_engine.Supervisor
	Server       *Server

	logger *slog.Logger
}

func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("database initialized and ready")

	objClient, err := objectclient.NewS3Client(appCtx, cfg, logger)
	if err != nil {
		return nil, err
	}

	gemini, err := llm.NewGemini(appCtx, cfg.AIAPIKey, cfg.VisionModel, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the gemini client: %w", err)
	}

	parser := extraction.NewDocconvParser(false)
	ocr := extraction.NewTesseractClient("eng")
	images := extraction.NewImageChain(gemini, ocr, cfg.MaxImageBytes, logger)
	router := extraction.NewRouter(parser, images, logger)

	var encryptor core.Encryptor
	if cfg.EncryptionRequired {
		if cfg.EncryptionKey == "" {
			return nil, fmt.Errorf("ENCRYPTION_REQUIRED is set but ENCRYPTION_KEY is empty")
		}
		encryptor = crypto.NewEnvelopeEncryptor()
	}

	index := enrichment_engine.NewIndex(dbClient.Exists, logger)
	uploader := enrichment_engine.NewUploader(dbClient, index, logger)
	supervisor := newSupervisor(router, gemini, encryptor, index, uploader, cfg, logger)

	server := NewServer(cfg, dbClient, objClient, supervisor, logger)

	return &App{
		DBClient:     dbClient,
		ObjectClient: objClient,
		Supervisor:   supervisor,
		Server:       server,
		logger:       logger,
	}, nil
}

// newSupervisor wires the orchestrator's publish callback back to the
// supervisor, which is also the pipeline's snapshot reader.
func newSupervisor(
	router *extraction.Router,
	gemini *llm.Gemini,
	encryptor core.Encryptor,
	index *enrichment_engine.Index,
	uploader *enrichment_engine.Uploader,
	cfg *config.Config,
	logger *slog.Logger,
) *enrichment_engine.Supervisor {
	var sup *enrichment_engine.Supervisor
	orch := enrichment_engine.NewOrchestrator(
		router,
		gemini,
		gemini,
		gemini,
		gemini,
		encryptor,
		enrichment_engine.Config{
			DetectionThreshold: cfg.DetectionThreshold,
			SessionKey:         cfg.EncryptionKey,
		},
		func(rec *models.ProcessingRecord) { sup.Publish(rec) },
		logger,
	)
	sup = enrichment_engine.NewSupervisor(index, orch, uploader, cfg.MaxUploadRetries, cfg.Workers, logger)
	return sup
}

// Close drains in-flight pipeline operations before releasing clients.
func (a *App) Close() {
	if a.Supervisor != nil {
		a.Supervisor.Wait()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
