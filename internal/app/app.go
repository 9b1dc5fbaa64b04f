// Package app wires the configured stores, adapters and services together for the binaries in cmd/.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/MrJamesThe3rd/docket/internal/classification/keyword"
	"github.com/MrJamesThe3rd/docket/internal/config"
	"github.com/MrJamesThe3rd/docket/internal/database"
	"github.com/MrJamesThe3rd/docket/internal/document"
	documentStore "github.com/MrJamesThe3rd/docket/internal/document/store"
	"github.com/MrJamesThe3rd/docket/internal/extraction"
	"github.com/MrJamesThe3rd/docket/internal/extraction/remote"
	"github.com/MrJamesThe3rd/docket/internal/extraction/textract"
	"github.com/MrJamesThe3rd/docket/internal/matching"
	matchingStore "github.com/MrJamesThe3rd/docket/internal/matching/store"
	"github.com/MrJamesThe3rd/docket/internal/memstore"
	"github.com/MrJamesThe3rd/docket/internal/pipeline"
	"github.com/MrJamesThe3rd/docket/internal/record"
	recordStore "github.com/MrJamesThe3rd/docket/internal/record/store"
	"github.com/MrJamesThe3rd/docket/internal/storage"
	"github.com/MrJamesThe3rd/docket/internal/verification"
)

type App struct {
	Pipeline  *pipeline.Orchestrator
	Documents *document.Service
	Queue     *verification.Queue
	Records   *record.Service
	Matching  *matching.Service

	closers []func() error
}

type stores struct {
	documents    document.Repository
	pipeline     pipeline.Repository
	verification verification.Repository
	records      record.Repository
	mappings     matching.Repository
}

// Build connects to the configured backends. Close releases them.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{}

	pipelineCfg, err := cfg.PipelineConfig()
	if err != nil {
		return nil, err
	}

	st, err := a.openStores(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	files, err := openStorage(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	rules, err := keyword.LoadRules(cfg.Classifier.RulesFile)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load classifier rules: %w", err)
	}

	a.Matching = matching.NewService(st.mappings)
	a.Records = record.NewService(st.records)
	a.Documents = document.NewService(st.documents, files)
	a.Pipeline = pipeline.New(pipeline.Deps{
		Repo:       st.pipeline,
		Files:      files,
		Extractor:  newExtractor(cfg, logger),
		Classifier: keyword.New(rules, a.Matching),
		Learner:    a.Matching,
		Logger:     logger,
	}, pipelineCfg)
	a.Queue = verification.NewQueue(st.verification, a.Pipeline, pipelineCfg.AutoTrustThreshold)

	return a, nil
}

func (a *App) openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (stores, error) {
	if cfg.App.StoreDriver == config.StoreDriverMemory {
		logger.Warn("using the in-memory store, data is lost on restart")

		mem := memstore.New()

		return stores{documents: mem, pipeline: mem, verification: mem, records: mem, mappings: mem}, nil
	}

	db, err := database.New(ctx, cfg.ConnectionString(), database.PoolConfig{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		return stores{}, err
	}

	a.closers = append(a.closers, db.Close)

	if cfg.DB.Migrate {
		if err := database.Migrate(db, logger); err != nil {
			return stores{}, err
		}
	}

	return postgresStores(db), nil
}

func postgresStores(db *sql.DB) stores {
	docs := documentStore.New(db)

	return stores{
		documents:    docs,
		pipeline:     docs,
		verification: docs,
		records:      recordStore.New(db),
		mappings:     matchingStore.New(db),
	}
}

func openStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverMinIO:
		s, err := storage.NewMinIO(ctx, cfg.MinIO())
		if err != nil {
			return nil, fmt.Errorf("open minio storage: %w", err)
		}

		return s, nil
	default:
		s, err := storage.NewLocal(cfg.Storage.LocalRoot)
		if err != nil {
			return nil, fmt.Errorf("open local storage: %w", err)
		}

		return s, nil
	}
}

// newExtractor routes images to the remote OCR service when one is configured. The rule-based extractor handles
// everything else and rejects images on its own.
func newExtractor(cfg *config.Config, logger *slog.Logger) extraction.Extractor {
	router := extraction.NewRouter(textract.New())

	if cfg.Extraction.RemoteURL != "" {
		router.Handle("image/", remote.New(cfg.Extraction.RemoteURL, cfg.Extraction.RemoteToken, cfg.Extraction.RemoteTimeout))
		logger.Info("remote extraction enabled for images", "url", cfg.Extraction.RemoteURL)
	}

	return router
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("failed to close resource", "error", err)
		}
	}

	a.closers = nil
}
