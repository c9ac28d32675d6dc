package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/jask/ledgerkit/internal/canonical"
	"github.com/jask/ledgerkit/internal/categorize"
	"github.com/jask/ledgerkit/internal/config"
	"github.com/jask/ledgerkit/internal/database"
	"github.com/jask/ledgerkit/internal/database/repository"
	"github.com/jask/ledgerkit/internal/extract"
	"github.com/jask/ledgerkit/internal/logger"
	"github.com/jask/ledgerkit/internal/ocr"
	"github.com/jask/ledgerkit/internal/ocr/mupdf"
	"github.com/jask/ledgerkit/internal/ocr/tesseract"
	"github.com/jask/ledgerkit/internal/rules"
	"github.com/jask/ledgerkit/internal/service"
)

// app holds everything a command needs, built once per invocation.
type app struct {
	ctx      context.Context
	cfg      config.Config
	log      zerolog.Logger
	db       *sql.DB
	active   *rules.Active
	workflow *rules.Workflow

	ingest *service.IngestService
	cat    *service.CategorizerService
	export *service.ExportService
	maint  *service.MaintenanceService
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	ctx = logger.WithContext(ctx, log)

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	if err := database.RunMigrations(cfg.Database.Path); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	active, err := rules.LoadActive(cfg.Rules.Path)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("rules: %w", err)
	}
	if err := database.SyncRuleSet(ctx, db, active.Snapshot().Set); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sync rule set: %w", err)
	}

	txRepo := repository.NewTransactionRepo(db)
	audit := repository.NewAuditRepo(db)
	models := categorize.NewModelCache(service.TrainingStore{Transactions: txRepo}, cfg.Classifier.MinExamples)
	engine := categorize.NewEngine(active, models, cfg.Classifier.ConfidenceFloor)

	wf := rules.NewWorkflow(cfg.Rules.Path, cfg.Rules.PendingPath, cfg.Rules.BackupDir, active)
	wf.Samples = txRepo
	wf.Audit = audit
	wf.Retrainer = models

	builder := canonical.NewBuilder(cfg.Import.ReferenceYear, cfg.Import.MaxAgeYears, cfg.Import.FutureDays)
	var recognizer extract.PageRecognizer
	if cfg.OCR.Enabled {
		recognizer = ocr.NewPipeline(mupdf.Renderer{}, tesseract.New(), cfg.OCR.Languages, int(cfg.OCR.DPI), cfg.OCR.HeaderCrop)
	}
	window := extract.Window(time.Now().UTC(), cfg.Import.MaxAgeYears, cfg.Import.FutureDays)

	a := &app{
		ctx:      ctx,
		cfg:      cfg,
		log:      log,
		db:       db,
		active:   active,
		workflow: wf,
		ingest: &service.IngestService{
			DB:      db,
			Rules:   active,
			Builder: builder,
			Engine:  engine,
			Extractors: map[string]extract.Extractor{
				service.TypeTabular: extract.NewTabular(),
				service.TypeXML:     extract.NewXML(),
				service.TypePDF:     extract.NewPDF(recognizer, window),
			},
			Reconciler: &service.Reconciler{},
		},
		cat:    &service.CategorizerService{DB: db, Engine: engine, Workflow: wf},
		export: &service.ExportService{DB: db, Rules: active},
		maint:  &service.MaintenanceService{DB: db, Rules: active},
	}
	log.Debug().Str(logger.FieldPath, cfg.Database.Path).Str(logger.FieldHash, active.Snapshot().Hash).Msg("ledgerkit ready")
	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
