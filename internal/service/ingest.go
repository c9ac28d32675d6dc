package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jask/ledgerkit/internal/canonical"
	"github.com/jask/ledgerkit/internal/categorize"
	"github.com/jask/ledgerkit/internal/database"
	"github.com/jask/ledgerkit/internal/database/repository"
	"github.com/jask/ledgerkit/internal/extract"
	"github.com/jask/ledgerkit/internal/logger"
	"github.com/jask/ledgerkit/internal/rules"
)

// Extractor types, as named in bank profiles.
const (
	TypeTabular = "tabular"
	TypeXML     = "xml"
	TypePDF     = "pdf"
)

// ErrStrictAbort wraps the first file or row error of a strict run.
var ErrStrictAbort = errors.New("strict mode: import aborted")

// IngestService turns statement files into stored transactions. Each file
// is one database transaction and one import record.
type IngestService struct {
	DB         *sql.DB
	Rules      *rules.Active
	Builder    *canonical.Builder
	Engine     *categorize.Engine
	Extractors map[string]extract.Extractor
	Reconciler *Reconciler
}

// ImportOptions controls one run.
type ImportOptions struct {
	BankID string
	Strict bool
	// Reference is an XML statement reconciled against each file.
	Reference string
}

// ImportFile ingests one file. Extraction and row errors are recorded in
// the report; in strict mode the first one aborts the file and is returned
// wrapped in ErrStrictAbort. Nothing from an aborted file is stored.
func (s *IngestService) ImportFile(ctx context.Context, path string, opts ImportOptions) (FileReport, error) {
	start := time.Now()
	log := logger.Component(ctx, logger.ComponentIngest).With().Str(logger.FieldFile, path).Str(logger.FieldBank, opts.BankID).Logger()
	ctx = logger.WithContext(ctx, log)

	rep := FileReport{File: path, BankID: opts.BankID, ImportID: uuid.NewString()}
	snap := s.Rules.Snapshot()

	res, err := s.extract(ctx, snap.Set, path, opts.BankID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return rep, err
		}
		rep.Status = repository.ImportFailed
		rep.Error = err.Error()
		var oe *extract.OCRError
		if errors.As(err, &oe) && oe.FirstPageText != "" {
			rep.Diagnostics = append(rep.Diagnostics, "first page text: "+oe.FirstPageText)
		}
		log.Warn().Err(err).Msg("extraction failed")
		if recErr := s.recordFailure(ctx, rep); recErr != nil {
			return rep, recErr
		}
		if opts.Strict {
			return rep, fmt.Errorf("%w: %s: %w", ErrStrictAbort, path, err)
		}
		return rep, nil
	}
	rep.Method = string(res.Method)
	rep.Read = len(res.Records)
	rep.Diagnostics = append(rep.Diagnostics, res.Diagnostics...)

	acct := snap.Set.AccountConfig(opts.BankID, snap.Compiled)
	txs := make([]canonical.Transaction, 0, len(res.Records))
	for _, rec := range res.Records {
		tx, err := s.Builder.Build(rec, acct)
		if err != nil {
			rep.reject(rec.Provenance.Ref, err)
			log.Warn().Err(err).Str(logger.FieldRef, rec.Provenance.Ref).Msg("row rejected")
			if opts.Strict {
				rep.Status = repository.ImportFailed
				rep.Error = err.Error()
				if recErr := s.recordFailure(ctx, rep); recErr != nil {
					return rep, recErr
				}
				return rep, fmt.Errorf("%w: %s: %w", ErrStrictAbort, path, err)
			}
			continue
		}
		txs = append(txs, tx)
	}

	var findings []repository.Finding
	if opts.Reference != "" && s.Reconciler != nil {
		merged, summary, err := s.reconcile(ctx, snap, txs, opts)
		if err != nil {
			rep.Diagnostics = append(rep.Diagnostics, "reconciliation skipped: "+err.Error())
			log.Warn().Err(err).Msg("reconciliation skipped")
		} else {
			txs = merged
			rep.Reconciliation = &summary
			findings = summary.Findings(rep.ImportID)
		}
	}

	for i := range txs {
		if s.Engine != nil {
			s.Engine.Apply(ctx, &txs[i])
		}
	}

	err = database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		if err := database.EnsureAccount(ctx, tx, snap.Set, opts.BankID); err != nil {
			return fmt.Errorf("ensure account: %w", err)
		}
		imports := repository.NewImportRepo(tx)
		if err := imports.Start(ctx, repository.Import{ID: rep.ImportID, SourceFile: path, BankID: opts.BankID, Method: rep.Method}); err != nil {
			return fmt.Errorf("start import: %w", err)
		}
		repo := repository.NewTransactionRepo(tx)
		for _, t := range txs {
			inserted, err := repo.InsertIgnore(ctx, t, rep.ImportID)
			if err != nil {
				return fmt.Errorf("insert %s: %w", t.SourceRef, err)
			}
			if inserted {
				rep.Ingested++
				continue
			}
			rep.Duplicates++
			log.Debug().Str(logger.FieldFingerprint, t.Fingerprint).Str(logger.FieldRef, t.SourceRef).Msg("duplicate skipped")
		}
		recon := repository.NewReconciliationRepo(tx)
		for _, f := range findings {
			if err := recon.Add(ctx, f); err != nil {
				return fmt.Errorf("store finding: %w", err)
			}
		}
		rep.Status = repository.ImportSuccess
		if rep.Rejected > 0 {
			rep.Status = repository.ImportPartial
		}
		return imports.Finish(ctx, rep.importRow())
	})
	if err != nil {
		rep.Ingested, rep.Duplicates = 0, 0
		rep.Status = repository.ImportFailed
		rep.Error = err.Error()
		if recErr := s.recordFailure(ctx, rep); recErr != nil {
			log.Warn().Err(recErr).Msg("record failed import")
		}
		return rep, fmt.Errorf("store %s: %w", path, err)
	}

	log.Info().
		Str(logger.FieldImportID, rep.ImportID).
		Int("read", rep.Read).
		Int("ingested", rep.Ingested).
		Int("duplicates", rep.Duplicates).
		Int("rejected", rep.Rejected).
		Int64(logger.FieldDuration, time.Since(start).Milliseconds()).
		Msg("file imported")
	return rep, nil
}

// ImportMany ingests files in order, checking for cancellation between
// files. A cancelled run keeps the files already committed.
func (s *IngestService) ImportMany(ctx context.Context, paths []string, opts ImportOptions) (RunSummary, error) {
	sum := RunSummary{StartedAt: time.Now().UTC()}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			sum.FinishedAt = time.Now().UTC()
			return sum, err
		}
		rep, err := s.ImportFile(ctx, p, opts)
		sum.add(rep)
		if err != nil {
			sum.FinishedAt = time.Now().UTC()
			return sum, err
		}
	}
	sum.FinishedAt = time.Now().UTC()
	return sum, nil
}

func (s *IngestService) extract(ctx context.Context, set *rules.Set, path, bankID string) (extract.Result, error) {
	typ := extractorType(set, path, bankID)
	ex, ok := s.Extractors[typ]
	if !ok || ex == nil {
		return extract.Result{}, &extract.Error{Kind: extract.Unreadable, Source: path, Err: fmt.Errorf("no %s extractor configured", typ)}
	}
	return ex.Extract(ctx, path)
}

// extractorType prefers the file extension; the bank profile decides for
// unknown extensions.
func extractorType(set *rules.Set, path, bankID string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".xls", ".csv", ".txt":
		return TypeTabular
	case ".xml":
		return TypeXML
	case ".pdf":
		return TypePDF
	}
	if b, ok := set.Banks[bankID]; ok && b.Type != "" {
		return b.Type
	}
	return TypeTabular
}

func (s *IngestService) reconcile(ctx context.Context, snap rules.Snapshot, txs []canonical.Transaction, opts ImportOptions) ([]canonical.Transaction, ReconcileSummary, error) {
	res, err := s.extract(ctx, snap.Set, opts.Reference, opts.BankID)
	if err != nil {
		return nil, ReconcileSummary{}, err
	}
	acct := snap.Set.AccountConfig(opts.BankID, snap.Compiled)
	var ref []canonical.Transaction
	for _, rec := range res.Records {
		tx, err := s.Builder.Build(rec, acct)
		if err != nil {
			continue
		}
		ref = append(ref, tx)
	}
	merged, summary := s.Reconciler.Reconcile(ctx, txs, ref)
	return merged, summary, nil
}

func (s *IngestService) recordFailure(ctx context.Context, rep FileReport) error {
	return database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		imports := repository.NewImportRepo(tx)
		if err := imports.Start(ctx, repository.Import{ID: rep.ImportID, SourceFile: rep.File, BankID: rep.BankID}); err != nil {
			return err
		}
		return imports.Finish(ctx, rep.importRow())
	})
}
