package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jask/ledgerkit/internal/canonical"
	"github.com/jask/ledgerkit/internal/database/repository"
)

// Rejection is one row that failed validation.
type Rejection struct {
	Ref    string `json:"ref"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// FileReport summarizes one file of a run.
type FileReport struct {
	File           string            `json:"file"`
	BankID         string            `json:"bank_id"`
	ImportID       string            `json:"import_id"`
	Method         string            `json:"method,omitempty"`
	Status         string            `json:"status"`
	Read           int               `json:"read"`
	Ingested       int               `json:"ingested"`
	Duplicates     int               `json:"duplicates"`
	Rejected       int               `json:"rejected"`
	Rejections     []Rejection       `json:"rejections,omitempty"`
	Diagnostics    []string          `json:"diagnostics,omitempty"`
	Error          string            `json:"error,omitempty"`
	Reconciliation *ReconcileSummary `json:"reconciliation,omitempty"`
}

func (r *FileReport) reject(ref string, err error) {
	r.Rejected++
	kind := "invalid"
	var ve *canonical.ValidationError
	if errors.As(err, &ve) {
		kind = string(ve.Kind)
	}
	r.Rejections = append(r.Rejections, Rejection{Ref: ref, Kind: kind, Reason: err.Error()})
}

func (r FileReport) importRow() repository.Import {
	im := repository.Import{
		ID:         r.ImportID,
		SourceFile: r.File,
		BankID:     r.BankID,
		Method:     r.Method,
		RowCount:   r.Read,
		Ingested:   r.Ingested,
		Duplicates: r.Duplicates,
		Rejected:   r.Rejected,
		Status:     r.Status,
	}
	msg := r.Error
	if msg == "" && r.Rejected > 0 {
		msg = fmt.Sprintf("%d rows rejected", r.Rejected)
	}
	if msg != "" {
		im.Error = &msg
	}
	return im
}

// RunSummary totals a multi-file run.
type RunSummary struct {
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Files       []FileReport   `json:"files"`
	Read        int            `json:"read"`
	Ingested    int            `json:"ingested"`
	Duplicates  int            `json:"duplicates"`
	Rejected    int            `json:"rejected"`
	FailedFiles int            `json:"failed_files"`
	Reasons     map[string]int `json:"rejection_reasons,omitempty"`
}

func (s *RunSummary) add(r FileReport) {
	s.Files = append(s.Files, r)
	s.Read += r.Read
	s.Ingested += r.Ingested
	s.Duplicates += r.Duplicates
	s.Rejected += r.Rejected
	if r.Status == repository.ImportFailed {
		s.FailedFiles++
	}
	for _, rj := range r.Rejections {
		if s.Reasons == nil {
			s.Reasons = map[string]int{}
		}
		s.Reasons[rj.Kind]++
	}
}

// String renders the one-line summary printed after a run.
func (s RunSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "files=%d read=%d ingested=%d duplicates=%d rejected=%d",
		len(s.Files), s.Read, s.Ingested, s.Duplicates, s.Rejected)
	if s.FailedFiles > 0 {
		fmt.Fprintf(&b, " failed_files=%d", s.FailedFiles)
	}
	return b.String()
}

// WriteManifest stores the run summary as indented JSON at path.
func WriteManifest(path string, s RunSummary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// ManifestPath names a manifest file in dir for a run started at t.
func ManifestPath(dir string, t time.Time) string {
	return filepath.Join(dir, "import-"+t.UTC().Format("20060102T150405Z")+".json")
}
