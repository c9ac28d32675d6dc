package rules

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jask/ledgerkit/internal/logger"
)

// SampleSource supplies stored descriptions used to probe rule overlap.
type SampleSource interface {
	SampleDescriptions(ctx context.Context, limit int) ([]string, error)
}

// AuditRecorder persists workflow events.
type AuditRecorder interface {
	Record(ctx context.Context, kind string, payload map[string]any) error
}

// Retrainer rebuilds derived state for a new rule set. It runs inside the
// merge critical section and must not call Active.Snapshot.
type Retrainer interface {
	Retrain(ctx context.Context, snap Snapshot) error
}

// Audit event kinds written by the workflow.
const (
	EventRuleStaged  = "rule_staged"
	EventRulesMerged = "rules_merged"
)

const sampleLimit = 5000

// Workflow is the only writer of the active rule file. Rules are staged into
// a pending file and merged after a conflict check, with the previous active
// file backed up first.
type Workflow struct {
	ActivePath  string
	PendingPath string
	BackupDir   string
	Active      *Active
	Samples     SampleSource
	Audit       AuditRecorder
	Retrainer   Retrainer
	Now         func() time.Time

	writeFile func(path string, data []byte) error
}

// NewWorkflow wires a workflow over the given paths and active holder.
func NewWorkflow(activePath, pendingPath, backupDir string, active *Active) *Workflow {
	return &Workflow{
		ActivePath:  activePath,
		PendingPath: pendingPath,
		BackupDir:   backupDir,
		Active:      active,
		Now:         time.Now,
		writeFile:   writeFileAtomic,
	}
}

func (w *Workflow) now() time.Time {
	if w.Now == nil {
		return time.Now().UTC()
	}
	return w.Now().UTC()
}

func (w *Workflow) write(path string, data []byte) error {
	if w.writeFile == nil {
		return writeFileAtomic(path, data)
	}
	return w.writeFile(path, data)
}

func (w *Workflow) samples(ctx context.Context) ([]string, error) {
	if w.Samples == nil {
		return nil, nil
	}
	s, err := w.Samples.SampleDescriptions(ctx, sampleLimit)
	if err != nil {
		return nil, fmt.Errorf("load sample descriptions: %w", err)
	}
	return s, nil
}

func (w *Workflow) audit(ctx context.Context, kind string, payload map[string]any) {
	if w.Audit == nil {
		return
	}
	if err := w.Audit.Record(ctx, kind, payload); err != nil {
		log := logger.Component(ctx, logger.ComponentRules)
		log.Warn().Err(err).Str("event", kind).Msg("audit event not recorded")
	}
}

// Pending returns the staged rules.
func (w *Workflow) Pending() (Pending, error) {
	return LoadPending(w.PendingPath)
}

// Stage validates rules and appends them to the pending file. Conflicts with
// the active set or with already pending rules are returned as a
// ConflictError and nothing is written. The active set is never touched.
func (w *Workflow) Stage(ctx context.Context, rs ...Rule) error {
	log := logger.Component(ctx, logger.ComponentRules)
	if len(rs) == 0 {
		return errors.New("no rules to stage")
	}
	for _, r := range rs {
		if err := r.Validate(); err != nil {
			return err
		}
	}

	pending, err := w.Pending()
	if err != nil {
		return err
	}
	samples, err := w.samples(ctx)
	if err != nil {
		return err
	}

	existing := append([]Rule{}, w.Active.Snapshot().Set.Rules...)
	existing = append(existing, pending.Rules...)
	conflicts, err := DetectConflicts(rs, existing, samples)
	if err != nil {
		return err
	}
	// staging two rules at once must not smuggle in a conflict between them
	for i := range rs {
		inner, err := DetectConflicts(rs[i:i+1], rs[:i], samples)
		if err != nil {
			return err
		}
		conflicts = append(conflicts, inner...)
	}
	if len(conflicts) > 0 {
		return &ConflictError{Conflicts: conflicts}
	}

	pending.Rules = append(pending.Rules, rs...)
	pending.UpdatedAt = w.now()
	data, err := yaml.Marshal(pending)
	if err != nil {
		return fmt.Errorf("encode pending rules: %w", err)
	}
	if err := w.write(w.PendingPath, data); err != nil {
		return fmt.Errorf("write pending rules: %w", err)
	}

	names := ruleNames(rs)
	log.Info().Strs("rules", names).Str(logger.FieldPath, w.PendingPath).Msg("rules staged")
	w.audit(ctx, EventRuleStaged, map[string]any{"rules": names})
	return nil
}

// MergeOptions resolves conflicts explicitly. Skip leaves the named pending
// rules staged; Override merges them anyway, replacing an active rule of the
// same name.
type MergeOptions struct {
	Skip     []string
	Override []string
}

// MergeResult describes a completed merge.
type MergeResult struct {
	Merged     []string
	Skipped    []string
	BackupPath string
	Hash       string
}

// Merge moves pending rules into the active set. Unresolved conflicts abort
// with a ConflictError before anything is written. A clean merge writes a
// timestamped backup of the current active file, atomically replaces it,
// swaps the in-memory set and retrains, all under the active set's lock. If
// any write fails the active file and in-memory set are left as they were.
func (w *Workflow) Merge(ctx context.Context, opts MergeOptions) (MergeResult, error) {
	log := logger.Component(ctx, logger.ComponentRules)

	pending, err := w.Pending()
	if err != nil {
		return MergeResult{}, err
	}
	if len(pending.Rules) == 0 {
		return MergeResult{}, ErrNoPending
	}
	samples, err := w.samples(ctx)
	if err != nil {
		return MergeResult{}, err
	}

	skip := nameSet(opts.Skip)
	override := nameSet(opts.Override)
	var toMerge, kept []Rule
	for _, r := range pending.Rules {
		if skip[strings.ToLower(r.Name)] {
			kept = append(kept, r)
			continue
		}
		toMerge = append(toMerge, r)
	}

	var result MergeResult
	err = w.Active.Update(func(cur Snapshot) (*Snapshot, error) {
		conflicts, err := DetectConflicts(toMerge, cur.Set.Rules, samples)
		if err != nil {
			return nil, err
		}
		var blocking []Conflict
		for _, c := range conflicts {
			if !override[strings.ToLower(c.Pending)] {
				blocking = append(blocking, c)
			}
		}
		if len(blocking) > 0 {
			return nil, &ConflictError{Conflicts: blocking}
		}
		if len(toMerge) == 0 {
			return nil, ErrNoPending
		}

		next := cur.Set.Clone()
		for _, r := range toMerge {
			next.Rules = upsertRule(next.Rules, r, override[strings.ToLower(r.Name)])
		}
		nextSnap, err := snapshotOf(next)
		if err != nil {
			return nil, err
		}

		backup, err := w.backup(cur.Set)
		if err != nil {
			return nil, err
		}
		data, err := next.Marshal()
		if err != nil {
			return nil, fmt.Errorf("encode rules: %w", err)
		}
		if err := w.write(w.ActivePath, data); err != nil {
			return nil, fmt.Errorf("replace active rules (backup at %s): %w", backup, err)
		}

		if w.Retrainer != nil {
			if err := w.Retrainer.Retrain(ctx, nextSnap); err != nil {
				log.Warn().Err(err).Msg("classifier retrain failed; rules merged")
			}
		}
		result = MergeResult{
			Merged:     ruleNames(toMerge),
			Skipped:    ruleNames(kept),
			BackupPath: backup,
			Hash:       nextSnap.Hash,
		}
		return &nextSnap, nil
	})
	if err != nil {
		return MergeResult{}, err
	}

	if err := w.rewritePending(kept); err != nil {
		log.Warn().Err(err).Msg("merged rules remain in pending file")
	}
	log.Info().
		Strs("merged", result.Merged).
		Strs("skipped", result.Skipped).
		Str("backup", result.BackupPath).
		Str(logger.FieldHash, result.Hash).
		Msg("rules merged")
	w.audit(ctx, EventRulesMerged, map[string]any{
		"merged":  result.Merged,
		"skipped": result.Skipped,
		"backup":  result.BackupPath,
		"hash":    result.Hash,
	})
	return result, nil
}

// backup snapshots the current active set into BackupDir. The exact bytes
// of the active file are copied when it exists.
func (w *Workflow) backup(cur *Set) (string, error) {
	data, err := os.ReadFile(w.ActivePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("read active rules: %w", err)
		}
		if data, err = cur.Marshal(); err != nil {
			return "", fmt.Errorf("encode rules: %w", err)
		}
	}
	name := fmt.Sprintf("rules.%s.yml", w.now().Format("20060102150405"))
	path := filepath.Join(w.BackupDir, name)
	for i := 1; fileExists(path); i++ {
		path = filepath.Join(w.BackupDir, fmt.Sprintf("rules.%s.%d.yml", w.now().Format("20060102150405"), i))
	}
	if err := w.write(path, data); err != nil {
		return "", fmt.Errorf("write rules backup: %w", err)
	}
	return path, nil
}

func (w *Workflow) rewritePending(kept []Rule) error {
	if len(kept) == 0 {
		if err := os.Remove(w.PendingPath); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	data, err := yaml.Marshal(Pending{UpdatedAt: w.now(), Rules: kept})
	if err != nil {
		return err
	}
	return w.write(w.PendingPath, data)
}

func upsertRule(rs []Rule, r Rule, replace bool) []Rule {
	if replace {
		for i := range rs {
			if strings.EqualFold(rs[i].Name, r.Name) {
				rs[i] = r
				return rs
			}
		}
	}
	return append(rs, r)
}

func nameSet(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[strings.ToLower(strings.TrimSpace(n))] = true
	}
	return out
}

func ruleNames(rs []Rule) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Name)
	}
	return out
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
