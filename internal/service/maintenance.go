package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jask/ledgerkit/internal/database"
	"github.com/jask/ledgerkit/internal/logger"
	"github.com/jask/ledgerkit/internal/rules"
)

// MaintenanceService houses destructive operations.
type MaintenanceService struct {
	DB    *sql.DB
	Rules *rules.Active
}

// resetTables lists every data table, children before parents.
var resetTables = []string{
	"reconciliation_findings",
	"transaction_tags",
	"transactions",
	"imports",
	"tags",
	"audit_events",
	"categories",
	"accounts",
}

// Reset wipes all stored data while keeping the schema. Accounts and
// categories from the active rule set are seeded again so the store stays
// usable.
func (s *MaintenanceService) Reset(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("maintenance: db not configured")
	}
	if err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		for _, t := range resetTables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
				return fmt.Errorf("reset table %s: %w", t, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}
	log := logger.Component(ctx, logger.ComponentDatabase)
	if _, err := s.DB.ExecContext(ctx, "VACUUM"); err != nil {
		log.Warn().Err(err).Msg("vacuum after reset")
	}
	if s.Rules != nil {
		if err := database.SyncRuleSet(ctx, s.DB, s.Rules.Snapshot().Set); err != nil {
			return fmt.Errorf("reseed: %w", err)
		}
	}
	log.Info().Msg("database reset")
	return nil
}
