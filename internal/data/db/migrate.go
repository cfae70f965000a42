package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/mirrorpanel/mirrorpanel-backend/internal/domain/research"
)

// AutoMigrateAll migrates every table the service owns. Message embeddings
// live outside this list: the vector provider manages its own table.
func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// Studies + personas
		&research.Study{},
		&research.Session{},
		&research.Persona{},
		&research.Message{},

		// Weighting + audit
		&research.PersonaWeight{},
		&research.GuardrailEvent{},

		// Aggregation products
		&research.Insight{},
		&research.PersonaRollup{},

		// Export runs
		&research.Export{},
	)
}

func EnsureResearchIndexes(db *gorm.DB) error {
	// Append-only transcript reads walk (session, seq) in order.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_session_seq
		ON messages (session_id, seq);
	`).Error; err != nil {
		return fmt.Errorf("create idx_messages_session_seq: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_sessions_study_id
		ON sessions (study_id);
	`).Error; err != nil {
		return fmt.Errorf("create idx_sessions_study_id: %w", err)
	}

	// Guardrail reads are per study, newest first.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_guardrail_events_study_ts
		ON guardrail_events (study_id, ts DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_guardrail_events_study_ts: %w", err)
	}

	// One primary ICP per study.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_persona_weights_primary_icp
		ON persona_weights (study_id)
		WHERE is_primary_icp;
	`).Error; err != nil {
		return fmt.Errorf("create idx_persona_weights_primary_icp: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_exports_study_created_at
		ON exports (study_id, created_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_exports_study_created_at: %w", err)
	}

	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if s.db.Dialector.Name() == "postgres" {
		if err := EnsureResearchIndexes(s.db); err != nil {
			s.log.Error("Research index migration failed", "error", err)
			return err
		}
	}
	return nil
}
