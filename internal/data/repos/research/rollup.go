package research

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/mirrorpanel/mirrorpanel-backend/internal/domain/research"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/platform/logger"
)

type PersonaRollupRepo interface {
	// ReplaceForStudy swaps the study's rollup cells for the new set so the
	// table always reflects exactly one aggregation run.
	ReplaceForStudy(ctx context.Context, tx *gorm.DB, studyID uuid.UUID, rows []*types.PersonaRollup) error
	ListByStudy(ctx context.Context, tx *gorm.DB, studyID uuid.UUID) ([]*types.PersonaRollup, error)
}

type personaRollupRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPersonaRollupRepo(db *gorm.DB, baseLog *logger.Logger) PersonaRollupRepo {
	return &personaRollupRepo{db: db, log: baseLog.With("repo", "PersonaRollupRepo")}
}

func (r *personaRollupRepo) ReplaceForStudy(ctx context.Context, tx *gorm.DB, studyID uuid.UUID, rows []*types.PersonaRollup) error {
	if studyID == uuid.Nil {
		return fmt.Errorf("missing study_id")
	}
	for _, row := range rows {
		if row.StudyID != studyID {
			return fmt.Errorf("rollup row study_id mismatch")
		}
	}
	run := func(d *gorm.DB) error {
		if err := d.WithContext(ctx).
			Where("study_id = ?", studyID).
			Delete(&types.PersonaRollup{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return d.WithContext(ctx).Create(&rows).Error
	}
	if tx != nil {
		return run(tx)
	}
	return r.db.Transaction(run)
}

func (r *personaRollupRepo) ListByStudy(ctx context.Context, tx *gorm.DB, studyID uuid.UUID) ([]*types.PersonaRollup, error) {
	if studyID == uuid.Nil {
		return nil, fmt.Errorf("missing study_id")
	}
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.PersonaRollup
	if err := t.WithContext(ctx).
		Model(&types.PersonaRollup{}).
		Where("study_id = ?", studyID).
		Order("persona_id ASC, metric ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
