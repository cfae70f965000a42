package research

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/mirrorpanel/mirrorpanel-backend/internal/domain/research"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/platform/logger"
)

type PersonaWeightRepo interface {
	// Get returns nil when no override row exists; absent rows read as the
	// default weight upstream.
	Get(ctx context.Context, tx *gorm.DB, studyID, personaID uuid.UUID) (*types.PersonaWeight, error)
	Upsert(ctx context.Context, tx *gorm.DB, row *types.PersonaWeight) (*types.PersonaWeight, error)
	ListByStudy(ctx context.Context, tx *gorm.DB, studyID uuid.UUID) ([]*types.PersonaWeight, error)
	MaxVersion(ctx context.Context, tx *gorm.DB, studyID uuid.UUID) (int64, error)
	GetPrimaryICP(ctx context.Context, tx *gorm.DB, studyID uuid.UUID) (*types.PersonaWeight, error)
	// SetPrimaryICP clears any previous holder and marks personaID, creating
	// the override row if needed. Runs both writes in one transaction when
	// tx is nil.
	SetPrimaryICP(ctx context.Context, tx *gorm.DB, studyID, personaID uuid.UUID) error
}

type personaWeightRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPersonaWeightRepo(db *gorm.DB, baseLog *logger.Logger) PersonaWeightRepo {
	return &personaWeightRepo{db: db, log: baseLog.With("repo", "PersonaWeightRepo")}
}

func (r *personaWeightRepo) Get(ctx context.Context, tx *gorm.DB, studyID, personaID uuid.UUID) (*types.PersonaWeight, error) {
	if studyID == uuid.Nil || personaID == uuid.Nil {
		return nil, fmt.Errorf("missing study_id or persona_id")
	}
	t := tx
	if t == nil {
		t = r.db
	}
	var out types.PersonaWeight
	err := t.WithContext(ctx).
		First(&out, "study_id = ? AND persona_id = ?", studyID, personaID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *personaWeightRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.PersonaWeight) (*types.PersonaWeight, error) {
	if row == nil || row.StudyID == uuid.Nil || row.PersonaID == uuid.Nil {
		return nil, fmt.Errorf("missing study_id or persona_id")
	}
	t := tx
	if t == nil {
		t = r.db
	}
	if err := t.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "study_id"}, {Name: "persona_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"weight":     row.Weight,
				"updated_at": row.UpdatedAt,
				"version":    gorm.Expr("persona_weights.version + 1"),
			}),
		}).
		Create(row).Error; err != nil {
		return nil, err
	}
	return r.Get(ctx, t, row.StudyID, row.PersonaID)
}

func (r *personaWeightRepo) ListByStudy(ctx context.Context, tx *gorm.DB, studyID uuid.UUID) ([]*types.PersonaWeight, error) {
	if studyID == uuid.Nil {
		return nil, fmt.Errorf("missing study_id")
	}
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.PersonaWeight
	if err := t.WithContext(ctx).
		Model(&types.PersonaWeight{}).
		Where("study_id = ?", studyID).
		Order("persona_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *personaWeightRepo) MaxVersion(ctx context.Context, tx *gorm.DB, studyID uuid.UUID) (int64, error) {
	if studyID == uuid.Nil {
		return 0, fmt.Errorf("missing study_id")
	}
	t := tx
	if t == nil {
		t = r.db
	}
	var maxVersion int64
	if err := t.WithContext(ctx).
		Model(&types.PersonaWeight{}).
		Select("COALESCE(MAX(version), 0)").
		Where("study_id = ?", studyID).
		Scan(&maxVersion).Error; err != nil {
		return 0, err
	}
	return maxVersion, nil
}

func (r *personaWeightRepo) GetPrimaryICP(ctx context.Context, tx *gorm.DB, studyID uuid.UUID) (*types.PersonaWeight, error) {
	if studyID == uuid.Nil {
		return nil, fmt.Errorf("missing study_id")
	}
	t := tx
	if t == nil {
		t = r.db
	}
	var out types.PersonaWeight
	err := t.WithContext(ctx).
		First(&out, "study_id = ? AND is_primary_icp", studyID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *personaWeightRepo) SetPrimaryICP(ctx context.Context, tx *gorm.DB, studyID, personaID uuid.UUID) error {
	if studyID == uuid.Nil || personaID == uuid.Nil {
		return fmt.Errorf("missing study_id or persona_id")
	}
	run := func(d *gorm.DB) error {
		if err := d.WithContext(ctx).
			Model(&types.PersonaWeight{}).
			Where("study_id = ? AND is_primary_icp", studyID).
			Updates(map[string]interface{}{
				"is_primary_icp": false,
				"version":        gorm.Expr("version + 1"),
			}).Error; err != nil {
			return err
		}
		return d.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "study_id"}, {Name: "persona_id"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"is_primary_icp": true,
					"version":        gorm.Expr("persona_weights.version + 1"),
				}),
			}).
			Create(&types.PersonaWeight{
				StudyID:      studyID,
				PersonaID:    personaID,
				Weight:       types.WeightDefault,
				IsPrimaryICP: true,
			}).Error
	}
	if tx != nil {
		return run(tx)
	}
	return r.db.Transaction(run)
}
