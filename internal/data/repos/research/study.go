package research

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/mirrorpanel/mirrorpanel-backend/internal/domain/research"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/platform/logger"
)

type StudyRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.Study) ([]*types.Study, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Study, error)
	List(ctx context.Context, tx *gorm.DB, limit int) ([]*types.Study, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	// DeleteCascade removes the study and everything derived from it except
	// guardrail events, which are append-only and survive their study.
	DeleteCascade(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type studyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStudyRepo(db *gorm.DB, baseLog *logger.Logger) StudyRepo {
	return &studyRepo{db: db, log: baseLog.With("repo", "StudyRepo")}
}

func (r *studyRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.Study) ([]*types.Study, error) {
	if len(rows) == 0 {
		return []*types.Study{}, nil
	}
	t := tx
	if t == nil {
		t = r.db
	}
	if err := t.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *studyRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Study, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing study_id")
	}
	t := tx
	if t == nil {
		t = r.db
	}
	var out types.Study
	if err := t.WithContext(ctx).First(&out, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *studyRepo) List(ctx context.Context, tx *gorm.DB, limit int) ([]*types.Study, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.Study
	if err := t.WithContext(ctx).
		Model(&types.Study{}).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *studyRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing study_id")
	}
	if len(updates) == 0 {
		return nil
	}
	t := tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(ctx).
		Model(&types.Study{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *studyRepo) DeleteCascade(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing study_id")
	}
	t := tx
	if t == nil {
		t = r.db
	}
	run := func(d *gorm.DB) error {
		if err := d.WithContext(ctx).
			Where("session_id IN (?)", d.Session(&gorm.Session{NewDB: true}).
				Model(&types.Session{}).Select("id").Where("study_id = ?", id)).
			Delete(&types.Message{}).Error; err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if err := d.WithContext(ctx).Where("study_id = ?", id).Delete(&types.Session{}).Error; err != nil {
			return fmt.Errorf("delete sessions: %w", err)
		}
		if err := d.WithContext(ctx).Where("study_id = ?", id).Delete(&types.PersonaWeight{}).Error; err != nil {
			return fmt.Errorf("delete persona weights: %w", err)
		}
		if err := d.WithContext(ctx).Where("study_id = ?", id).Delete(&types.Insight{}).Error; err != nil {
			return fmt.Errorf("delete insights: %w", err)
		}
		if err := d.WithContext(ctx).Where("study_id = ?", id).Delete(&types.PersonaRollup{}).Error; err != nil {
			return fmt.Errorf("delete persona rollups: %w", err)
		}
		if err := d.WithContext(ctx).Where("study_id = ?", id).Delete(&types.Export{}).Error; err != nil {
			return fmt.Errorf("delete exports: %w", err)
		}
		if err := d.WithContext(ctx).Where("id = ?", id).Delete(&types.Study{}).Error; err != nil {
			return fmt.Errorf("delete study: %w", err)
		}
		return nil
	}
	if tx != nil {
		return run(tx)
	}
	return r.db.Transaction(run)
}
