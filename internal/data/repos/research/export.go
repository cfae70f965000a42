package research

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/mirrorpanel/mirrorpanel-backend/internal/domain/research"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/platform/logger"
)

type ExportRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.Export) (*types.Export, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Export, error)
	ListByStudy(ctx context.Context, tx *gorm.DB, studyID uuid.UUID, limit int) ([]*types.Export, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	// LatestWritten returns nil when the study has no published export yet.
	LatestWritten(ctx context.Context, tx *gorm.DB, studyID uuid.UUID) (*types.Export, error)
}

type exportRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExportRepo(db *gorm.DB, baseLog *logger.Logger) ExportRepo {
	return &exportRepo{db: db, log: baseLog.With("repo", "ExportRepo")}
}

func (r *exportRepo) Create(ctx context.Context, tx *gorm.DB, row *types.Export) (*types.Export, error) {
	if row == nil || row.StudyID == uuid.Nil {
		return nil, fmt.Errorf("missing study_id")
	}
	t := tx
	if t == nil {
		t = r.db
	}
	if err := t.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *exportRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Export, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing export_id")
	}
	t := tx
	if t == nil {
		t = r.db
	}
	var out types.Export
	if err := t.WithContext(ctx).First(&out, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *exportRepo) ListByStudy(ctx context.Context, tx *gorm.DB, studyID uuid.UUID, limit int) ([]*types.Export, error) {
	if studyID == uuid.Nil {
		return nil, fmt.Errorf("missing study_id")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.Export
	if err := t.WithContext(ctx).
		Model(&types.Export{}).
		Where("study_id = ?", studyID).
		Order("created_at DESC, id ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *exportRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing export_id")
	}
	if len(updates) == 0 {
		return nil
	}
	t := tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(ctx).
		Model(&types.Export{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *exportRepo) LatestWritten(ctx context.Context, tx *gorm.DB, studyID uuid.UUID) (*types.Export, error) {
	if studyID == uuid.Nil {
		return nil, fmt.Errorf("missing study_id")
	}
	t := tx
	if t == nil {
		t = r.db
	}
	var out types.Export
	err := t.WithContext(ctx).
		Where("study_id = ? AND status = ?", studyID, types.ExportWritten).
		Order("created_at DESC").
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}
