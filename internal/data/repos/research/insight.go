package research

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/mirrorpanel/mirrorpanel-backend/internal/domain/research"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/platform/logger"
)

type InsightRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.Insight) ([]*types.Insight, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Insight, error)
	ListByStudy(ctx context.Context, tx *gorm.DB, studyID uuid.UUID, limit int) ([]*types.Insight, error)
	Latest(ctx context.Context, tx *gorm.DB, studyID uuid.UUID) (*types.Insight, error)
}

type insightRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInsightRepo(db *gorm.DB, baseLog *logger.Logger) InsightRepo {
	return &insightRepo{db: db, log: baseLog.With("repo", "InsightRepo")}
}

func (r *insightRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.Insight) ([]*types.Insight, error) {
	if len(rows) == 0 {
		return []*types.Insight{}, nil
	}
	for _, row := range rows {
		if row.StudyID == uuid.Nil {
			return nil, fmt.Errorf("missing study_id")
		}
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

func (r *insightRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Insight, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing insight_id")
	}
	t := tx
	if t == nil {
		t = r.db
	}
	var out types.Insight
	if err := t.WithContext(ctx).First(&out, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *insightRepo) ListByStudy(ctx context.Context, tx *gorm.DB, studyID uuid.UUID, limit int) ([]*types.Insight, error) {
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
	var out []*types.Insight
	if err := t.WithContext(ctx).
		Model(&types.Insight{}).
		Where("study_id = ?", studyID).
		Order("created_at DESC, id ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *insightRepo) Latest(ctx context.Context, tx *gorm.DB, studyID uuid.UUID) (*types.Insight, error) {
	rows, err := r.ListByStudy(ctx, tx, studyID, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return rows[0], nil
}
