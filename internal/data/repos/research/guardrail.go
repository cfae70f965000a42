package research

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/mirrorpanel/mirrorpanel-backend/internal/domain/research"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/platform/logger"
)

// GuardrailEventRepo appends and reads the audit log. There is deliberately
// no update or delete.
type GuardrailEventRepo interface {
	Append(ctx context.Context, tx *gorm.DB, rows []*types.GuardrailEvent) ([]*types.GuardrailEvent, error)
	ListByStudy(ctx context.Context, tx *gorm.DB, studyID uuid.UUID, limit int) ([]*types.GuardrailEvent, error)
}

type guardrailEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGuardrailEventRepo(db *gorm.DB, baseLog *logger.Logger) GuardrailEventRepo {
	return &guardrailEventRepo{db: db, log: baseLog.With("repo", "GuardrailEventRepo")}
}

func (r *guardrailEventRepo) Append(ctx context.Context, tx *gorm.DB, rows []*types.GuardrailEvent) ([]*types.GuardrailEvent, error) {
	if len(rows) == 0 {
		return []*types.GuardrailEvent{}, nil
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

func (r *guardrailEventRepo) ListByStudy(ctx context.Context, tx *gorm.DB, studyID uuid.UUID, limit int) ([]*types.GuardrailEvent, error) {
	if studyID == uuid.Nil {
		return nil, fmt.Errorf("missing study_id")
	}
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.GuardrailEvent
	if err := t.WithContext(ctx).
		Model(&types.GuardrailEvent{}).
		Where("study_id = ?", studyID).
		Order("ts DESC, id ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
