package research

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/mirrorpanel/mirrorpanel-backend/internal/domain/research"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/platform/logger"
)

type PersonaRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.Persona) ([]*types.Persona, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Persona, error)
	ListByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Persona, error)
	List(ctx context.Context, tx *gorm.DB, limit int) ([]*types.Persona, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type personaRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPersonaRepo(db *gorm.DB, baseLog *logger.Logger) PersonaRepo {
	return &personaRepo{db: db, log: baseLog.With("repo", "PersonaRepo")}
}

func (r *personaRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.Persona) ([]*types.Persona, error) {
	if len(rows) == 0 {
		return []*types.Persona{}, nil
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

func (r *personaRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Persona, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing persona_id")
	}
	t := tx
	if t == nil {
		t = r.db
	}
	var out types.Persona
	if err := t.WithContext(ctx).First(&out, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *personaRepo) ListByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Persona, error) {
	if len(ids) == 0 {
		return []*types.Persona{}, nil
	}
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.Persona
	if err := t.WithContext(ctx).
		Model(&types.Persona{}).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *personaRepo) List(ctx context.Context, tx *gorm.DB, limit int) ([]*types.Persona, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.Persona
	if err := t.WithContext(ctx).
		Model(&types.Persona{}).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *personaRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing persona_id")
	}
	if len(updates) == 0 {
		return nil
	}
	t := tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(ctx).
		Model(&types.Persona{}).
		Where("id = ?", id).
		Updates(updates).Error
}
