package research

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/mirrorpanel/mirrorpanel-backend/internal/domain/research"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/platform/logger"
)

// MessageRepo is append-only: rows are never updated or deleted outside of a
// study cascade.
type MessageRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.Message) ([]*types.Message, error)
	GetMaxSeq(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int64, error)
	ListBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.Message, error)
	// ListByStudy walks every session of the study in a stable order:
	// session id, then seq, then message id. Two reads of the same data
	// always yield the same sequence.
	ListByStudy(ctx context.Context, tx *gorm.DB, studyID uuid.UUID) ([]*types.Message, error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: baseLog.With("repo", "MessageRepo")}
}

func (r *messageRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.Message) ([]*types.Message, error) {
	if len(rows) == 0 {
		return []*types.Message{}, nil
	}
	for _, row := range rows {
		if row.SessionID == uuid.Nil {
			return nil, fmt.Errorf("missing session_id")
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

func (r *messageRepo) GetMaxSeq(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int64, error) {
	if sessionID == uuid.Nil {
		return 0, fmt.Errorf("missing session_id")
	}
	t := tx
	if t == nil {
		t = r.db
	}
	var maxSeq int64
	if err := t.WithContext(ctx).
		Model(&types.Message{}).
		Select("COALESCE(MAX(seq), 0)").
		Where("session_id = ?", sessionID).
		Scan(&maxSeq).Error; err != nil {
		return 0, err
	}
	return maxSeq, nil
}

func (r *messageRepo) ListBySession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.Message, error) {
	if sessionID == uuid.Nil {
		return nil, fmt.Errorf("missing session_id")
	}
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.Message
	if err := t.WithContext(ctx).
		Model(&types.Message{}).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *messageRepo) ListByStudy(ctx context.Context, tx *gorm.DB, studyID uuid.UUID) ([]*types.Message, error) {
	if studyID == uuid.Nil {
		return nil, fmt.Errorf("missing study_id")
	}
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.Message
	if err := t.WithContext(ctx).
		Model(&types.Message{}).
		Joins("JOIN sessions ON sessions.id = messages.session_id").
		Where("sessions.study_id = ?", studyID).
		Order("messages.session_id ASC, messages.seq ASC, messages.id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
