package research

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Study struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Title     string         `gorm:"column:title;not null" json:"title"`
	Objective string         `gorm:"column:objective;type:text;not null;default:''" json:"objective"`
	Config    datatypes.JSON `gorm:"type:jsonb;column:config;not null;default:'{}'" json:"config"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Study) TableName() string { return "studies" }

type SessionStatus string

const (
	SessionStatusCreated    SessionStatus = "created"
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusCompleted  SessionStatus = "completed"
)

type Session struct {
	ID      uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	StudyID uuid.UUID      `gorm:"type:uuid;not null;index" json:"study_id"`
	Status  SessionStatus  `gorm:"column:status;not null;default:'created';index" json:"status"`
	Meta    datatypes.JSON `gorm:"type:jsonb;column:meta;not null;default:'{}'" json:"meta"`

	StartedAt  *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty"`
}

func (Session) TableName() string { return "sessions" }
