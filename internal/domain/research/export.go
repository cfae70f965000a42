package research

import (
	"time"

	"github.com/google/uuid"
)

type ExportStatus string

const (
	ExportRequested  ExportStatus = "REQUESTED"
	ExportRendering  ExportStatus = "RENDERING"
	ExportValidating ExportStatus = "VALIDATING"
	ExportWritten    ExportStatus = "WRITTEN"
	ExportFailed     ExportStatus = "FAILED"
)

// Export records one export run. WRITTEN rows are immutable; failed runs keep
// their error in last_error and leave no artifacts behind.
type Export struct {
	ID            uuid.UUID    `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	StudyID       uuid.UUID    `gorm:"type:uuid;not null;index" json:"study_id"`
	SchemaVersion int          `gorm:"column:schema_version;not null" json:"schema_version"`
	Formats       StringArray  `gorm:"type:text[];column:formats" json:"formats"`
	Datasets      StringArray  `gorm:"type:text[];column:datasets" json:"datasets"`
	Status        ExportStatus `gorm:"column:status;not null;default:'REQUESTED';index" json:"status"`
	Location      string       `gorm:"column:location;not null;default:''" json:"location"`
	Checksum      string       `gorm:"column:checksum;not null;default:''" json:"checksum"`
	LastError     string       `gorm:"column:last_error;type:text;not null;default:''" json:"last_error,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (Export) TableName() string { return "exports" }
