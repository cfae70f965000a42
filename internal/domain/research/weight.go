package research

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	WeightMin     = 0.0
	WeightMax     = 5.0
	WeightDefault = 1.0
)

// PersonaWeight is the per-study strategic weight override. Rows exist only
// for personas whose weight was explicitly set; absent rows read as 1.0.
type PersonaWeight struct {
	StudyID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"study_id"`
	PersonaID uuid.UUID `gorm:"type:uuid;primaryKey" json:"persona_id"`
	Weight    float64   `gorm:"column:weight;not null;default:1.0" json:"weight"`

	// At most one row per study carries this flag.
	IsPrimaryICP bool `gorm:"column:is_primary_icp;not null;default:false" json:"is_primary_icp"`

	// Version increments on every write; snapshots record the max version they
	// observed so runs are attributable to a specific weight state.
	Version int64 `gorm:"column:version;not null;default:1" json:"version"`

	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (PersonaWeight) TableName() string { return "persona_weights" }

type GuardrailEventType string

const (
	GuardrailEventWeightChange  GuardrailEventType = "weight_change"
	GuardrailEventPrimaryICPSet GuardrailEventType = "primary_icp_set"
	GuardrailEventExportWritten GuardrailEventType = "export_written"
)

// GuardrailEvent is the append-only audit log. Rows are never mutated or
// deleted by this service.
type GuardrailEvent struct {
	ID       uuid.UUID          `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	StudyID  uuid.UUID          `gorm:"type:uuid;not null;index" json:"study_id"`
	Type     GuardrailEventType `gorm:"column:type;not null;index" json:"type"`
	Severity string             `gorm:"column:severity;not null;default:'info'" json:"severity"`
	Details  datatypes.JSON     `gorm:"type:jsonb;column:details;not null;default:'{}'" json:"details"`
	TS       time.Time          `gorm:"column:ts;not null;default:now();index" json:"ts"`
}

func (GuardrailEvent) TableName() string { return "guardrail_events" }
