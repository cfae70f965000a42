package research

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Persona struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name      string         `gorm:"column:name;not null" json:"name"`
	Archetype string         `gorm:"column:archetype;not null;default:''" json:"archetype"`
	Traits    datatypes.JSON `gorm:"type:jsonb;column:traits;not null;default:'{}'" json:"traits"`

	// Weight is the baseline strategic weight; per-study overrides live in
	// persona_weights and are owned by the weight table service.
	Weight float64 `gorm:"column:weight;not null;default:1.0" json:"weight"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Persona) TableName() string { return "personas" }
