package research

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type AggregationRunStatus string

const (
	AggregationRunPending  AggregationRunStatus = "PENDING"
	AggregationRunRunning  AggregationRunStatus = "RUNNING"
	AggregationRunComplete AggregationRunStatus = "COMPLETE"
	AggregationRunFailed   AggregationRunStatus = "FAILED"
)

// Insight is one completed aggregation run. The full rollup payload
// (aggregate, by_persona, limitations, weighting flags) is carried in meta;
// score mirrors the top theme's weighted score for cheap SQL-side ordering.
type Insight struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	StudyID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"study_id"`
	Title     string         `gorm:"column:title;not null" json:"title"`
	SummaryMD string         `gorm:"column:summary_md;type:text;not null;default:''" json:"summary_md"`
	Tags      StringArray    `gorm:"type:text[];column:tags" json:"tags"`
	Score     float64        `gorm:"column:score;not null;default:0" json:"score"`
	Meta      datatypes.JSON `gorm:"type:jsonb;column:meta;not null;default:'{}'" json:"meta"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (Insight) TableName() string { return "insights" }

// PersonaRollup is one flattened metric cell keyed (study, persona, metric),
// kept alongside the insight payload for downstream SQL tooling.
type PersonaRollup struct {
	StudyID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"study_id"`
	PersonaID uuid.UUID `gorm:"type:uuid;primaryKey" json:"persona_id"`
	Metric    string    `gorm:"column:metric;primaryKey" json:"metric"`
	Value     float64   `gorm:"column:value;not null;default:0" json:"value"`
}

func (PersonaRollup) TableName() string { return "persona_rollups" }
