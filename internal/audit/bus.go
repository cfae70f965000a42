package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	types "github.com/mirrorpanel/mirrorpanel-backend/internal/domain/research"
)

// Event mirrors one guardrail row for live subscribers. The database row is
// the source of truth; the bus is best-effort fan-out.
type Event struct {
	ID       uuid.UUID                `json:"id"`
	StudyID  uuid.UUID                `json:"study_id"`
	Type     types.GuardrailEventType `json:"type"`
	Severity string                   `json:"severity"`
	Details  map[string]any           `json:"details,omitempty"`
	TS       time.Time                `json:"ts"`
}

type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// noopBus keeps callers unconditional when no broker is configured.
type noopBus struct{}

func NewNoopBus() Bus { return noopBus{} }

func (noopBus) Publish(ctx context.Context, ev Event) error { return nil }
func (noopBus) Close() error                                { return nil }
