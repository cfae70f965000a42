package research

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type MessageRole string

const (
	MessageRoleFacilitator MessageRole = "facilitator"
	MessageRoleParticipant MessageRole = "participant"
)

// Message rows are append-only input: immutable once written. Tagging output
// (themes, sentiment, emotion labels) is denormalized into meta by the
// external tagging collaborator before aggregation reads it.
type Message struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID uuid.UUID      `gorm:"type:uuid;not null;index;index:idx_messages_session_seq,unique,priority:1" json:"session_id"`
	Role      MessageRole    `gorm:"column:role;not null;index" json:"role"`
	PersonaID *uuid.UUID     `gorm:"type:uuid;index" json:"persona_id,omitempty"`
	Content   string         `gorm:"column:content;type:text;not null;default:''" json:"content"`
	Meta      datatypes.JSON `gorm:"type:jsonb;column:meta;not null;default:'{}'" json:"meta"`

	Seq int64 `gorm:"column:seq;not null;index:idx_messages_session_seq,unique,priority:2" json:"seq"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (Message) TableName() string { return "messages" }

// ThemeTag is one tagged theme mention with the tagger's confidence in [0,1].
type ThemeTag struct {
	Theme      string  `json:"theme"`
	Confidence float64 `json:"confidence"`
}

// MessageTags is the tag payload carried in Message.Meta under "tags".
type MessageTags struct {
	Themes    []ThemeTag `json:"themes"`
	Sentiment float64    `json:"sentiment"`
	Emotions  []string   `json:"emotions,omitempty"`
}

type messageMeta struct {
	Tags *MessageTags `json:"tags"`
}

// Tags decodes the tag payload from meta. Untagged messages return ok=false
// and are skipped by aggregation rather than treated as zero-sentiment.
func (m *Message) Tags() (MessageTags, bool) {
	if m == nil || len(m.Meta) == 0 {
		return MessageTags{}, false
	}
	var meta messageMeta
	if err := json.Unmarshal(m.Meta, &meta); err != nil || meta.Tags == nil {
		return MessageTags{}, false
	}
	return *meta.Tags, true
}

// SetTags writes the tag payload into meta, preserving unrelated keys.
func (m *Message) SetTags(tags MessageTags) error {
	raw := map[string]json.RawMessage{}
	if len(m.Meta) > 0 {
		if err := json.Unmarshal(m.Meta, &raw); err != nil {
			return err
		}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	raw["tags"] = encoded
	merged, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	m.Meta = merged
	return nil
}
