package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mirrorpanel/mirrorpanel-backend/internal/domain/research"
)

func SeedStudy(tb testing.TB, ctx context.Context, tx *gorm.DB, title string) *research.Study {
	tb.Helper()
	s := &research.Study{
		ID:        uuid.New(),
		Title:     title,
		Objective: "objective",
		Config:    datatypes.JSON([]byte(`{}`)),
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed study: %v", err)
	}
	return s
}

func SeedSession(tb testing.TB, ctx context.Context, tx *gorm.DB, studyID uuid.UUID) *research.Session {
	tb.Helper()
	sess := &research.Session{
		ID:      uuid.New(),
		StudyID: studyID,
		Status:  research.SessionStatusCompleted,
		Meta:    datatypes.JSON([]byte(`{}`)),
	}
	if err := tx.WithContext(ctx).Create(sess).Error; err != nil {
		tb.Fatalf("seed session: %v", err)
	}
	return sess
}

func SeedPersona(tb testing.TB, ctx context.Context, tx *gorm.DB, name string) *research.Persona {
	tb.Helper()
	p := &research.Persona{
		ID:        uuid.New(),
		Name:      name,
		Archetype: "buyer",
		Traits:    datatypes.JSON([]byte(`{}`)),
		Weight:    research.WeightDefault,
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed persona: %v", err)
	}
	return p
}

func SeedMessage(tb testing.TB, ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, personaID *uuid.UUID, seq int64, content string) *research.Message {
	tb.Helper()
	m := &research.Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      research.MessageRoleParticipant,
		PersonaID: personaID,
		Content:   content,
		Meta:      datatypes.JSON([]byte(`{}`)),
		Seq:       seq,
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed message: %v", err)
	}
	return m
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
