package services_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mirrorpanel/mirrorpanel-backend/internal/data/repos"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/data/repos/testutil"
	types "github.com/mirrorpanel/mirrorpanel-backend/internal/domain/research"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/insights"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/services"
)

func newAggregation(t *testing.T) (services.AggregationService, *gorm.DB) {
	t.Helper()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	svc := services.NewAggregationService(
		gdb,
		repos.NewStudyRepo(gdb, log),
		repos.NewMessageRepo(gdb, log),
		repos.NewInsightRepo(gdb, log),
		repos.NewPersonaRollupRepo(gdb, log),
		newWeightTable(t),
		log,
	)
	return svc, gdb
}

func seedTaggedMessage(t *testing.T, ctx context.Context, gdb *gorm.DB, sessionID uuid.UUID, personaID *uuid.UUID, seq int64, tags types.MessageTags) *types.Message {
	t.Helper()
	m := &types.Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      types.MessageRoleParticipant,
		PersonaID: personaID,
		Content:   "tagged fixture message",
		Seq:       seq,
	}
	if err := m.SetTags(tags); err != nil {
		t.Fatalf("set tags: %v", err)
	}
	if err := gdb.WithContext(ctx).Create(m).Error; err != nil {
		t.Fatalf("seed tagged message: %v", err)
	}
	return m
}

func TestAggregationRunPersistsInsightAndRollups(t *testing.T) {
	svc, gdb := newAggregation(t)
	log := testutil.Logger(t)
	ctx := context.Background()

	study := testutil.SeedStudy(t, ctx, gdb, "aggregation run")
	sess := testutil.SeedSession(t, ctx, gdb, study.ID)
	heavy := testutil.SeedPersona(t, ctx, gdb, "Heavy Hannah")
	light := testutil.SeedPersona(t, ctx, gdb, "Light Liam")

	wt := newWeightTable(t)
	if _, err := wt.Set(ctx, study.ID, heavy.ID, 3.0, "tester"); err != nil {
		t.Fatalf("set weight: %v", err)
	}

	seedTaggedMessage(t, ctx, gdb, sess.ID, testutil.PtrUUID(heavy.ID), 1, types.MessageTags{
		Themes:    []types.ThemeTag{{Theme: "pricing", Confidence: 0.9}},
		Sentiment: -0.2,
	})
	seedTaggedMessage(t, ctx, gdb, sess.ID, testutil.PtrUUID(light.ID), 2, types.MessageTags{
		Themes:    []types.ThemeTag{{Theme: "pricing", Confidence: 0.4}, {Theme: "onboarding", Confidence: 0.8}},
		Sentiment: 0.5,
	})

	insight, err := svc.Run(ctx, study.ID, insights.Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if insight.StudyID != study.ID {
		t.Fatalf("insight study: %v", insight.StudyID)
	}

	var payload services.AggregationPayload
	if err := json.Unmarshal(insight.Meta, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.SchemaVersion != services.AggregationSchemaVersion {
		t.Fatalf("schema version: want=%d got=%d", services.AggregationSchemaVersion, payload.SchemaVersion)
	}
	if payload.AggregationMethod != services.AggregationMethodFrequencyConfidence {
		t.Fatalf("aggregation method: got=%q", payload.AggregationMethod)
	}
	if !payload.WeightingEnabled {
		t.Fatalf("weighting flag must be recorded")
	}
	if len(payload.Themes) != 2 {
		t.Fatalf("expected 2 themes, got %d", len(payload.Themes))
	}
	if payload.Themes[0].ThemeID != "pricing" {
		t.Fatalf("heavily weighted theme should rank first, got %q", payload.Themes[0].ThemeID)
	}
	if payload.SnapshotVersion == 0 {
		t.Fatalf("snapshot version should be recorded")
	}
	if payload.Limitations == nil {
		t.Fatalf("limitations must encode as an array")
	}

	latest, err := svc.Latest(ctx, study.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != insight.ID {
		t.Fatalf("latest should be the run just persisted")
	}

	rollups, err := repos.NewPersonaRollupRepo(gdb, log).ListByStudy(ctx, nil, study.ID)
	if err != nil {
		t.Fatalf("rollups: %v", err)
	}
	// 4 metric rows per persona-theme cell: heavy has 1 theme, light has 2.
	if len(rollups) != 12 {
		t.Fatalf("expected 12 rollup rows, got %d", len(rollups))
	}
}

func TestAggregationRunFailurePersistsNothing(t *testing.T) {
	svc, gdb := newAggregation(t)
	ctx := context.Background()

	study := testutil.SeedStudy(t, ctx, gdb, "failed run")
	sess := testutil.SeedSession(t, ctx, gdb, study.ID)

	// A tagged participant message without a persona makes the run invalid.
	seedTaggedMessage(t, ctx, gdb, sess.ID, nil, 1, types.MessageTags{
		Themes:    []types.ThemeTag{{Theme: "pricing", Confidence: 0.9}},
		Sentiment: 0.1,
	})

	_, err := svc.Run(ctx, study.ID, insights.Options{})
	if services.CodeOf(err) != services.ErrCodeValidation {
		t.Fatalf("expected validation failure, got %v", err)
	}

	if _, err := svc.Latest(ctx, study.ID); services.CodeOf(err) != services.ErrCodeNotFound {
		t.Fatalf("failed run must not persist an insight, got %v", err)
	}
}

func TestAggregationRunZeroWeightDegradesPerTheme(t *testing.T) {
	svc, gdb := newAggregation(t)
	ctx := context.Background()

	study := testutil.SeedStudy(t, ctx, gdb, "zero weights")
	sess := testutil.SeedSession(t, ctx, gdb, study.ID)
	muted := testutil.SeedPersona(t, ctx, gdb, "Muted Mira")

	wt := newWeightTable(t)
	if _, err := wt.Set(ctx, study.ID, muted.ID, 0, "tester"); err != nil {
		t.Fatalf("set weight: %v", err)
	}

	seedTaggedMessage(t, ctx, gdb, sess.ID, testutil.PtrUUID(muted.ID), 1, types.MessageTags{
		Themes:    []types.ThemeTag{{Theme: "pricing", Confidence: 0.7}},
		Sentiment: -0.4,
	})

	insight, err := svc.Run(ctx, study.ID, insights.Options{})
	if err != nil {
		t.Fatalf("run should complete despite zero weights: %v", err)
	}

	var payload services.AggregationPayload
	if err := json.Unmarshal(insight.Meta, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(payload.Themes) != 1 {
		t.Fatalf("expected 1 theme, got %d", len(payload.Themes))
	}
	theme := payload.Themes[0]
	if !theme.ZeroDenominator {
		t.Fatalf("all-zero weights should flag the theme")
	}
	if theme.ScoreWeighted != 0 || theme.SentimentWeighted != 0 {
		t.Fatalf("undefined weighted values must hold 0, got %+v", theme)
	}
	if theme.ScoreUnweighted == 0 {
		t.Fatalf("unweighted values stay defined, got %+v", theme)
	}
}
