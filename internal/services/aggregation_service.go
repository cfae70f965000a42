package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mirrorpanel/mirrorpanel-backend/internal/data/repos"
	types "github.com/mirrorpanel/mirrorpanel-backend/internal/domain/research"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/insights"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/observability"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/platform/logger"
)

const (
	// AggregationSchemaVersion tags persisted insight payloads so downstream
	// readers can tell how the numbers were produced.
	AggregationSchemaVersion = 1
	// AggregationMethodFrequencyConfidence is the only scoring method this
	// engine implements: theme score = mention frequency x mean confidence.
	AggregationMethodFrequencyConfidence = "frequency_x_confidence"
)

// AggregationPayload is the full rollup persisted in Insight.Meta and carried
// into exports unchanged.
type AggregationPayload struct {
	SchemaVersion     int                                                `json:"schema_version"`
	AggregationMethod string                                             `json:"aggregation_method"`
	WeightingEnabled  bool                                               `json:"weighting_enabled"`
	SnapshotVersion   int64                                              `json:"snapshot_version"`
	PrimaryICP        string                                             `json:"primary_icp,omitempty"`
	SupportThreshold  float64                                            `json:"support_threshold"`
	Themes            []insights.ThemeMetrics                            `json:"themes"`
	ByPersona         map[string]map[string]insights.PersonaThemeMetrics `json:"by_persona"`
	Limitations       []string                                           `json:"limitations"`
}

type AggregationService interface {
	// Run freezes the weight state, aggregates every tagged participant
	// message of the study, and persists the result. Failed runs persist
	// nothing.
	Run(ctx context.Context, studyID uuid.UUID, opts insights.Options) (*types.Insight, error)
	Latest(ctx context.Context, studyID uuid.UUID) (*types.Insight, error)
}

type aggregationService struct {
	db       *gorm.DB
	studies  repos.StudyRepo
	messages repos.MessageRepo
	insights repos.InsightRepo
	rollups  repos.PersonaRollupRepo
	weights  WeightTableService
	log      *logger.Logger
}

func NewAggregationService(
	db *gorm.DB,
	studies repos.StudyRepo,
	messages repos.MessageRepo,
	insightRepo repos.InsightRepo,
	rollups repos.PersonaRollupRepo,
	weightTable WeightTableService,
	baseLog *logger.Logger,
) AggregationService {
	return &aggregationService{
		db:       db,
		studies:  studies,
		messages: messages,
		insights: insightRepo,
		rollups:  rollups,
		weights:  weightTable,
		log:      baseLog.With("service", "AggregationService"),
	}
}

func (s *aggregationService) Run(ctx context.Context, studyID uuid.UUID, opts insights.Options) (*types.Insight, error) {
	ctx, span := otel.Tracer("aggregation").Start(ctx, "aggregation.run")
	defer span.End()
	span.SetAttributes(attribute.String("study_id", studyID.String()))

	start := time.Now()
	status := string(types.AggregationRunRunning)
	s.log.Info("aggregation run started", "study_id", studyID, "status", status)

	insight, err := s.run(ctx, studyID, opts)
	if err != nil {
		status = string(types.AggregationRunFailed)
		s.log.Error("aggregation run failed", "study_id", studyID, "error", err)
	} else {
		status = string(types.AggregationRunComplete)
		s.log.Info("aggregation run complete", "study_id", studyID, "insight_id", insight.ID)
	}
	observability.Current().ObserveAggregationRun(status, time.Since(start))
	return insight, err
}

func (s *aggregationService) run(ctx context.Context, studyID uuid.UUID, opts insights.Options) (*types.Insight, error) {
	study, err := s.studies.GetByID(ctx, nil, studyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, svcErr(ErrCodeNotFound, fmt.Sprintf("study %s not found", studyID), err)
		}
		return nil, svcErr(ErrCodeInternal, "read study", err)
	}

	// Snapshot first: weight edits racing this run are invisible to it.
	snap, err := s.weights.Snapshot(ctx, studyID)
	if err != nil {
		return nil, err
	}

	msgs, err := s.messages.ListByStudy(ctx, nil, studyID)
	if err != nil {
		return nil, svcErr(ErrCodeInternal, "load messages", err)
	}

	tagged := make([]insights.TaggedMessage, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role != types.MessageRoleParticipant {
			continue
		}
		tags, ok := msg.Tags()
		if !ok {
			continue
		}
		var personaID uuid.UUID
		if msg.PersonaID != nil {
			personaID = *msg.PersonaID
		}
		tagged = append(tagged, insights.TaggedMessage{
			MessageID: msg.ID,
			PersonaID: personaID,
			Themes:    tags.Themes,
			Sentiment: tags.Sentiment,
		})
	}

	result, err := insights.Aggregate(tagged, snap, opts)
	if err != nil {
		var aggErr *insights.AggregationError
		if errors.As(err, &aggErr) {
			return nil, svcErr(ErrCodeValidation, aggErr.Message, err)
		}
		return nil, svcErr(ErrCodeInternal, "aggregate", err)
	}

	payload := AggregationPayload{
		SchemaVersion:     AggregationSchemaVersion,
		AggregationMethod: AggregationMethodFrequencyConfidence,
		WeightingEnabled:  true,
		SnapshotVersion:   snap.Version,
		SupportThreshold:  opts.Threshold(),
		Themes:            result.Themes,
		ByPersona:         make(map[string]map[string]insights.PersonaThemeMetrics, len(result.ByPersona)),
		Limitations:       result.Limitations,
	}
	if snap.PrimaryICP != nil {
		payload.PrimaryICP = snap.PrimaryICP.String()
	}
	if payload.Limitations == nil {
		payload.Limitations = []string{}
	}
	for personaID, byTheme := range result.ByPersona {
		payload.ByPersona[personaID.String()] = byTheme
	}

	meta, err := json.Marshal(payload)
	if err != nil {
		return nil, svcErr(ErrCodeInternal, "encode payload", err)
	}

	insight := &types.Insight{
		StudyID:   studyID,
		Title:     insightTitle(study, result),
		SummaryMD: insightSummary(result),
		Tags:      themeTags(result),
		Meta:      datatypes.JSON(meta),
	}
	if len(result.Themes) > 0 {
		insight.Score = result.Themes[0].ScoreWeighted
	}

	rollups := buildRollups(studyID, result)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.insights.Create(ctx, tx, []*types.Insight{insight}); err != nil {
			return err
		}
		return s.rollups.ReplaceForStudy(ctx, tx, studyID, rollups)
	})
	if err != nil {
		return nil, svcErr(ErrCodeInternal, "persist aggregation", err)
	}
	return insight, nil
}

func (s *aggregationService) Latest(ctx context.Context, studyID uuid.UUID) (*types.Insight, error) {
	row, err := s.insights.Latest(ctx, nil, studyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, svcErr(ErrCodeNotFound, fmt.Sprintf("study %s has no aggregation yet", studyID), err)
		}
		return nil, svcErr(ErrCodeInternal, "read insight", err)
	}
	return row, nil
}

func insightTitle(study *types.Study, result insights.Result) string {
	if len(result.Themes) == 0 {
		return fmt.Sprintf("%s: no themes", study.Title)
	}
	return fmt.Sprintf("%s: top theme %q", study.Title, result.Themes[0].ThemeID)
}

func insightSummary(result insights.Result) string {
	if len(result.Themes) == 0 {
		return "No tagged participant messages were available to aggregate."
	}
	top := result.Themes[0]
	return fmt.Sprintf(
		"%d themes across %d personas. Leading theme %q scored %.4f weighted (%.4f unweighted) with %.0f%% weighted agreement.",
		len(result.Themes), len(result.ByPersona), top.ThemeID,
		top.ScoreWeighted, top.ScoreUnweighted, top.AgreementWeighted*100,
	)
}

func themeTags(result insights.Result) types.StringArray {
	limit := len(result.Themes)
	if limit > 5 {
		limit = 5
	}
	tags := make(types.StringArray, 0, limit)
	for _, theme := range result.Themes[:limit] {
		tags = append(tags, theme.ThemeID)
	}
	return tags
}

func buildRollups(studyID uuid.UUID, result insights.Result) []*types.PersonaRollup {
	var rows []*types.PersonaRollup
	for personaID, byTheme := range result.ByPersona {
		for theme, metrics := range byTheme {
			supports := 0.0
			if metrics.Supports {
				supports = 1
			}
			rows = append(rows,
				&types.PersonaRollup{StudyID: studyID, PersonaID: personaID, Metric: theme + ":frequency", Value: float64(metrics.Frequency)},
				&types.PersonaRollup{StudyID: studyID, PersonaID: personaID, Metric: theme + ":theme_score", Value: metrics.ThemeScore},
				&types.PersonaRollup{StudyID: studyID, PersonaID: personaID, Metric: theme + ":sentiment", Value: metrics.Sentiment},
				&types.PersonaRollup{StudyID: studyID, PersonaID: personaID, Metric: theme + ":supports", Value: supports},
			)
		}
	}
	return rows
}
