package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/mirrorpanel/mirrorpanel-backend/internal/audit"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/data/repos"
	types "github.com/mirrorpanel/mirrorpanel-backend/internal/domain/research"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/export"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/observability"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/platform/gcp"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/platform/logger"
)

type ExportRequest struct {
	StudyID  uuid.UUID
	Formats  []string
	Datasets []string
	Actor    string
}

type ExportService interface {
	// Run renders, validates, and atomically publishes one export. At most
	// one run per study is in flight at a time.
	Run(ctx context.Context, req ExportRequest) (*types.Export, error)
	Get(ctx context.Context, exportID uuid.UUID) (*types.Export, error)
	ListByStudy(ctx context.Context, studyID uuid.UUID) ([]*types.Export, error)
}

type exportService struct {
	db         *gorm.DB
	studies    repos.StudyRepo
	personas   repos.PersonaRepo
	messages   repos.MessageRepo
	weights    repos.PersonaWeightRepo
	insights   repos.InsightRepo
	guardrails repos.GuardrailEventRepo
	exports    repos.ExportRepo
	bus        audit.Bus
	bucket     gcp.BucketService
	exportDir  string
	log        *logger.Logger

	mu       sync.Mutex
	inFlight map[uuid.UUID]bool
}

func NewExportService(
	db *gorm.DB,
	studies repos.StudyRepo,
	personas repos.PersonaRepo,
	messages repos.MessageRepo,
	weightRepo repos.PersonaWeightRepo,
	insightRepo repos.InsightRepo,
	guardrails repos.GuardrailEventRepo,
	exports repos.ExportRepo,
	bus audit.Bus,
	bucket gcp.BucketService,
	exportDir string,
	baseLog *logger.Logger,
) ExportService {
	if exportDir == "" {
		exportDir = "exports"
	}
	return &exportService{
		db:         db,
		studies:    studies,
		personas:   personas,
		messages:   messages,
		weights:    weightRepo,
		insights:   insightRepo,
		guardrails: guardrails,
		exports:    exports,
		bus:        bus,
		bucket:     bucket,
		exportDir:  exportDir,
		log:        baseLog.With("service", "ExportService"),
		inFlight:   map[uuid.UUID]bool{},
	}
}

func (s *exportService) Run(ctx context.Context, req ExportRequest) (*types.Export, error) {
	ctx, span := otel.Tracer("export").Start(ctx, "export.run")
	defer span.End()
	span.SetAttributes(attribute.String("study_id", req.StudyID.String()))

	formats, err := export.ParseFormats(req.Formats)
	if err != nil {
		return nil, svcErr(ErrCodeValidation, err.Error(), err)
	}
	datasets, err := export.ParseDatasets(req.Datasets)
	if err != nil {
		return nil, svcErr(ErrCodeValidation, err.Error(), err)
	}

	if !s.acquire(req.StudyID) {
		return nil, svcErr(ErrCodeConflict,
			fmt.Sprintf("an export for study %s is already running", req.StudyID), nil)
	}
	defer s.release(req.StudyID)

	start := time.Now()
	row, artifactCount, err := s.run(ctx, req, formats, datasets)
	status := string(types.ExportWritten)
	if err != nil {
		status = string(types.ExportFailed)
	}
	observability.Current().ObserveExportRun(status, time.Since(start), artifactCount)
	return row, err
}

func (s *exportService) run(ctx context.Context, req ExportRequest, formats []export.Format, datasets []export.Dataset) (*types.Export, int, error) {
	study, err := s.studies.GetByID(ctx, nil, req.StudyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, svcErr(ErrCodeNotFound, fmt.Sprintf("study %s not found", req.StudyID), err)
		}
		return nil, 0, svcErr(ErrCodeInternal, "read study", err)
	}

	row, err := s.exports.Create(ctx, nil, &types.Export{
		StudyID:       req.StudyID,
		SchemaVersion: export.SchemaVersion,
		Formats:       toStringArray(formats),
		Datasets:      toStringArrayDatasets(datasets),
		Status:        types.ExportRequested,
	})
	if err != nil {
		return nil, 0, svcErr(ErrCodeInternal, "create export record", err)
	}

	fail := func(code ErrorCode, msg string, cause error) (*types.Export, int, error) {
		serr := svcErr(code, msg, cause)
		_ = s.exports.UpdateFields(ctx, nil, row.ID, map[string]interface{}{
			"status":     types.ExportFailed,
			"last_error": serr.Error(),
		})
		s.log.Error("export run failed", "export_id", row.ID, "study_id", req.StudyID, "error", serr)
		return nil, 0, serr
	}

	if err := s.exports.UpdateFields(ctx, nil, row.ID, map[string]interface{}{"status": types.ExportRendering}); err != nil {
		return fail(ErrCodeInternal, "mark rendering", err)
	}

	input, err := s.buildInput(ctx, study, datasets)
	if err != nil {
		return fail(CodeOf(err), "assemble export input", err)
	}

	// One render per requested format, in parallel; output order stays the
	// caller's format order.
	grouped := make([][]export.Artifact, len(formats))
	g, gctx := errgroup.WithContext(ctx)
	for i, format := range formats {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			artifacts, err := export.Render(input, []export.Format{format}, datasets)
			if err != nil {
				return err
			}
			grouped[i] = artifacts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fail(ErrCodeInternal, "render artifacts", err)
	}
	var artifacts []export.Artifact
	for _, part := range grouped {
		artifacts = append(artifacts, part...)
	}

	if err := s.exports.UpdateFields(ctx, nil, row.ID, map[string]interface{}{"status": types.ExportValidating}); err != nil {
		return fail(ErrCodeInternal, "mark validating", err)
	}
	if err := export.ValidateArtifacts(artifacts, datasets); err != nil {
		return fail(ErrCodeSchemaViolation, "artifact validation", err)
	}

	location, err := s.publish(req.StudyID, row.ID, artifacts)
	if err != nil {
		return fail(ErrCodeInternal, "publish artifacts", err)
	}
	checksum := export.RunChecksum(artifacts)

	if err := s.exports.UpdateFields(ctx, nil, row.ID, map[string]interface{}{
		"status":   types.ExportWritten,
		"location": location,
		"checksum": checksum,
	}); err != nil {
		return fail(ErrCodeInternal, "mark written", err)
	}
	row.Status = types.ExportWritten
	row.Location = location
	row.Checksum = checksum

	s.mirror(ctx, req.StudyID, row.ID, artifacts)
	s.audit(ctx, req, row, len(artifacts))

	s.log.Info("export published",
		"export_id", row.ID, "study_id", req.StudyID,
		"artifacts", len(artifacts), "location", location)
	return row, len(artifacts), nil
}

func (s *exportService) Get(ctx context.Context, exportID uuid.UUID) (*types.Export, error) {
	row, err := s.exports.GetByID(ctx, nil, exportID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, svcErr(ErrCodeNotFound, fmt.Sprintf("export %s not found", exportID), err)
		}
		return nil, svcErr(ErrCodeInternal, "read export", err)
	}
	return row, nil
}

func (s *exportService) ListByStudy(ctx context.Context, studyID uuid.UUID) ([]*types.Export, error) {
	rows, err := s.exports.ListByStudy(ctx, nil, studyID, 0)
	if err != nil {
		return nil, svcErr(ErrCodeInternal, "list exports", err)
	}
	return rows, nil
}

func (s *exportService) acquire(studyID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[studyID] {
		return false
	}
	s.inFlight[studyID] = true
	return true
}

func (s *exportService) release(studyID uuid.UUID) {
	s.mu.Lock()
	delete(s.inFlight, studyID)
	s.mu.Unlock()
}

// buildInput materializes the study into pre-formatted rows. All rounding and
// timestamp formatting happens here so rendering adds no new state.
func (s *exportService) buildInput(ctx context.Context, study *types.Study, datasets []export.Dataset) (export.Input, error) {
	in := export.Input{
		StudyID:    study.ID.String(),
		StudyTitle: study.Title,
		Objective:  study.Objective,
		ConfigJSON: jsonOrEmpty(study.Config),
	}

	msgs, err := s.messages.ListByStudy(ctx, nil, study.ID)
	if err != nil {
		return export.Input{}, svcErr(ErrCodeInternal, "load messages", err)
	}
	weightRows, err := s.weights.ListByStudy(ctx, nil, study.ID)
	if err != nil {
		return export.Input{}, svcErr(ErrCodeInternal, "load weights", err)
	}

	personaIDs := map[uuid.UUID]bool{}
	for _, w := range weightRows {
		personaIDs[w.PersonaID] = true
	}
	for _, m := range msgs {
		if m.PersonaID != nil {
			personaIDs[*m.PersonaID] = true
		}
	}
	ids := make([]uuid.UUID, 0, len(personaIDs))
	for id := range personaIDs {
		ids = append(ids, id)
	}
	personas, err := s.personas.ListByIDs(ctx, nil, ids)
	if err != nil {
		return export.Input{}, svcErr(ErrCodeInternal, "load personas", err)
	}

	overrides := map[uuid.UUID]*types.PersonaWeight{}
	for _, w := range weightRows {
		overrides[w.PersonaID] = w
	}
	names := map[uuid.UUID]string{}
	for _, p := range personas {
		names[p.ID] = p.Name
		weight := types.WeightDefault
		primary := false
		if o := overrides[p.ID]; o != nil {
			weight = o.Weight
			primary = o.IsPrimaryICP
		}
		in.Personas = append(in.Personas, export.PersonaRow{
			PersonaID:    p.ID.String(),
			StudyID:      study.ID.String(),
			PersonaName:  p.Name,
			Weight:       export.RoundFloat(weight),
			TraitsJSON:   jsonOrEmpty(p.Traits),
			CreatedAt:    export.FormatTime(p.CreatedAt),
			IsPrimaryICP: primary,
		})
	}

	for _, m := range msgs {
		name := ""
		if m.PersonaID != nil {
			name = names[*m.PersonaID]
		}
		tags, _ := m.Tags()
		topics := make([]string, 0, len(tags.Themes))
		seen := map[string]bool{}
		for _, theme := range tags.Themes {
			if theme.Theme == "" || seen[theme.Theme] {
				continue
			}
			seen[theme.Theme] = true
			topics = append(topics, theme.Theme)
		}
		usage := decodeUsage(m.Meta)
		in.Messages = append(in.Messages, export.MessageRow{
			StudyID:     study.ID.String(),
			Turn:        m.Seq,
			PersonaName: name,
			Role:        string(m.Role),
			Content:     m.Content,
			Tokens:      usage.Tokens,
			Cost:        export.RoundFloat(usage.Cost),
			Topics:      topics,
			Sentiment:   export.RoundFloat(tags.Sentiment),
			TS:          export.FormatTime(m.CreatedAt),
		})
	}

	if wantsInsights(datasets) {
		if err := s.attachInsights(ctx, study.ID, &in); err != nil {
			return export.Input{}, err
		}
	}

	guardrails, err := s.guardrails.ListByStudy(ctx, nil, study.ID, 0)
	if err != nil {
		return export.Input{}, svcErr(ErrCodeInternal, "load guardrails", err)
	}
	for _, g := range guardrails {
		in.Guardrails = append(in.Guardrails, export.GuardrailRow{
			ID:          g.ID.String(),
			StudyID:     g.StudyID.String(),
			Type:        string(g.Type),
			Severity:    g.Severity,
			DetailsJSON: jsonOrEmpty(g.Details),
			TS:          export.FormatTime(g.TS),
		})
	}

	if in.Limitations == nil {
		in.Limitations = []string{}
	}
	return in, nil
}

func (s *exportService) attachInsights(ctx context.Context, studyID uuid.UUID, in *export.Input) error {
	latest, err := s.insights.Latest(ctx, nil, studyID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		in.Limitations = append(in.Limitations, "no aggregation run has completed for this study")
		return nil
	}
	if err != nil {
		return svcErr(ErrCodeInternal, "load latest insight", err)
	}

	var payload AggregationPayload
	if err := json.Unmarshal(latest.Meta, &payload); err != nil {
		return svcErr(ErrCodeInternal, "decode aggregation payload", err)
	}

	for _, theme := range payload.Themes {
		in.Themes = append(in.Themes, export.ThemeRow{
			StudyID:             studyID.String(),
			ThemeID:             export.SlugifyTheme(theme.ThemeID),
			Theme:               theme.ThemeID,
			ScoreWeighted:       export.RoundFloat(theme.ScoreWeighted),
			ScoreUnweighted:     export.RoundFloat(theme.ScoreUnweighted),
			AgreementWeighted:   export.RoundFloat(theme.AgreementWeighted),
			AgreementUnweighted: export.RoundFloat(theme.AgreementUnweighted),
			SentimentWeighted:   export.RoundFloat(theme.SentimentWeighted),
			SentimentUnweighted: export.RoundFloat(theme.SentimentUnweighted),
			ZeroDenominator:     theme.ZeroDenominator,
		})
	}

	personaIDs := make([]string, 0, len(payload.ByPersona))
	for id := range payload.ByPersona {
		personaIDs = append(personaIDs, id)
	}
	sort.Strings(personaIDs)
	for _, personaID := range personaIDs {
		byTheme := payload.ByPersona[personaID]
		themeIDs := make([]string, 0, len(byTheme))
		for theme := range byTheme {
			themeIDs = append(themeIDs, theme)
		}
		sort.Strings(themeIDs)
		for _, theme := range themeIDs {
			metrics := byTheme[theme]
			in.ByPersona = append(in.ByPersona, export.ByPersonaRow{
				StudyID:    studyID.String(),
				PersonaID:  personaID,
				ThemeID:    export.SlugifyTheme(theme),
				Frequency:  int64(metrics.Frequency),
				ThemeScore: export.RoundFloat(metrics.ThemeScore),
				Sentiment:  export.RoundFloat(metrics.Sentiment),
				Supports:   metrics.Supports,
			})
		}
	}

	in.Limitations = append(in.Limitations, payload.Limitations...)
	return nil
}

// publish writes artifacts to a temp directory and renames it into place, so
// readers only ever see complete runs.
func (s *exportService) publish(studyID, exportID uuid.UUID, artifacts []export.Artifact) (string, error) {
	tmpDir := filepath.Join(s.exportDir, ".tmp-"+exportID.String())
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", err
	}
	defer os.RemoveAll(tmpDir)

	for _, a := range artifacts {
		if err := os.WriteFile(filepath.Join(tmpDir, a.Name), a.Bytes, 0o644); err != nil {
			return "", err
		}
	}

	finalDir := filepath.Join(s.exportDir, studyID.String(), exportID.String())
	if err := os.MkdirAll(filepath.Dir(finalDir), 0o755); err != nil {
		return "", err
	}
	if err := os.Rename(tmpDir, finalDir); err != nil {
		return "", err
	}
	return finalDir, nil
}

func (s *exportService) mirror(ctx context.Context, studyID, exportID uuid.UUID, artifacts []export.Artifact) {
	if s.bucket == nil {
		return
	}
	for _, a := range artifacts {
		key := fmt.Sprintf("exports/%s/%s/%s", studyID, exportID, a.Name)
		if err := s.bucket.UploadObject(ctx, key, a.Bytes); err != nil {
			s.log.Warn("artifact mirror failed", "key", key, "error", err)
			return
		}
	}
}

func (s *exportService) audit(ctx context.Context, req ExportRequest, row *types.Export, artifactCount int) {
	details, err := guardrailDetails(map[string]any{
		"export_id": row.ID.String(),
		"location":  row.Location,
		"checksum":  row.Checksum,
		"artifacts": artifactCount,
		"actor":     req.Actor,
	})
	if err != nil {
		s.log.Warn("encode export guardrail details failed", "error", err)
		return
	}
	rows, err := s.guardrails.Append(ctx, nil, []*types.GuardrailEvent{{
		StudyID:  req.StudyID,
		Type:     types.GuardrailEventExportWritten,
		Severity: "info",
		Details:  details,
		TS:       time.Now().UTC(),
	}})
	if err != nil {
		s.log.Warn("append export guardrail failed", "error", err)
		return
	}
	observability.Current().IncGuardrailEvent(string(types.GuardrailEventExportWritten))
	if s.bus != nil {
		var detailMap map[string]any
		_ = json.Unmarshal(rows[0].Details, &detailMap)
		if err := s.bus.Publish(ctx, audit.Event{
			ID:       rows[0].ID,
			StudyID:  rows[0].StudyID,
			Type:     rows[0].Type,
			Severity: rows[0].Severity,
			Details:  detailMap,
			TS:       rows[0].TS,
		}); err != nil {
			s.log.Warn("export guardrail publish failed", "error", err)
		}
	}
}

type messageUsage struct {
	Tokens int64   `json:"tokens"`
	Cost   float64 `json:"cost"`
}

func decodeUsage(meta []byte) messageUsage {
	var u messageUsage
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &u)
	}
	return u
}

func jsonOrEmpty(raw []byte) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

func wantsInsights(datasets []export.Dataset) bool {
	for _, ds := range datasets {
		if ds == export.DatasetInsightsAggregate || ds == export.DatasetInsightsByPersona {
			return true
		}
	}
	return false
}

func toStringArray(formats []export.Format) types.StringArray {
	out := make(types.StringArray, 0, len(formats))
	for _, f := range formats {
		out = append(out, string(f))
	}
	return out
}

func toStringArrayDatasets(datasets []export.Dataset) types.StringArray {
	out := make(types.StringArray, 0, len(datasets))
	for _, ds := range datasets {
		out = append(out, string(ds))
	}
	return out
}
