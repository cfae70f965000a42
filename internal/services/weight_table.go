package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mirrorpanel/mirrorpanel-backend/internal/audit"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/data/repos"
	types "github.com/mirrorpanel/mirrorpanel-backend/internal/domain/research"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/platform/logger"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/weights"
)

// WeightTableService owns the per-study strategic weight overrides. Every
// mutation lands a guardrail event in the same transaction, then fans out on
// the audit bus best-effort.
type WeightTableService interface {
	Get(ctx context.Context, studyID, personaID uuid.UUID) (*types.PersonaWeight, error)
	Set(ctx context.Context, studyID, personaID uuid.UUID, weight float64, actor string) (*types.PersonaWeight, error)
	List(ctx context.Context, studyID uuid.UUID) ([]*types.PersonaWeight, error)
	SetPrimaryICP(ctx context.Context, studyID, personaID uuid.UUID, actor string) error
	// Snapshot freezes the study's weight state for an aggregation run.
	Snapshot(ctx context.Context, studyID uuid.UUID) (weights.Snapshot, error)
}

type weightTableService struct {
	db         *gorm.DB
	studies    repos.StudyRepo
	personas   repos.PersonaRepo
	weights    repos.PersonaWeightRepo
	guardrails repos.GuardrailEventRepo
	bus        audit.Bus
	log        *logger.Logger
}

func NewWeightTableService(
	db *gorm.DB,
	studies repos.StudyRepo,
	personas repos.PersonaRepo,
	weightRepo repos.PersonaWeightRepo,
	guardrails repos.GuardrailEventRepo,
	bus audit.Bus,
	baseLog *logger.Logger,
) WeightTableService {
	return &weightTableService{
		db:         db,
		studies:    studies,
		personas:   personas,
		weights:    weightRepo,
		guardrails: guardrails,
		bus:        bus,
		log:        baseLog.With("service", "WeightTableService"),
	}
}

func (s *weightTableService) Get(ctx context.Context, studyID, personaID uuid.UUID) (*types.PersonaWeight, error) {
	row, err := s.weights.Get(ctx, nil, studyID, personaID)
	if err != nil {
		return nil, svcErr(ErrCodeInternal, "read weight", err)
	}
	if row == nil {
		// Absent override reads as the default.
		return &types.PersonaWeight{
			StudyID:   studyID,
			PersonaID: personaID,
			Weight:    types.WeightDefault,
		}, nil
	}
	return row, nil
}

func (s *weightTableService) Set(ctx context.Context, studyID, personaID uuid.UUID, weight float64, actor string) (*types.PersonaWeight, error) {
	if weight < types.WeightMin || weight > types.WeightMax {
		return nil, svcErr(ErrCodeValidation,
			fmt.Sprintf("weight %v out of range [%v, %v]", weight, types.WeightMin, types.WeightMax), nil)
	}
	if err := s.ensureStudyAndPersona(ctx, studyID, personaID); err != nil {
		return nil, err
	}

	var updated *types.PersonaWeight
	var event *types.GuardrailEvent
	err := s.db.Transaction(func(tx *gorm.DB) error {
		prev, err := s.weights.Get(ctx, tx, studyID, personaID)
		if err != nil {
			return err
		}
		oldWeight := types.WeightDefault
		if prev != nil {
			oldWeight = prev.Weight
		}

		updated, err = s.weights.Upsert(ctx, tx, &types.PersonaWeight{
			StudyID:   studyID,
			PersonaID: personaID,
			Weight:    weight,
			Version:   1,
			UpdatedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}

		details, err := guardrailDetails(map[string]any{
			"persona_id": personaID.String(),
			"old":        oldWeight,
			"new":        weight,
			"version":    updated.Version,
			"actor":      actor,
		})
		if err != nil {
			return err
		}
		rows, err := s.guardrails.Append(ctx, tx, []*types.GuardrailEvent{{
			StudyID:  studyID,
			Type:     types.GuardrailEventWeightChange,
			Severity: "info",
			Details:  details,
			TS:       time.Now().UTC(),
		}})
		if err != nil {
			return err
		}
		event = rows[0]
		return nil
	})
	if err != nil {
		var se *ServiceError
		if errors.As(err, &se) {
			return nil, se
		}
		return nil, svcErr(ErrCodeInternal, "set weight", err)
	}

	s.publish(ctx, event)
	return updated, nil
}

func (s *weightTableService) List(ctx context.Context, studyID uuid.UUID) ([]*types.PersonaWeight, error) {
	rows, err := s.weights.ListByStudy(ctx, nil, studyID)
	if err != nil {
		return nil, svcErr(ErrCodeInternal, "list weights", err)
	}
	return rows, nil
}

func (s *weightTableService) SetPrimaryICP(ctx context.Context, studyID, personaID uuid.UUID, actor string) error {
	if err := s.ensureStudyAndPersona(ctx, studyID, personaID); err != nil {
		return err
	}

	var event *types.GuardrailEvent
	err := s.db.Transaction(func(tx *gorm.DB) error {
		prev, err := s.weights.GetPrimaryICP(ctx, tx, studyID)
		if err != nil {
			return err
		}
		if err := s.weights.SetPrimaryICP(ctx, tx, studyID, personaID); err != nil {
			return err
		}

		detailMap := map[string]any{
			"persona_id": personaID.String(),
			"actor":      actor,
		}
		if prev != nil {
			detailMap["previous"] = prev.PersonaID.String()
		}
		details, err := guardrailDetails(detailMap)
		if err != nil {
			return err
		}
		rows, err := s.guardrails.Append(ctx, tx, []*types.GuardrailEvent{{
			StudyID:  studyID,
			Type:     types.GuardrailEventPrimaryICPSet,
			Severity: "info",
			Details:  details,
			TS:       time.Now().UTC(),
		}})
		if err != nil {
			return err
		}
		event = rows[0]
		return nil
	})
	if err != nil {
		var se *ServiceError
		if errors.As(err, &se) {
			return se
		}
		return svcErr(ErrCodeInternal, "set primary icp", err)
	}

	s.publish(ctx, event)
	return nil
}

func (s *weightTableService) Snapshot(ctx context.Context, studyID uuid.UUID) (weights.Snapshot, error) {
	var snap weights.Snapshot
	err := s.db.Transaction(func(tx *gorm.DB) error {
		rows, err := s.weights.ListByStudy(ctx, tx, studyID)
		if err != nil {
			return err
		}
		version, err := s.weights.MaxVersion(ctx, tx, studyID)
		if err != nil {
			return err
		}
		byPersona := make(map[uuid.UUID]float64, len(rows))
		var primary *uuid.UUID
		for _, row := range rows {
			byPersona[row.PersonaID] = row.Weight
			if row.IsPrimaryICP {
				id := row.PersonaID
				primary = &id
			}
		}
		snap = weights.NewSnapshot(studyID, version, primary, byPersona)
		return nil
	})
	if err != nil {
		return weights.Snapshot{}, svcErr(ErrCodeInternal, "snapshot weights", err)
	}
	return snap, nil
}

func (s *weightTableService) ensureStudyAndPersona(ctx context.Context, studyID, personaID uuid.UUID) error {
	if _, err := s.studies.GetByID(ctx, nil, studyID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return svcErr(ErrCodeNotFound, fmt.Sprintf("study %s not found", studyID), err)
		}
		return svcErr(ErrCodeInternal, "read study", err)
	}
	if _, err := s.personas.GetByID(ctx, nil, personaID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return svcErr(ErrCodeNotFound, fmt.Sprintf("persona %s not found", personaID), err)
		}
		return svcErr(ErrCodeInternal, "read persona", err)
	}
	return nil
}

func (s *weightTableService) publish(ctx context.Context, ev *types.GuardrailEvent) {
	if s.bus == nil || ev == nil {
		return
	}
	var details map[string]any
	_ = json.Unmarshal(ev.Details, &details)
	if err := s.bus.Publish(ctx, audit.Event{
		ID:       ev.ID,
		StudyID:  ev.StudyID,
		Type:     ev.Type,
		Severity: ev.Severity,
		Details:  details,
		TS:       ev.TS,
	}); err != nil {
		s.log.Warn("guardrail publish failed", "error", err, "study_id", ev.StudyID)
	}
}

func guardrailDetails(m map[string]any) (datatypes.JSON, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
