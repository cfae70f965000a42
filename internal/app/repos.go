package app

import (
	"gorm.io/gorm"

	"github.com/mirrorpanel/mirrorpanel-backend/internal/data/repos"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/platform/logger"
)

type Repos struct {
	Study     repos.StudyRepo
	Session   repos.SessionRepo
	Persona   repos.PersonaRepo
	Message   repos.MessageRepo
	Weight    repos.PersonaWeightRepo
	Guardrail repos.GuardrailEventRepo
	Insight   repos.InsightRepo
	Rollup    repos.PersonaRollupRepo
	Export    repos.ExportRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Study:     repos.NewStudyRepo(db, log),
		Session:   repos.NewSessionRepo(db, log),
		Persona:   repos.NewPersonaRepo(db, log),
		Message:   repos.NewMessageRepo(db, log),
		Weight:    repos.NewPersonaWeightRepo(db, log),
		Guardrail: repos.NewGuardrailEventRepo(db, log),
		Insight:   repos.NewInsightRepo(db, log),
		Rollup:    repos.NewPersonaRollupRepo(db, log),
		Export:    repos.NewExportRepo(db, log),
	}
}
