package repos

import (
	"gorm.io/gorm"

	"github.com/mirrorpanel/mirrorpanel-backend/internal/data/repos/research"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/platform/logger"
)

type StudyRepo = research.StudyRepo
type SessionRepo = research.SessionRepo
type PersonaRepo = research.PersonaRepo
type MessageRepo = research.MessageRepo

type PersonaWeightRepo = research.PersonaWeightRepo
type GuardrailEventRepo = research.GuardrailEventRepo

type InsightRepo = research.InsightRepo
type PersonaRollupRepo = research.PersonaRollupRepo

type ExportRepo = research.ExportRepo

func NewStudyRepo(db *gorm.DB, baseLog *logger.Logger) StudyRepo {
	return research.NewStudyRepo(db, baseLog)
}
func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	return research.NewSessionRepo(db, baseLog)
}
func NewPersonaRepo(db *gorm.DB, baseLog *logger.Logger) PersonaRepo {
	return research.NewPersonaRepo(db, baseLog)
}
func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
	return research.NewMessageRepo(db, baseLog)
}
func NewPersonaWeightRepo(db *gorm.DB, baseLog *logger.Logger) PersonaWeightRepo {
	return research.NewPersonaWeightRepo(db, baseLog)
}
func NewGuardrailEventRepo(db *gorm.DB, baseLog *logger.Logger) GuardrailEventRepo {
	return research.NewGuardrailEventRepo(db, baseLog)
}
func NewInsightRepo(db *gorm.DB, baseLog *logger.Logger) InsightRepo {
	return research.NewInsightRepo(db, baseLog)
}
func NewPersonaRollupRepo(db *gorm.DB, baseLog *logger.Logger) PersonaRollupRepo {
	return research.NewPersonaRollupRepo(db, baseLog)
}
func NewExportRepo(db *gorm.DB, baseLog *logger.Logger) ExportRepo {
	return research.NewExportRepo(db, baseLog)
}
