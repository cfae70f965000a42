package export

import (
	"fmt"
	"strings"
)

// SchemaVersion stamps every artifact. Breaking changes to any dataset layout
// require a bump here plus a converter for older documents.
const SchemaVersion = 1

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

type Dataset string

const (
	DatasetMessages          Dataset = "messages"
	DatasetPersonas          Dataset = "personas"
	DatasetInsightsAggregate Dataset = "insights_aggregate"
	DatasetInsightsByPersona Dataset = "insights_by_persona"
	DatasetGuardrails        Dataset = "guardrails"
)

var AllDatasets = []Dataset{
	DatasetMessages,
	DatasetPersonas,
	DatasetInsightsAggregate,
	DatasetInsightsByPersona,
	DatasetGuardrails,
}

func ParseFormats(raw []string) ([]Format, error) {
	if len(raw) == 0 {
		return []Format{FormatCSV, FormatJSON}, nil
	}
	out := make([]Format, 0, len(raw))
	for _, r := range raw {
		f := Format(strings.ToLower(strings.TrimSpace(r)))
		switch f {
		case FormatCSV, FormatJSON, FormatYAML:
			out = append(out, f)
		default:
			return nil, fmt.Errorf("unsupported export format %q", r)
		}
	}
	return out, nil
}

func ParseDatasets(raw []string) ([]Dataset, error) {
	if len(raw) == 0 {
		return append([]Dataset(nil), AllDatasets...), nil
	}
	out := make([]Dataset, 0, len(raw))
	for _, r := range raw {
		d := Dataset(strings.ToLower(strings.TrimSpace(r)))
		valid := false
		for _, known := range AllDatasets {
			if d == known {
				valid = true
				break
			}
		}
		if !valid {
			return nil, fmt.Errorf("unsupported export dataset %q", r)
		}
		out = append(out, d)
	}
	return out, nil
}

// Artifact is one rendered file, hashed over its exact bytes.
type Artifact struct {
	Name     string
	Bytes    []byte
	Checksum string
}

func newArtifact(name string, data []byte) Artifact {
	return Artifact{Name: name, Bytes: data, Checksum: Checksum(data)}
}

// Input is the materialized study state an export run renders. Every field is
// already ordered and formatted by the caller; rendering adds no new state, so
// two runs over equal Inputs produce byte-identical artifacts.
type Input struct {
	StudyID     string
	StudyTitle  string
	Objective   string
	ConfigJSON  string
	Personas    []PersonaRow
	Messages    []MessageRow
	Themes      []ThemeRow
	ByPersona   []ByPersonaRow
	Limitations []string
	Guardrails  []GuardrailRow
}

type PersonaRow struct {
	PersonaID    string  `json:"persona_id" yaml:"persona_id"`
	StudyID      string  `json:"study_id" yaml:"study_id"`
	PersonaName  string  `json:"persona_name" yaml:"persona_name"`
	Weight       float64 `json:"weight" yaml:"weight"`
	TraitsJSON   string  `json:"traits_json" yaml:"traits_json"`
	CreatedAt    string  `json:"created_at" yaml:"created_at"`
	IsPrimaryICP bool    `json:"is_primary_icp" yaml:"is_primary_icp"`
}

type MessageRow struct {
	StudyID     string   `json:"study_id" yaml:"study_id"`
	Turn        int64    `json:"turn" yaml:"turn"`
	PersonaName string   `json:"persona_name" yaml:"persona_name"`
	Role        string   `json:"role" yaml:"role"`
	Content     string   `json:"content" yaml:"content"`
	Tokens      int64    `json:"tokens" yaml:"tokens"`
	Cost        float64  `json:"cost" yaml:"cost"`
	Topics      []string `json:"topics" yaml:"topics"`
	Sentiment   float64  `json:"sentiment" yaml:"sentiment"`
	TS          string   `json:"ts" yaml:"ts"`
}

type ThemeRow struct {
	StudyID             string  `json:"study_id" yaml:"study_id"`
	ThemeID             string  `json:"theme_id" yaml:"theme_id"`
	Theme               string  `json:"theme" yaml:"theme"`
	ScoreWeighted       float64 `json:"score_weighted" yaml:"score_weighted"`
	ScoreUnweighted     float64 `json:"score_unweighted" yaml:"score_unweighted"`
	AgreementWeighted   float64 `json:"agreement_weighted" yaml:"agreement_weighted"`
	AgreementUnweighted float64 `json:"agreement_unweighted" yaml:"agreement_unweighted"`
	SentimentWeighted   float64 `json:"sentiment_weighted" yaml:"sentiment_weighted"`
	SentimentUnweighted float64 `json:"sentiment_unweighted" yaml:"sentiment_unweighted"`
	ZeroDenominator     bool    `json:"zero_denominator" yaml:"zero_denominator"`
}

type ByPersonaRow struct {
	StudyID    string  `json:"study_id" yaml:"study_id"`
	PersonaID  string  `json:"persona_id" yaml:"persona_id"`
	ThemeID    string  `json:"theme_id" yaml:"theme_id"`
	Frequency  int64   `json:"frequency" yaml:"frequency"`
	ThemeScore float64 `json:"theme_score" yaml:"theme_score"`
	Sentiment  float64 `json:"sentiment" yaml:"sentiment"`
	Supports   bool    `json:"supports" yaml:"supports"`
}

type GuardrailRow struct {
	ID          string `json:"id" yaml:"id"`
	StudyID     string `json:"study_id" yaml:"study_id"`
	Type        string `json:"type" yaml:"type"`
	Severity    string `json:"severity" yaml:"severity"`
	DetailsJSON string `json:"details_json" yaml:"details_json"`
	TS          string `json:"ts" yaml:"ts"`
}

// SlugifyTheme derives the stable theme identifier used for ranking
// tie-breaks and CSV theme_id columns.
func SlugifyTheme(theme string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(theme)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '/':
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
