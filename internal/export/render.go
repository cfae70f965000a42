package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Render produces the artifacts for one export run. CSV formats emit one file
// per dataset; JSON and YAML emit a single nested study document carrying the
// selected datasets.
func Render(in Input, formats []Format, datasets []Dataset) ([]Artifact, error) {
	out := []Artifact{}
	for _, format := range formats {
		switch format {
		case FormatCSV:
			for _, ds := range datasets {
				artifact, err := renderCSV(in, ds)
				if err != nil {
					return nil, err
				}
				out = append(out, artifact)
			}
		case FormatJSON:
			artifact, err := renderJSONDoc(in, datasets)
			if err != nil {
				return nil, err
			}
			out = append(out, artifact)
		case FormatYAML:
			artifact, err := renderYAMLDoc(in, datasets)
			if err != nil {
				return nil, err
			}
			out = append(out, artifact)
		default:
			return nil, fmt.Errorf("unsupported export format %q", format)
		}
	}
	return out, nil
}

func renderCSV(in Input, ds Dataset) (Artifact, error) {
	header, ok := csvHeaders[ds]
	if !ok {
		return Artifact{}, fmt.Errorf("unsupported export dataset %q", ds)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	rows := [][]string{append([]string{}, header...)}

	switch ds {
	case DatasetMessages:
		for _, m := range in.Messages {
			rows = append(rows, []string{
				m.StudyID,
				strconv.FormatInt(m.Turn, 10),
				m.PersonaName,
				m.Role,
				m.Content,
				strconv.FormatInt(m.Tokens, 10),
				FormatFloat(m.Cost),
				strings.Join(m.Topics, "|"),
				FormatFloat(m.Sentiment),
				m.TS,
			})
		}
	case DatasetPersonas:
		for _, p := range in.Personas {
			rows = append(rows, []string{
				p.PersonaID,
				p.StudyID,
				p.PersonaName,
				FormatFloat(p.Weight),
				p.TraitsJSON,
				p.CreatedAt,
			})
		}
	case DatasetInsightsAggregate:
		for _, t := range in.Themes {
			rows = append(rows, []string{
				t.StudyID,
				t.ThemeID,
				t.Theme,
				FormatFloat(t.ScoreWeighted),
				FormatFloat(t.ScoreUnweighted),
				FormatFloat(t.AgreementWeighted),
				FormatFloat(t.AgreementUnweighted),
				FormatFloat(t.SentimentWeighted),
				FormatFloat(t.SentimentUnweighted),
			})
		}
	case DatasetInsightsByPersona:
		for _, r := range in.ByPersona {
			rows = append(rows, []string{
				r.StudyID,
				r.PersonaID,
				r.ThemeID,
				strconv.FormatInt(r.Frequency, 10),
				FormatFloat(r.ThemeScore),
				FormatFloat(r.Sentiment),
				strconv.FormatBool(r.Supports),
			})
		}
	case DatasetGuardrails:
		for _, g := range in.Guardrails {
			rows = append(rows, []string{
				g.ID,
				g.StudyID,
				g.Type,
				g.Severity,
				g.DetailsJSON,
				g.TS,
			})
		}
	}

	if err := w.WriteAll(rows); err != nil {
		return Artifact{}, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return Artifact{}, err
	}
	return newArtifact(string(ds)+".csv", buf.Bytes()), nil
}

// studyDocument is the nested JSON/YAML layout. Field names match the CSV
// columns one-for-one so downstream tooling reads both the same way.
type studyDocument struct {
	SchemaVersion int            `json:"schema_version" yaml:"schema_version"`
	StudyID       string         `json:"study_id" yaml:"study_id"`
	Title         string         `json:"title" yaml:"title"`
	Objective     string         `json:"objective" yaml:"objective"`
	ConfigJSON    string         `json:"config_json" yaml:"config_json"`
	Personas      []PersonaRow   `json:"personas,omitempty" yaml:"personas,omitempty"`
	Messages      []MessageRow   `json:"messages,omitempty" yaml:"messages,omitempty"`
	Insights      *insightsDoc   `json:"insights,omitempty" yaml:"insights,omitempty"`
	Guardrails    []GuardrailRow `json:"guardrails,omitempty" yaml:"guardrails,omitempty"`
}

type insightsDoc struct {
	Aggregate   []ThemeRow     `json:"aggregate" yaml:"aggregate"`
	ByPersona   []ByPersonaRow `json:"by_persona,omitempty" yaml:"by_persona,omitempty"`
	Limitations []string       `json:"limitations" yaml:"limitations"`
}

func buildDocument(in Input, datasets []Dataset) studyDocument {
	doc := studyDocument{
		SchemaVersion: SchemaVersion,
		StudyID:       in.StudyID,
		Title:         in.StudyTitle,
		Objective:     in.Objective,
		ConfigJSON:    in.ConfigJSON,
	}
	includeAggregate := false
	includeByPersona := false
	for _, ds := range datasets {
		switch ds {
		case DatasetPersonas:
			doc.Personas = in.Personas
		case DatasetMessages:
			doc.Messages = in.Messages
		case DatasetInsightsAggregate:
			includeAggregate = true
		case DatasetInsightsByPersona:
			includeByPersona = true
		case DatasetGuardrails:
			doc.Guardrails = in.Guardrails
		}
	}
	if includeAggregate || includeByPersona {
		insights := &insightsDoc{Limitations: in.Limitations}
		if insights.Limitations == nil {
			insights.Limitations = []string{}
		}
		if includeAggregate {
			insights.Aggregate = in.Themes
		}
		if includeByPersona {
			insights.ByPersona = in.ByPersona
		}
		doc.Insights = insights
	}
	return doc
}

func renderJSONDoc(in Input, datasets []Dataset) (Artifact, error) {
	doc := buildDocument(in, datasets)

	// Round-trip through encoding/json to get a plain tree, then canonicalize
	// so key order and float formatting are stable.
	intermediate, err := json.Marshal(doc)
	if err != nil {
		return Artifact{}, err
	}
	var tree any
	if err := json.Unmarshal(intermediate, &tree); err != nil {
		return Artifact{}, err
	}
	data, err := EncodeJSON(tree)
	if err != nil {
		return Artifact{}, err
	}
	return newArtifact("study.json", data), nil
}

func renderYAMLDoc(in Input, datasets []Dataset) (Artifact, error) {
	doc := buildDocument(in, datasets)
	data, err := yaml.Marshal(doc)
	if err != nil {
		return Artifact{}, err
	}
	return newArtifact("study.yaml", data), nil
}
