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

// Versioned dataset schemas. Validation runs against every rendered artifact
// before anything is published; a failure aborts the whole run.

var csvHeaders = map[Dataset][]string{
	DatasetMessages:          {"study_id", "turn", "persona_name", "role", "content", "tokens", "cost", "topics", "sentiment", "ts"},
	DatasetPersonas:          {"persona_id", "study_id", "persona_name", "weight", "traits_json", "created_at"},
	DatasetInsightsAggregate: {"study_id", "theme_id", "theme", "score_weighted", "score_unweighted", "agreement_weighted", "agreement_unweighted", "sentiment_weighted", "sentiment_unweighted"},
	DatasetInsightsByPersona: {"study_id", "persona_id", "theme_id", "frequency", "theme_score", "sentiment", "supports"},
	DatasetGuardrails:        {"id", "study_id", "type", "severity", "details_json", "ts"},
}

type SchemaError struct {
	Artifact string
	Field    string
	Message  string
}

func (e *SchemaError) Error() string {
	if e == nil {
		return "schema violation"
	}
	if e.Field != "" {
		return fmt.Sprintf("schema violation (artifact=%s field=%s): %s", e.Artifact, e.Field, e.Message)
	}
	return fmt.Sprintf("schema violation (artifact=%s): %s", e.Artifact, e.Message)
}

func schemaErr(artifact, field, msg string) error {
	return &SchemaError{Artifact: artifact, Field: field, Message: msg}
}

// ValidateArtifacts checks every rendered artifact against its versioned
// schema. The first violation fails the whole set.
func ValidateArtifacts(artifacts []Artifact, datasets []Dataset) error {
	for _, a := range artifacts {
		if err := validateArtifact(a, datasets); err != nil {
			return err
		}
	}
	return nil
}

func validateArtifact(a Artifact, datasets []Dataset) error {
	switch {
	case strings.HasSuffix(a.Name, ".csv"):
		ds := Dataset(strings.TrimSuffix(a.Name, ".csv"))
		return validateCSV(a, ds)
	case strings.HasSuffix(a.Name, ".json"):
		var doc map[string]any
		if err := json.Unmarshal(a.Bytes, &doc); err != nil {
			return schemaErr(a.Name, "", fmt.Sprintf("not valid JSON: %v", err))
		}
		return validateDocument(a.Name, doc, datasets)
	case strings.HasSuffix(a.Name, ".yaml"):
		var doc map[string]any
		if err := yaml.Unmarshal(a.Bytes, &doc); err != nil {
			return schemaErr(a.Name, "", fmt.Sprintf("not valid YAML: %v", err))
		}
		return validateDocument(a.Name, doc, datasets)
	default:
		return schemaErr(a.Name, "", "unknown artifact kind")
	}
}

func validateCSV(a Artifact, ds Dataset) error {
	wantHeader, ok := csvHeaders[ds]
	if !ok {
		return schemaErr(a.Name, "", fmt.Sprintf("no schema registered for dataset %q", ds))
	}

	r := csv.NewReader(bytes.NewReader(a.Bytes))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return schemaErr(a.Name, "", fmt.Sprintf("not valid CSV: %v", err))
	}
	if len(rows) == 0 {
		return schemaErr(a.Name, "", "missing header row")
	}
	if strings.Join(rows[0], ",") != strings.Join(wantHeader, ",") {
		return schemaErr(a.Name, "header", fmt.Sprintf(
			"header mismatch: want=%q got=%q",
			strings.Join(wantHeader, ","),
			strings.Join(rows[0], ","),
		))
	}
	for i, row := range rows[1:] {
		if len(row) != len(wantHeader) {
			return schemaErr(a.Name, "", fmt.Sprintf("row %d has %d columns, want %d", i+1, len(row), len(wantHeader)))
		}
		for col, cell := range row {
			if err := validateCell(a.Name, ds, wantHeader[col], cell, i+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateCell(artifact string, ds Dataset, column, cell string, row int) error {
	switch column {
	case "study_id", "persona_id", "id", "theme_id", "role", "type":
		if strings.TrimSpace(cell) == "" {
			return schemaErr(artifact, column, fmt.Sprintf("row %d: required column is empty", row))
		}
	case "turn", "tokens", "frequency":
		if _, err := strconv.ParseInt(cell, 10, 64); err != nil {
			return schemaErr(artifact, column, fmt.Sprintf("row %d: expected integer, got %q", row, cell))
		}
	case "weight", "cost", "sentiment", "theme_score",
		"score_weighted", "score_unweighted",
		"agreement_weighted", "agreement_unweighted",
		"sentiment_weighted", "sentiment_unweighted":
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			return schemaErr(artifact, column, fmt.Sprintf("row %d: expected number, got %q", row, cell))
		}
	case "supports":
		if cell != "true" && cell != "false" {
			return schemaErr(artifact, column, fmt.Sprintf("row %d: expected boolean, got %q", row, cell))
		}
	case "traits_json", "details_json":
		if strings.TrimSpace(cell) != "" && !json.Valid([]byte(cell)) {
			return schemaErr(artifact, column, fmt.Sprintf("row %d: expected JSON, got %q", row, cell))
		}
	}
	return nil
}

func validateDocument(artifact string, doc map[string]any, datasets []Dataset) error {
	version, ok := docSchemaVersion(doc)
	if !ok {
		return schemaErr(artifact, "schema_version", "missing or non-integer")
	}
	if version != SchemaVersion {
		// Older documents are readable only through a registered converter;
		// none exist yet because version 1 is the first published schema.
		return schemaErr(artifact, "schema_version", fmt.Sprintf("want=%d got=%d and no converter registered", SchemaVersion, version))
	}
	if s, _ := doc["study_id"].(string); strings.TrimSpace(s) == "" {
		return schemaErr(artifact, "study_id", "missing or empty")
	}

	for _, ds := range datasets {
		switch ds {
		case DatasetInsightsAggregate:
			insights, ok := doc["insights"].(map[string]any)
			if !ok {
				return schemaErr(artifact, "insights", "missing insights section")
			}
			if _, ok := insights["limitations"]; !ok {
				return schemaErr(artifact, "insights.limitations", "missing")
			}
		}
	}
	return nil
}

func docSchemaVersion(doc map[string]any) (int, bool) {
	switch v := doc["schema_version"].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	case int64:
		return int(v), true
	default:
		return 0, false
	}
}
