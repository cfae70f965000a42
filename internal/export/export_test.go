package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
)

func sampleInput() Input {
	return Input{
		StudyID:    "11111111-1111-1111-1111-111111111111",
		StudyTitle: "Pricing study",
		Objective:  "Understand pricing objections",
		ConfigJSON: `{"rounds":3}`,
		Personas: []PersonaRow{
			{
				PersonaID:    "aaaaaaaa-0000-0000-0000-000000000001",
				StudyID:      "11111111-1111-1111-1111-111111111111",
				PersonaName:  "Ops Olivia",
				Weight:       2,
				TraitsJSON:   `{"role":"ops"}`,
				CreatedAt:    "2026-08-01T10:00:00Z",
				IsPrimaryICP: true,
			},
		},
		Messages: []MessageRow{
			{
				StudyID:     "11111111-1111-1111-1111-111111111111",
				Turn:        1,
				PersonaName: "Ops Olivia",
				Role:        "participant",
				Content:     "The price, honestly, feels steep",
				Tokens:      42,
				Cost:        0.0015,
				Topics:      []string{"pricing", "budget"},
				Sentiment:   -0.4,
				TS:          "2026-08-01T10:05:00Z",
			},
		},
		Themes: []ThemeRow{
			{
				StudyID:             "11111111-1111-1111-1111-111111111111",
				ThemeID:             "pricing",
				Theme:               "pricing",
				ScoreWeighted:       13.333333,
				ScoreUnweighted:     15,
				AgreementWeighted:   0.75,
				AgreementUnweighted: 0.5,
				SentimentWeighted:   -0.2,
				SentimentUnweighted: -0.3,
			},
		},
		ByPersona: []ByPersonaRow{
			{
				StudyID:    "11111111-1111-1111-1111-111111111111",
				PersonaID:  "aaaaaaaa-0000-0000-0000-000000000001",
				ThemeID:    "pricing",
				Frequency:  4,
				ThemeScore: 3.2,
				Sentiment:  -0.4,
				Supports:   true,
			},
		},
		Limitations: []string{"single session"},
		Guardrails: []GuardrailRow{
			{
				ID:          "bbbbbbbb-0000-0000-0000-000000000001",
				StudyID:     "11111111-1111-1111-1111-111111111111",
				Type:        "weight_change",
				Severity:    "info",
				DetailsJSON: `{"new":2,"old":1}`,
				TS:          "2026-08-01T09:00:00Z",
			},
		},
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	in := sampleInput()
	formats := []Format{FormatCSV, FormatJSON, FormatYAML}

	first, err := Render(in, formats, AllDatasets)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	second, err := Render(in, formats, AllDatasets)
	if err != nil {
		t.Fatalf("Render again: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("artifact count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Name != second[i].Name {
			t.Fatalf("artifact order changed: %s vs %s", first[i].Name, second[i].Name)
		}
		if !bytes.Equal(first[i].Bytes, second[i].Bytes) {
			t.Fatalf("artifact %s: bytes differ between identical renders", first[i].Name)
		}
		if first[i].Checksum != second[i].Checksum {
			t.Fatalf("artifact %s: checksum differs", first[i].Name)
		}
	}
	if RunChecksum(first) != RunChecksum(second) {
		t.Fatalf("run checksum differs between identical renders")
	}
}

func TestRunChecksumIgnoresArtifactOrder(t *testing.T) {
	in := sampleInput()
	artifacts, err := Render(in, []Format{FormatCSV}, AllDatasets)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	reversed := make([]Artifact, len(artifacts))
	for i, a := range artifacts {
		reversed[len(artifacts)-1-i] = a
	}
	if RunChecksum(artifacts) != RunChecksum(reversed) {
		t.Fatalf("run checksum must not depend on artifact order")
	}
}

func TestCSVHeaderContracts(t *testing.T) {
	in := sampleInput()
	artifacts, err := Render(in, []Format{FormatCSV}, AllDatasets)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	want := map[string]string{
		"messages.csv":           "study_id,turn,persona_name,role,content,tokens,cost,topics,sentiment,ts",
		"personas.csv":           "persona_id,study_id,persona_name,weight,traits_json,created_at",
		"insights_aggregate.csv": "study_id,theme_id,theme,score_weighted,score_unweighted,agreement_weighted,agreement_unweighted,sentiment_weighted,sentiment_unweighted",
		"insights_by_persona.csv": "study_id,persona_id,theme_id,frequency,theme_score,sentiment,supports",
		"guardrails.csv":          "id,study_id,type,severity,details_json,ts",
	}
	for _, a := range artifacts {
		lines := strings.Split(string(a.Bytes), "\n")
		if got := lines[0]; got != want[a.Name] {
			t.Fatalf("%s header:\nwant=%s\ngot =%s", a.Name, want[a.Name], got)
		}
	}
}

func TestValidateArtifactsPassesCleanRender(t *testing.T) {
	in := sampleInput()
	artifacts, err := Render(in, []Format{FormatCSV, FormatJSON, FormatYAML}, AllDatasets)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if err := ValidateArtifacts(artifacts, AllDatasets); err != nil {
		t.Fatalf("ValidateArtifacts: %v", err)
	}
}

func TestValidateArtifactsCatchesHeaderDrift(t *testing.T) {
	in := sampleInput()
	artifacts, err := Render(in, []Format{FormatCSV}, []Dataset{DatasetPersonas})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	tampered := bytes.Replace(artifacts[0].Bytes, []byte("persona_name"), []byte("name"), 1)
	artifacts[0] = Artifact{Name: artifacts[0].Name, Bytes: tampered, Checksum: Checksum(tampered)}

	err = ValidateArtifacts(artifacts, []Dataset{DatasetPersonas})
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if se.Field != "header" {
		t.Fatalf("violation field: want=header got=%s", se.Field)
	}
}

func TestValidateArtifactsCatchesWrongSchemaVersion(t *testing.T) {
	in := sampleInput()
	artifacts, err := Render(in, []Format{FormatJSON}, AllDatasets)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	tampered := bytes.Replace(artifacts[0].Bytes, []byte(`"schema_version":1`), []byte(`"schema_version":99`), 1)
	if bytes.Equal(tampered, artifacts[0].Bytes) {
		t.Fatalf("tamper failed; schema_version marker not found")
	}
	artifacts[0] = Artifact{Name: artifacts[0].Name, Bytes: tampered, Checksum: Checksum(tampered)}

	err = ValidateArtifacts(artifacts, AllDatasets)
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
}

func TestJSONDocumentRoundTrip(t *testing.T) {
	in := sampleInput()
	artifacts, err := Render(in, []Format{FormatJSON}, AllDatasets)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(artifacts[0].Bytes, &doc); err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if doc["study_id"] != in.StudyID {
		t.Fatalf("study_id round trip: got=%v", doc["study_id"])
	}
	personas := doc["personas"].([]any)
	persona := personas[0].(map[string]any)
	if persona["persona_name"] != "Ops Olivia" {
		t.Fatalf("persona_name round trip: got=%v", persona["persona_name"])
	}
	if persona["weight"].(float64) != 2 {
		t.Fatalf("weight round trip: got=%v", persona["weight"])
	}
	insights := doc["insights"].(map[string]any)
	aggregate := insights["aggregate"].([]any)
	theme := aggregate[0].(map[string]any)
	if theme["score_weighted"].(float64) != 13.333333 {
		t.Fatalf("score_weighted round trip: got=%v", theme["score_weighted"])
	}
	if _, ok := insights["limitations"]; !ok {
		t.Fatalf("limitations missing from document")
	}
}

func TestEncodeJSONCanonicalForm(t *testing.T) {
	data, err := EncodeJSON(map[string]any{
		"zebra": 1.5,
		"alpha": "x",
		"mid":   []any{map[string]any{"b": 1, "a": 2}},
	})
	if err != nil {
		t.Fatalf("EncodeJSON: %v", err)
	}
	want := `{"alpha":"x","mid":[{"a":2,"b":1}],"zebra":1.500000}` + "\n"
	if string(data) != want {
		t.Fatalf("canonical JSON:\nwant=%s\ngot =%s", want, data)
	}
}

func TestFormatFloatFixedPrecision(t *testing.T) {
	if got := FormatFloat(13.3333333333); got != "13.333333" {
		t.Fatalf("FormatFloat: got=%s", got)
	}
	if got := FormatFloat(30); got != "30.000000" {
		t.Fatalf("FormatFloat int-valued: got=%s", got)
	}
	if got := FormatFloat(math.Copysign(0, -1)); got != "0.000000" {
		t.Fatalf("FormatFloat negative zero: got=%s", got)
	}
}

func TestSlugifyTheme(t *testing.T) {
	if got := SlugifyTheme("Pricing / Budget Concerns"); got != "pricing---budget-concerns" {
		t.Fatalf("SlugifyTheme: got=%q", got)
	}
	if got := SlugifyTheme("  Onboarding  "); got != "onboarding" {
		t.Fatalf("SlugifyTheme trim: got=%q", got)
	}
}
