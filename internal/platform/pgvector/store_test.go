package pgvector

import (
	"strings"
	"testing"

	"github.com/mirrorpanel/mirrorpanel-backend/internal/vecstore"
)

func TestVectorLiteral(t *testing.T) {
	got := VectorLiteral([]float32{1, 0.5, -2})
	if got != "[1,0.5,-2]" {
		t.Fatalf("VectorLiteral: want=%q got=%q", "[1,0.5,-2]", got)
	}
	if VectorLiteral(nil) != "[]" {
		t.Fatalf("empty literal: got=%q", VectorLiteral(nil))
	}
}

func TestBuildFilterSQLStringAndNumeric(t *testing.T) {
	compiled, err := vecstore.CompileFilter(map[string]any{
		"session_id": "s-1",
		"sentiment":  map[string]any{"$gte": -0.5},
	})
	if err != nil {
		t.Fatalf("CompileFilter: %v", err)
	}

	where, args, err := BuildFilterSQL(compiled.Predicates(), 2)
	if err != nil {
		t.Fatalf("BuildFilterSQL: %v", err)
	}
	want := " WHERE (meta->>'sentiment')::double precision >= $2 AND meta->>'session_id' = $3"
	if where != want {
		t.Fatalf("where clause:\nwant=%q\ngot =%q", want, where)
	}
	if len(args) != 2 {
		t.Fatalf("args: want=2 got=%d", len(args))
	}
	if args[0] != -0.5 || args[1] != "s-1" {
		t.Fatalf("arg values: got=%v", args)
	}
}

func TestBuildFilterSQLInOperator(t *testing.T) {
	compiled, err := vecstore.CompileFilter(map[string]any{
		"theme": map[string]any{"$in": []any{"pricing", "onboarding"}},
	})
	if err != nil {
		t.Fatalf("CompileFilter: %v", err)
	}

	where, args, err := BuildFilterSQL(compiled.Predicates(), 2)
	if err != nil {
		t.Fatalf("BuildFilterSQL: %v", err)
	}
	if where != " WHERE meta->>'theme' = ANY($2)" {
		t.Fatalf("where clause: got=%q", where)
	}
	strs, ok := args[0].([]string)
	if !ok || len(strs) != 2 {
		t.Fatalf("args: got=%v", args)
	}
}

func TestBuildFilterSQLRejectsHostileFieldNames(t *testing.T) {
	compiled, err := vecstore.CompileFilter(map[string]any{
		"theme'; DROP TABLE message_embeddings; --": "x",
	})
	if err != nil {
		t.Fatalf("CompileFilter: %v", err)
	}
	_, _, err = BuildFilterSQL(compiled.Predicates(), 2)
	if vecstore.CodeOf(err) != vecstore.OperationErrorValidation {
		t.Fatalf("expected validation error for hostile field name, got %v", err)
	}
}

func TestBuildSearchSQLZeroQueryNeverDividesByZeroMagnitude(t *testing.T) {
	sql := buildSearchSQL("message_embeddings", "", 5, true)
	if strings.Contains(sql, "<=>") {
		t.Fatalf("zero-magnitude query must not reach the distance operator:\n%s", sql)
	}
	if !strings.Contains(sql, "0::double precision AS score") {
		t.Fatalf("zero-magnitude query must score matches 0:\n%s", sql)
	}
	if !strings.Contains(sql, "ORDER BY id ASC") {
		t.Fatalf("zero-magnitude query must fall back to id ordering:\n%s", sql)
	}

	sql = buildSearchSQL("message_embeddings", "", 5, false)
	if !strings.Contains(sql, "1 - (embedding <=> $1::vector) AS score") {
		t.Fatalf("normal query must score by cosine similarity:\n%s", sql)
	}
}

func TestValidateConfig(t *testing.T) {
	err := ValidateConfig(Config{Table: "message_embeddings", VectorDim: 1536}, true)
	if cfgErr, ok := err.(*ConfigError); !ok || cfgErr.Code != ConfigErrorMissingDSN {
		t.Fatalf("expected missing_dsn, got %v", err)
	}

	err = ValidateConfig(Config{DSN: "postgres://localhost/x", Table: "bad-name", VectorDim: 3}, true)
	if cfgErr, ok := err.(*ConfigError); !ok || cfgErr.Code != ConfigErrorInvalidTable {
		t.Fatalf("expected invalid_table, got %v", err)
	}

	err = ValidateConfig(Config{DSN: "postgres://localhost/x", Table: "message_embeddings", VectorDim: 0}, false)
	if cfgErr, ok := err.(*ConfigError); !ok || cfgErr.Code != ConfigErrorMissingVectorDim {
		t.Fatalf("expected missing_vector_dim, got %v", err)
	}
}
