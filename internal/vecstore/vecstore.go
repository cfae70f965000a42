package vecstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Record is the single validated shape accepted at the store boundary.
// Callers build Records once; providers never re-validate ad hoc maps downstream.
type Record struct {
	ID       string
	StudyID  string
	Vector   []float32
	Metadata map[string]any
}

type Match struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

type VectorStore interface {
	// Upsert inserts or overwrites by id. Repeated upserts with the same id
	// leave exactly one stored entry reflecting the latest call.
	Upsert(ctx context.Context, records []Record) error

	// Query runs a similarity search over the approximate index. After a burst
	// of upserts recall is not guaranteed until Rebuild has run; callers that
	// need completeness use SearchExact.
	Query(ctx context.Context, q []float32, filter map[string]any, topK int) ([]Match, error)

	// SearchExact scans raw vectors and guarantees completeness over all
	// committed upserts at the cost of speed.
	SearchExact(ctx context.Context, q []float32, filter map[string]any, topK int) ([]Match, error)

	Delete(ctx context.Context, ids []string) error

	// Rebuild retrains the approximate index structure over the current rows.
	Rebuild(ctx context.Context) error

	Dimension() int
}

// ValidateRecords checks the boundary invariants for a batch: non-empty ids,
// non-empty vectors, and uniform dimension dim (when dim > 0).
func ValidateRecords(op string, records []Record, dim int) error {
	for _, rec := range records {
		id := strings.TrimSpace(rec.ID)
		if id == "" {
			return opErr(op, OperationErrorValidation, "record id is required", nil)
		}
		if len(rec.Vector) == 0 {
			return opErr(op, OperationErrorValidation, fmt.Sprintf("record %q has empty vector", id), nil)
		}
		if dim > 0 && len(rec.Vector) != dim {
			return opErr(
				op,
				OperationErrorDimensionMismatch,
				fmt.Sprintf("record %q dimension mismatch: expected=%d got=%d", id, dim, len(rec.Vector)),
				nil,
			)
		}
	}
	return nil
}

// ValidateQuery checks the query-side invariants shared by all providers.
func ValidateQuery(op string, q []float32, dim, topK int) error {
	if len(q) == 0 {
		return opErr(op, OperationErrorValidation, "query vector required", nil)
	}
	if dim > 0 && len(q) != dim {
		return opErr(
			op,
			OperationErrorDimensionMismatch,
			fmt.Sprintf("query vector dimension mismatch: expected=%d got=%d", dim, len(q)),
			nil,
		)
	}
	if topK <= 0 {
		return opErr(op, OperationErrorInvalidArgument, fmt.Sprintf("top_k must be positive, got=%d", topK), nil)
	}
	return nil
}

// ZeroVector is the reserved sentinel for empty or whitespace-only source text.
// Indexing it keeps batches alive; cosine against it scores 0, never NaN.
func ZeroVector(dim int) []float32 {
	return make([]float32, dim)
}

func IsZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// CosineSimilarity returns the cosine of the angle between a and b in [-1,1].
// Vectors of mismatched length are a caller defect; a zero-magnitude side
// yields 0 so the sentinel vector ranks last instead of poisoning results.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, opErr(
			"cosine",
			OperationErrorDimensionMismatch,
			fmt.Sprintf("vector length mismatch: %d vs %d", len(a), len(b)),
			nil,
		)
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}
	return score, nil
}

// SortMatches orders matches by score descending, ties broken by ascending id
// so repeated queries over identical state return identical orderings.
func SortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Score > matches[j].Score
	})
}
