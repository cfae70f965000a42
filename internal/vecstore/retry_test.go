package vecstore

import (
	"context"
	"testing"
	"time"
)

type flakyStore struct {
	failures int
	calls    int
	failCode OperationErrorCode
}

func (s *flakyStore) Upsert(ctx context.Context, records []Record) error {
	s.calls++
	if s.calls <= s.failures {
		return opErr("upsert", s.failCode, "injected failure", nil)
	}
	return nil
}

func (s *flakyStore) Query(ctx context.Context, q []float32, filter map[string]any, topK int) ([]Match, error) {
	s.calls++
	if s.calls <= s.failures {
		return nil, opErr("query", s.failCode, "injected failure", nil)
	}
	return []Match{{ID: "m-1", Score: 0.9}}, nil
}

func (s *flakyStore) SearchExact(ctx context.Context, q []float32, filter map[string]any, topK int) ([]Match, error) {
	return s.Query(ctx, q, filter, topK)
}

func (s *flakyStore) Delete(ctx context.Context, ids []string) error { return nil }
func (s *flakyStore) Rebuild(ctx context.Context) error              { return nil }
func (s *flakyStore) Dimension() int                                 { return 3 }

func TestWithRetryRecoversFromTransientFailure(t *testing.T) {
	inner := &flakyStore{failures: 2, failCode: OperationErrorBackendUnavailable}
	store := WithRetry(inner, 3, time.Millisecond)

	matches, err := store.Query(context.Background(), []float32{1, 2, 3}, nil, 5)
	if err != nil {
		t.Fatalf("Query after retries: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "m-1" {
		t.Fatalf("unexpected matches: %v", matches)
	}
	if inner.calls != 3 {
		t.Fatalf("calls: want=3 got=%d", inner.calls)
	}
}

func TestWithRetrySurfacesLastErrorWhenExhausted(t *testing.T) {
	inner := &flakyStore{failures: 10, failCode: OperationErrorTimeout}
	store := WithRetry(inner, 3, time.Millisecond)

	_, err := store.Query(context.Background(), []float32{1, 2, 3}, nil, 5)
	if CodeOf(err) != OperationErrorTimeout {
		t.Fatalf("expected timeout to surface, got %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("calls: want=3 got=%d", inner.calls)
	}
}

func TestWithRetryDoesNotRetryValidationErrors(t *testing.T) {
	inner := &flakyStore{failures: 10, failCode: OperationErrorValidation}
	store := WithRetry(inner, 5, time.Millisecond)

	err := store.Upsert(context.Background(), []Record{{ID: "r-1", Vector: []float32{1, 2, 3}}})
	if CodeOf(err) != OperationErrorValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("validation error must not be retried: calls=%d", inner.calls)
	}
}
