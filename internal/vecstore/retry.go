package vecstore

import (
	"context"
	"time"
)

// retryStore wraps a VectorStore with bounded retry on transient backend
// failures. Validation and dimension errors pass through untouched.
type retryStore struct {
	inner    VectorStore
	attempts int
	backoff  time.Duration
}

// WithRetry decorates store so that backend_unavailable and timeout failures
// are retried up to attempts times with linear backoff. The last error is
// surfaced when retries exhaust; partial results are never synthesized.
func WithRetry(store VectorStore, attempts int, backoff time.Duration) VectorStore {
	if attempts < 1 {
		attempts = 1
	}
	return &retryStore{inner: store, attempts: attempts, backoff: backoff}
}

func (s *retryStore) Upsert(ctx context.Context, records []Record) error {
	return s.do(ctx, func() error {
		return s.inner.Upsert(ctx, records)
	})
}

func (s *retryStore) Query(ctx context.Context, q []float32, filter map[string]any, topK int) ([]Match, error) {
	var out []Match
	err := s.do(ctx, func() error {
		var innerErr error
		out, innerErr = s.inner.Query(ctx, q, filter, topK)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *retryStore) SearchExact(ctx context.Context, q []float32, filter map[string]any, topK int) ([]Match, error) {
	var out []Match
	err := s.do(ctx, func() error {
		var innerErr error
		out, innerErr = s.inner.SearchExact(ctx, q, filter, topK)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *retryStore) Delete(ctx context.Context, ids []string) error {
	return s.do(ctx, func() error {
		return s.inner.Delete(ctx, ids)
	})
}

func (s *retryStore) Rebuild(ctx context.Context) error {
	return s.do(ctx, func() error {
		return s.inner.Rebuild(ctx)
	})
}

func (s *retryStore) Dimension() int { return s.inner.Dimension() }

func (s *retryStore) do(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < s.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return opErr("retry", OperationErrorTimeout, "context done before retry", ctx.Err())
			case <-time.After(s.backoff * time.Duration(attempt)):
			}
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
