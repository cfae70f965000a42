package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/mirrorpanel/mirrorpanel-backend/internal/platform/logger"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/vecstore"
)

// Store is an in-process VectorStore used for tests and local development.
// The approximate path mirrors a trained index: Query serves the snapshot
// taken at the last Rebuild, so rows upserted since then are invisible to it
// until the next Rebuild. SearchExact always scans live rows.
type Store struct {
	log *logger.Logger
	dim int

	mu       sync.RWMutex
	live     map[string]vecstore.Record
	snapshot []vecstore.Record
}

func New(log *logger.Logger, dim int) (*Store, error) {
	if dim <= 0 {
		return nil, &vecstore.OperationError{
			Code:      vecstore.OperationErrorValidation,
			Operation: "bootstrap",
			Message:   "vector dimension must be positive",
		}
	}
	var storeLog *logger.Logger
	if log != nil {
		storeLog = log.With("service", "MemoryVectorStore")
	}
	return &Store{
		log:  storeLog,
		dim:  dim,
		live: make(map[string]vecstore.Record),
	}, nil
}

func (s *Store) Dimension() int { return s.dim }

func (s *Store) Upsert(ctx context.Context, records []vecstore.Record) error {
	const op = "upsert"
	if len(records) == 0 {
		return nil
	}
	if err := vecstore.ValidateRecords(op, records, s.dim); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		stored := vecstore.Record{
			ID:       strings.TrimSpace(rec.ID),
			StudyID:  rec.StudyID,
			Vector:   append([]float32(nil), rec.Vector...),
			Metadata: cloneMeta(rec.Metadata),
		}
		s.live[stored.ID] = stored
	}
	return nil
}

func (s *Store) Query(ctx context.Context, q []float32, filter map[string]any, topK int) ([]vecstore.Match, error) {
	const op = "query"
	if err := vecstore.ValidateQuery(op, q, s.dim, topK); err != nil {
		return nil, err
	}
	compiled, err := vecstore.CompileFilter(filter)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	rows := append([]vecstore.Record(nil), s.snapshot...)
	s.mu.RUnlock()

	return s.scan(op, rows, q, compiled, topK)
}

func (s *Store) SearchExact(ctx context.Context, q []float32, filter map[string]any, topK int) ([]vecstore.Match, error) {
	const op = "search_exact"
	if err := vecstore.ValidateQuery(op, q, s.dim, topK); err != nil {
		return nil, err
	}
	compiled, err := vecstore.CompileFilter(filter)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	rows := make([]vecstore.Record, 0, len(s.live))
	for _, rec := range s.live {
		rows = append(rows, rec)
	}
	s.mu.RUnlock()

	return s.scan(op, rows, q, compiled, topK)
}

func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.live, strings.TrimSpace(id))
	}
	return nil
}

// Rebuild promotes the live rows into the snapshot the approximate path serves.
func (s *Store) Rebuild(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]vecstore.Record, 0, len(s.live))
	for _, rec := range s.live {
		next = append(next, rec)
	}
	s.snapshot = next
	if s.log != nil {
		s.log.Debug("memory index rebuilt", "rows", len(next))
	}
	return nil
}

func (s *Store) scan(op string, rows []vecstore.Record, q []float32, filter *vecstore.CompiledFilter, topK int) ([]vecstore.Match, error) {
	out := make([]vecstore.Match, 0, len(rows))
	for _, rec := range rows {
		if !filter.Matches(rec.Metadata) {
			continue
		}
		score, err := vecstore.CosineSimilarity(q, rec.Vector)
		if err != nil {
			return nil, err
		}
		out = append(out, vecstore.Match{
			ID:       rec.ID,
			Score:    score,
			Metadata: cloneMeta(rec.Metadata),
		})
	}
	vecstore.SortMatches(out)
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func cloneMeta(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
