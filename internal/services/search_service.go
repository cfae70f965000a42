package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mirrorpanel/mirrorpanel-backend/internal/observability"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/platform/logger"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/vecstore"
)

const (
	searchDefaultTopK = 10
	searchMaxTopK     = 100
)

type SearchRequest struct {
	StudyID uuid.UUID      `json:"study_id"`
	Query   string         `json:"query"`
	Vector  []float32      `json:"vector"`
	TopK    int            `json:"top_k"`
	Exact   bool           `json:"exact"`
	Filter  map[string]any `json:"filter"`
}

type SearchHit struct {
	MessageID string         `json:"message_id"`
	Score     float64        `json:"score"`
	Metadata  map[string]any `json:"metadata"`
}

// SearchService answers semantic queries over indexed messages. Exact search
// guarantees completeness over all committed upserts; the default path goes
// through the approximate index.
type SearchService interface {
	Search(ctx context.Context, req SearchRequest) ([]SearchHit, error)
}

type searchService struct {
	store    vecstore.VectorStore
	embedder Embedder
	log      *logger.Logger
}

func NewSearchService(store vecstore.VectorStore, embedder Embedder, baseLog *logger.Logger) SearchService {
	return &searchService{
		store:    store,
		embedder: embedder,
		log:      baseLog.With("service", "SearchService"),
	}
}

func (s *searchService) Search(ctx context.Context, req SearchRequest) ([]SearchHit, error) {
	if req.StudyID == uuid.Nil {
		return nil, svcErr(ErrCodeValidation, "study_id is required", nil)
	}
	if strings.TrimSpace(req.Query) == "" && len(req.Vector) == 0 {
		return nil, svcErr(ErrCodeValidation, "query text or vector is required", nil)
	}
	topK := req.TopK
	if topK <= 0 {
		topK = searchDefaultTopK
	}
	if topK > searchMaxTopK {
		topK = searchMaxTopK
	}

	q := req.Vector
	if len(q) == 0 {
		vecs, err := s.embedder.Embed(ctx, []string{req.Query})
		if err != nil {
			return nil, svcErr(ErrCodeBackendUnavailable, "embed query", err)
		}
		q = vecs[0]
	} else if len(q) != s.store.Dimension() {
		return nil, svcErr(ErrCodeValidation, "query vector has the wrong dimension", nil)
	}

	filter := map[string]any{"study_id": req.StudyID.String()}
	for k, v := range req.Filter {
		if k == "study_id" {
			continue
		}
		filter[k] = v
	}

	op := "query"
	if req.Exact {
		op = "search_exact"
	}
	start := time.Now()
	var matches []vecstore.Match
	var err error
	if req.Exact {
		matches, err = s.store.SearchExact(ctx, q, filter, topK)
	} else {
		matches, err = s.store.Query(ctx, q, filter, topK)
	}
	if err != nil {
		observability.Current().ObserveVectorOp(op, "error", time.Since(start))
		return nil, mapVectorErr("search messages", err)
	}
	observability.Current().ObserveVectorOp(op, "ok", time.Since(start))

	hits := make([]SearchHit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, SearchHit{MessageID: m.ID, Score: m.Score, Metadata: m.Metadata})
	}
	s.log.Info("search complete", "study_id", req.StudyID, "op", op, "hits", len(hits))
	return hits, nil
}
