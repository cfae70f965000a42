package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mirrorpanel/mirrorpanel-backend/internal/data/repos"
	types "github.com/mirrorpanel/mirrorpanel-backend/internal/domain/research"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/observability"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/platform/logger"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/vecstore"
)

// Embedder turns message text into fixed-dimension vectors. The production
// embedder is an external model endpoint; the hashing embedder below keeps
// development and tests deterministic without one.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

type hashingEmbedder struct {
	dim int
}

// NewHashingEmbedder builds a deterministic bag-of-words embedder: each token
// hashes into a bucket, and the vector is L2-normalized. Identical text always
// produces identical vectors.
func NewHashingEmbedder(dim int) Embedder {
	if dim <= 0 {
		dim = 256
	}
	return &hashingEmbedder{dim: dim}
}

func (e *hashingEmbedder) Dimension() int { return e.dim }

func (e *hashingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embedOne(text)
	}
	return out, nil
}

func (e *hashingEmbedder) embedOne(text string) []float32 {
	vec := make([]float32, e.dim)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vec[int(h.Sum32())%e.dim]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}

// EmbeddingIndexService keeps the vector store in sync with the transcript.
type EmbeddingIndexService interface {
	// IndexStudy embeds and upserts every message of the study. Blank
	// content gets the zero-vector sentinel so the row exists but never
	// ranks above real matches.
	IndexStudy(ctx context.Context, studyID uuid.UUID) (int, error)
	IndexMessages(ctx context.Context, studyID uuid.UUID, msgs []*types.Message) (int, error)
	DeleteStudy(ctx context.Context, studyID uuid.UUID) error
}

type embeddingIndexService struct {
	store    vecstore.VectorStore
	embedder Embedder
	messages repos.MessageRepo
	studies  repos.StudyRepo
	log      *logger.Logger
}

func NewEmbeddingIndexService(
	store vecstore.VectorStore,
	embedder Embedder,
	messages repos.MessageRepo,
	studies repos.StudyRepo,
	baseLog *logger.Logger,
) (EmbeddingIndexService, error) {
	if store.Dimension() != embedder.Dimension() {
		return nil, fmt.Errorf("embedder dimension %d does not match store dimension %d",
			embedder.Dimension(), store.Dimension())
	}
	return &embeddingIndexService{
		store:    store,
		embedder: embedder,
		messages: messages,
		studies:  studies,
		log:      baseLog.With("service", "EmbeddingIndexService"),
	}, nil
}

func (s *embeddingIndexService) IndexStudy(ctx context.Context, studyID uuid.UUID) (int, error) {
	if _, err := s.studies.GetByID(ctx, nil, studyID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, svcErr(ErrCodeNotFound, fmt.Sprintf("study %s not found", studyID), err)
		}
		return 0, svcErr(ErrCodeInternal, "read study", err)
	}
	msgs, err := s.messages.ListByStudy(ctx, nil, studyID)
	if err != nil {
		return 0, svcErr(ErrCodeInternal, "load messages", err)
	}
	return s.IndexMessages(ctx, studyID, msgs)
}

func (s *embeddingIndexService) IndexMessages(ctx context.Context, studyID uuid.UUID, msgs []*types.Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	start := time.Now()
	texts := make([]string, 0, len(msgs))
	embedIdx := make([]int, 0, len(msgs))
	for i, msg := range msgs {
		if strings.TrimSpace(msg.Content) != "" {
			texts = append(texts, msg.Content)
			embedIdx = append(embedIdx, i)
		}
	}

	vectors := map[int][]float32{}
	if len(texts) > 0 {
		embedded, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return 0, svcErr(ErrCodeBackendUnavailable, "embed messages", err)
		}
		for j, idx := range embedIdx {
			vectors[idx] = embedded[j]
		}
	}

	records := make([]vecstore.Record, 0, len(msgs))
	for i, msg := range msgs {
		vec, ok := vectors[i]
		if !ok {
			vec = vecstore.ZeroVector(s.store.Dimension())
		}
		tags, _ := msg.Tags()
		meta := map[string]any{
			"study_id":   studyID.String(),
			"session_id": msg.SessionID.String(),
			"role":       string(msg.Role),
			"seq":        float64(msg.Seq),
			"sentiment":  tags.Sentiment,
		}
		if msg.PersonaID != nil {
			meta["persona_id"] = msg.PersonaID.String()
		}
		records = append(records, vecstore.Record{
			ID:       msg.ID.String(),
			StudyID:  studyID.String(),
			Vector:   vec,
			Metadata: meta,
		})
	}

	if err := s.store.Upsert(ctx, records); err != nil {
		observability.Current().ObserveVectorOp("upsert", "error", time.Since(start))
		return 0, mapVectorErr("index messages", err)
	}
	observability.Current().ObserveVectorOp("upsert", "ok", time.Since(start))
	s.log.Info("messages indexed", "study_id", studyID, "count", len(records))
	return len(records), nil
}

func (s *embeddingIndexService) DeleteStudy(ctx context.Context, studyID uuid.UUID) error {
	msgs, err := s.messages.ListByStudy(ctx, nil, studyID)
	if err != nil {
		return svcErr(ErrCodeInternal, "load messages", err)
	}
	ids := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		ids = append(ids, msg.ID.String())
	}
	if len(ids) == 0 {
		return nil
	}
	if err := s.store.Delete(ctx, ids); err != nil {
		return mapVectorErr("delete study vectors", err)
	}
	return nil
}

func mapVectorErr(msg string, err error) error {
	switch vecstore.CodeOf(err) {
	case vecstore.OperationErrorValidation, vecstore.OperationErrorInvalidArgument,
		vecstore.OperationErrorUnsupportedFilter, vecstore.OperationErrorDimensionMismatch:
		return svcErr(ErrCodeValidation, msg, err)
	case vecstore.OperationErrorBackendUnavailable, vecstore.OperationErrorTimeout:
		return svcErr(ErrCodeBackendUnavailable, msg, err)
	default:
		return svcErr(ErrCodeInternal, msg, err)
	}
}
