package services_test

import (
	"context"
	"testing"

	"github.com/google/uuid"

	types "github.com/mirrorpanel/mirrorpanel-backend/internal/domain/research"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/platform/logger"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/services"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/vecstore"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/vecstore/memory"
)

const testDim = 64

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

func newIndexFixture(t *testing.T) (services.EmbeddingIndexService, services.SearchService, vecstore.VectorStore) {
	t.Helper()
	log := testLogger(t)
	store, err := memory.New(log, testDim)
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	embedder := services.NewHashingEmbedder(testDim)
	idx, err := services.NewEmbeddingIndexService(store, embedder, nil, nil, log)
	if err != nil {
		t.Fatalf("index service: %v", err)
	}
	search := services.NewSearchService(store, embedder, log)
	return idx, search, store
}

func fixtureMessage(t *testing.T, sessionID uuid.UUID, seq int64, content string) *types.Message {
	t.Helper()
	msg := &types.Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      types.MessageRoleParticipant,
		Content:   content,
		Seq:       seq,
	}
	if err := msg.SetTags(types.MessageTags{Sentiment: 0.4}); err != nil {
		t.Fatalf("set tags: %v", err)
	}
	return msg
}

func TestHashingEmbedderIsDeterministic(t *testing.T) {
	e := services.NewHashingEmbedder(testDim)
	ctx := context.Background()

	a, err := e.Embed(ctx, []string{"pricing is too complicated"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	b, err := e.Embed(ctx, []string{"pricing is too complicated"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatalf("vector differs at %d: %v vs %v", i, a[0][i], b[0][i])
		}
	}
	sim, err := vecstore.CosineSimilarity(a[0], b[0])
	if err != nil {
		t.Fatalf("cosine: %v", err)
	}
	if sim < 0.9999 {
		t.Fatalf("identical text should be identical vectors, cosine=%v", sim)
	}
}

func TestIndexMessagesBlankContentGetsZeroVector(t *testing.T) {
	idx, search, store := newIndexFixture(t)
	ctx := context.Background()
	studyID := uuid.New()
	sessionID := uuid.New()

	msgs := []*types.Message{
		fixtureMessage(t, sessionID, 1, "the onboarding flow confused me"),
		fixtureMessage(t, sessionID, 2, "   "),
	}
	n, err := idx.IndexMessages(ctx, studyID, msgs)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if n != 2 {
		t.Fatalf("both rows should index, got %d", n)
	}
	if err := store.Rebuild(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	hits, err := search.Search(ctx, services.SearchRequest{
		StudyID: studyID,
		Query:   "confusing onboarding flow",
		TopK:    2,
		Exact:   true,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].MessageID != msgs[0].ID.String() {
		t.Fatalf("tagged message should rank first, got %s", hits[0].MessageID)
	}
	if hits[1].Score != 0 {
		t.Fatalf("blank message must score 0, got %v", hits[1].Score)
	}
}

func TestSearchScopesToStudy(t *testing.T) {
	idx, search, store := newIndexFixture(t)
	ctx := context.Background()
	studyA := uuid.New()
	studyB := uuid.New()

	if _, err := idx.IndexMessages(ctx, studyA, []*types.Message{
		fixtureMessage(t, uuid.New(), 1, "budget approval takes forever"),
	}); err != nil {
		t.Fatalf("index a: %v", err)
	}
	if _, err := idx.IndexMessages(ctx, studyB, []*types.Message{
		fixtureMessage(t, uuid.New(), 1, "budget approval takes forever"),
	}); err != nil {
		t.Fatalf("index b: %v", err)
	}
	if err := store.Rebuild(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	hits, err := search.Search(ctx, services.SearchRequest{
		StudyID: studyA,
		Query:   "budget approval",
		TopK:    10,
		Exact:   true,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("search must stay inside the study, got %d hits", len(hits))
	}
	if got := hits[0].Metadata["study_id"]; got != studyA.String() {
		t.Fatalf("hit from wrong study: %v", got)
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	_, search, _ := newIndexFixture(t)

	_, err := search.Search(context.Background(), services.SearchRequest{
		StudyID: uuid.New(),
		Query:   "  ",
	})
	if services.CodeOf(err) != services.ErrCodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
