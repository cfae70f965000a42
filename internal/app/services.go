package app

import (
	"gorm.io/gorm"

	"github.com/mirrorpanel/mirrorpanel-backend/internal/platform/logger"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/services"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/vecstore"
)

type Services struct {
	WeightTable services.WeightTableService
	Aggregation services.AggregationService
	Export      services.ExportService
	Index       services.EmbeddingIndexService
	Search      services.SearchService
}

func wireServices(
	db *gorm.DB,
	log *logger.Logger,
	cfg Config,
	reposet Repos,
	clients Clients,
	store vecstore.VectorStore,
) (Services, error) {
	weightTable := services.NewWeightTableService(
		db,
		reposet.Study,
		reposet.Persona,
		reposet.Weight,
		reposet.Guardrail,
		clients.AuditBus,
		log,
	)

	aggregation := services.NewAggregationService(
		db,
		reposet.Study,
		reposet.Message,
		reposet.Insight,
		reposet.Rollup,
		weightTable,
		log,
	)

	export := services.NewExportService(
		db,
		reposet.Study,
		reposet.Persona,
		reposet.Message,
		reposet.Weight,
		reposet.Insight,
		reposet.Guardrail,
		reposet.Export,
		clients.AuditBus,
		clients.Bucket,
		cfg.ExportDir,
		log,
	)

	// The embedder always matches the store dimension; mismatches are a
	// bootstrap error, not a runtime one.
	embedder := services.NewHashingEmbedder(store.Dimension())
	index, err := services.NewEmbeddingIndexService(store, embedder, reposet.Message, reposet.Study, log)
	if err != nil {
		return Services{}, err
	}
	search := services.NewSearchService(store, embedder, log)

	return Services{
		WeightTable: weightTable,
		Aggregation: aggregation,
		Export:      export,
		Index:       index,
		Search:      search,
	}, nil
}
