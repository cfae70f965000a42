package app

import (
	httpH "github.com/mirrorpanel/mirrorpanel-backend/internal/http/handlers"
)

type Handlers struct {
	Weight      *httpH.WeightHandler
	Search      *httpH.SearchHandler
	Aggregation *httpH.AggregationHandler
	Export      *httpH.ExportHandler
	Guardrail   *httpH.GuardrailHandler
	Health      *httpH.HealthHandler
}

func wireHandlers(serviceset Services, reposet Repos) Handlers {
	return Handlers{
		Weight:      httpH.NewWeightHandler(serviceset.WeightTable),
		Search:      httpH.NewSearchHandler(serviceset.Index, serviceset.Search),
		Aggregation: httpH.NewAggregationHandler(serviceset.Aggregation),
		Export:      httpH.NewExportHandler(serviceset.Export),
		Guardrail:   httpH.NewGuardrailHandler(reposet.Guardrail),
		Health:      httpH.NewHealthHandler(),
	}
}
