package app

import (
	"github.com/gin-gonic/gin"

	appHTTP "github.com/mirrorpanel/mirrorpanel-backend/internal/http"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/observability"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/platform/logger"
)

func wireRouter(log *logger.Logger, metrics *observability.Metrics, handlerset Handlers) *gin.Engine {
	return appHTTP.NewRouter(appHTTP.RouterConfig{
		Log:     log,
		Metrics: metrics,

		WeightHandler:      handlerset.Weight,
		SearchHandler:      handlerset.Search,
		AggregationHandler: handlerset.Aggregation,
		ExportHandler:      handlerset.Export,
		GuardrailHandler:   handlerset.Guardrail,

		HealthHandler: handlerset.Health,
	})
}
