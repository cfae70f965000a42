package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/mirrorpanel/mirrorpanel-backend/internal/http/handlers"
	httpMW "github.com/mirrorpanel/mirrorpanel-backend/internal/http/middleware"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/observability"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log     *logger.Logger
	Metrics *observability.Metrics

	WeightHandler      *httpH.WeightHandler
	SearchHandler      *httpH.SearchHandler
	AggregationHandler *httpH.AggregationHandler
	ExportHandler      *httpH.ExportHandler
	GuardrailHandler   *httpH.GuardrailHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(otelgin.Middleware("mirrorpanel"))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Weight table
		if cfg.WeightHandler != nil {
			api.GET("/studies/:id/weights", cfg.WeightHandler.ListWeights)
			api.GET("/studies/:id/personas/:personaID/weight", cfg.WeightHandler.GetWeight)
			api.PUT("/studies/:id/personas/:personaID/weight", cfg.WeightHandler.PutWeight)
			api.POST("/studies/:id/primary-icp", cfg.WeightHandler.SetPrimaryICP)
		}

		// Vector index + semantic search
		if cfg.SearchHandler != nil {
			api.POST("/studies/:id/index", cfg.SearchHandler.IndexStudy)
			api.POST("/search", cfg.SearchHandler.Search)
		}

		// Aggregation
		if cfg.AggregationHandler != nil {
			api.POST("/studies/:id/aggregations", cfg.AggregationHandler.RunAggregation)
			api.GET("/studies/:id/insights/latest", cfg.AggregationHandler.LatestInsight)
		}

		// Exports
		if cfg.ExportHandler != nil {
			api.POST("/studies/:id/exports", cfg.ExportHandler.RunExport)
			api.GET("/studies/:id/exports", cfg.ExportHandler.ListExports)
			api.GET("/exports/:id", cfg.ExportHandler.GetExport)
		}

		// Guardrail audit trail
		if cfg.GuardrailHandler != nil {
			api.GET("/studies/:id/guardrails", cfg.GuardrailHandler.ListGuardrailEvents)
		}
	}

	return r
}
