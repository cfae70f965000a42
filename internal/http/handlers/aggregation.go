package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mirrorpanel/mirrorpanel-backend/internal/http/response"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/insights"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/services"
)

type AggregationHandler struct {
	svc services.AggregationService
}

func NewAggregationHandler(svc services.AggregationService) *AggregationHandler {
	return &AggregationHandler{svc: svc}
}

// SupportThreshold is a pointer so an explicit 0 is distinguishable from an
// absent field, which falls back to the engine default.
type runAggregationRequest struct {
	SupportThreshold *float64 `json:"support_threshold"`
}

func (h *AggregationHandler) RunAggregation(c *gin.Context) {
	studyID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req runAggregationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, string(services.ErrCodeValidation), err)
			return
		}
	}
	insight, err := h.svc.Run(c.Request.Context(), studyID, insights.Options{
		SupportThreshold: req.SupportThreshold,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, insight)
}

func (h *AggregationHandler) LatestInsight(c *gin.Context) {
	studyID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	insight, err := h.svc.Latest(c.Request.Context(), studyID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, insight)
}
