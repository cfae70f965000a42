package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mirrorpanel/mirrorpanel-backend/internal/http/response"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/services"
)

type WeightHandler struct {
	svc services.WeightTableService
}

func NewWeightHandler(svc services.WeightTableService) *WeightHandler {
	return &WeightHandler{svc: svc}
}

type putWeightRequest struct {
	Weight float64 `json:"weight"`
	Actor  string  `json:"actor"`
}

func (h *WeightHandler) GetWeight(c *gin.Context) {
	studyID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	personaID, ok := pathUUID(c, "personaID")
	if !ok {
		return
	}
	row, err := h.svc.Get(c.Request.Context(), studyID, personaID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, row)
}

func (h *WeightHandler) PutWeight(c *gin.Context) {
	studyID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	personaID, ok := pathUUID(c, "personaID")
	if !ok {
		return
	}
	var req putWeightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, string(services.ErrCodeValidation), err)
		return
	}
	row, err := h.svc.Set(c.Request.Context(), studyID, personaID, req.Weight, req.Actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, row)
}

func (h *WeightHandler) ListWeights(c *gin.Context) {
	studyID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	rows, err := h.svc.List(c.Request.Context(), studyID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"weights": rows})
}

type setPrimaryICPRequest struct {
	PersonaID string `json:"persona_id" binding:"required"`
	Actor     string `json:"actor"`
}

func (h *WeightHandler) SetPrimaryICP(c *gin.Context) {
	studyID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req setPrimaryICPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, string(services.ErrCodeValidation), err)
		return
	}
	personaID, err := uuid.Parse(req.PersonaID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, string(services.ErrCodeValidation), err)
		return
	}
	if err := h.svc.SetPrimaryICP(c.Request.Context(), studyID, personaID, req.Actor); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
