package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mirrorpanel/mirrorpanel-backend/internal/data/repos"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/http/response"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/services"
)

type GuardrailHandler struct {
	repo repos.GuardrailEventRepo
}

func NewGuardrailHandler(repo repos.GuardrailEventRepo) *GuardrailHandler {
	return &GuardrailHandler{repo: repo}
}

func (h *GuardrailHandler) ListGuardrailEvents(c *gin.Context) {
	studyID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, string(services.ErrCodeValidation), err)
			return
		}
		limit = parsed
	}
	rows, err := h.repo.ListByStudy(c.Request.Context(), nil, studyID, limit)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, string(services.ErrCodeInternal), err)
		return
	}
	response.RespondOK(c, gin.H{"events": rows})
}
