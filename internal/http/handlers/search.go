package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mirrorpanel/mirrorpanel-backend/internal/http/response"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/services"
)

type SearchHandler struct {
	index  services.EmbeddingIndexService
	search services.SearchService
}

func NewSearchHandler(index services.EmbeddingIndexService, search services.SearchService) *SearchHandler {
	return &SearchHandler{index: index, search: search}
}

func (h *SearchHandler) IndexStudy(c *gin.Context) {
	studyID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	count, err := h.index.IndexStudy(c.Request.Context(), studyID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"indexed": count})
}

type searchRequest struct {
	StudyID string         `json:"study_id" binding:"required"`
	Query   string         `json:"query"`
	Vector  []float32      `json:"vector"`
	TopK    int            `json:"top_k"`
	Exact   bool           `json:"exact"`
	Filter  map[string]any `json:"filter"`
}

func (h *SearchHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, string(services.ErrCodeValidation), err)
		return
	}
	studyID, err := uuid.Parse(req.StudyID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, string(services.ErrCodeValidation), err)
		return
	}
	hits, err := h.search.Search(c.Request.Context(), services.SearchRequest{
		StudyID: studyID,
		Query:   req.Query,
		Vector:  req.Vector,
		TopK:    req.TopK,
		Exact:   req.Exact,
		Filter:  req.Filter,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"hits": hits})
}
