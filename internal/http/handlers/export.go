package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mirrorpanel/mirrorpanel-backend/internal/http/response"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/services"
)

type ExportHandler struct {
	svc services.ExportService
}

func NewExportHandler(svc services.ExportService) *ExportHandler {
	return &ExportHandler{svc: svc}
}

type runExportRequest struct {
	Formats  []string `json:"formats"`
	Datasets []string `json:"datasets"`
	Actor    string   `json:"actor"`
}

func (h *ExportHandler) RunExport(c *gin.Context) {
	studyID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req runExportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, string(services.ErrCodeValidation), err)
			return
		}
	}
	row, err := h.svc.Run(c.Request.Context(), services.ExportRequest{
		StudyID:  studyID,
		Formats:  req.Formats,
		Datasets: req.Datasets,
		Actor:    req.Actor,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, row)
}

func (h *ExportHandler) GetExport(c *gin.Context) {
	exportID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	row, err := h.svc.Get(c.Request.Context(), exportID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, row)
}

func (h *ExportHandler) ListExports(c *gin.Context) {
	studyID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	rows, err := h.svc.ListByStudy(c.Request.Context(), studyID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"exports": rows})
}
