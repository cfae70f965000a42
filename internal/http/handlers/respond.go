package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mirrorpanel/mirrorpanel-backend/internal/http/response"
	"github.com/mirrorpanel/mirrorpanel-backend/internal/services"
)

// respondServiceError translates the service error taxonomy into HTTP statuses.
func respondServiceError(c *gin.Context, err error) {
	code := services.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case services.ErrCodeValidation:
		status = http.StatusBadRequest
	case services.ErrCodeNotFound:
		status = http.StatusNotFound
	case services.ErrCodeConflict:
		status = http.StatusConflict
	case services.ErrCodeZeroDenominator:
		status = http.StatusUnprocessableEntity
	case services.ErrCodeBackendUnavailable:
		status = http.StatusServiceUnavailable
	case services.ErrCodeSchemaViolation, services.ErrCodeInternal:
		status = http.StatusInternalServerError
	}
	response.RespondError(c, status, string(code), err)
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, string(services.ErrCodeValidation), err)
		return uuid.Nil, false
	}
	return id, true
}
