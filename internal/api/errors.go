package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ecg-guardrail-server/internal/domain"
)

// respondError maps service errors onto status codes. Internal details of
// 500 responses are logged, not returned.
func (s *Server) respondError(c *gin.Context, err error) {
	requestID := c.GetString("correlation_id")

	var (
		validationErr *domain.ValidationError
		auditErr      *domain.AuditWriteError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, domain.NewGuardrailError(domain.ErrValidation, validationErr.Error(), validationErr.Field, requestID))
	case errors.Is(err, domain.ErrInsufficientRole):
		c.JSON(http.StatusForbidden, domain.NewGuardrailError(domain.ErrAuthorization, "Insufficient role", "", requestID))
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, domain.NewGuardrailError(domain.ErrInvalidInput, "Not found", err.Error(), requestID))
	case errors.As(err, &auditErr):
		s.logger.WithError(err).WithField("correlation_id", requestID).Error("Decision withheld: audit write failed")
		c.JSON(http.StatusInternalServerError, domain.NewGuardrailError(domain.ErrAuditWrite, "Audit ledger write failed", "", requestID))
	default:
		s.logger.WithError(err).WithField("correlation_id", requestID).Error("Request failed")
		c.JSON(http.StatusInternalServerError, domain.NewGuardrailError(domain.ErrInternalServer, "Internal server error", "", requestID))
	}
}

// badRequest reports a body that could not be decoded
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, domain.NewGuardrailError(domain.ErrInvalidInput, "Invalid request", err.Error(), c.GetString("correlation_id")))
}
