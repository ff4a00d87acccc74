package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/bc144/fennec-prediccion/internal/models"
)

// kindInvalidRequest labels binding and parameter errors
const kindInvalidRequest = "invalid_request"

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// StatusFor maps a domain error kind to its HTTP status
func StatusFor(kind models.ErrorKind) int {
	switch kind {
	case models.KindBoroughNotFound, models.KindTickerNotFound:
		return http.StatusNotFound
	case models.KindFeatureOutOfRange:
		return http.StatusUnprocessableEntity
	case models.KindQuoteUnavailable, models.KindAllQuotesUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(c *gin.Context, err error) {
	kind := models.KindOf(err)
	status := StatusFor(kind)
	h.metrics.RecordAPIError(kind.String(), endpointOf(c))

	entry := h.logger.WithError(err).WithFields(logrus.Fields{
		"kind":       kind.String(),
		"status":     status,
		"path":       c.Request.URL.Path,
		"request_id": models.RequestIDFrom(c.Request.Context()),
	})
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	c.JSON(status, ErrorResponse{Error: err.Error(), Kind: kind.String()})
}

func (h *Handler) respondBadRequest(c *gin.Context, err error) {
	h.metrics.RecordAPIError(kindInvalidRequest, endpointOf(c))
	h.logger.WithError(err).WithFields(logrus.Fields{
		"path":       c.Request.URL.Path,
		"request_id": models.RequestIDFrom(c.Request.Context()),
	}).Warn("Invalid request")
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: kindInvalidRequest})
}

// endpointOf returns the route template, keeping metric label cardinality bounded
func endpointOf(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return "unmatched"
}
