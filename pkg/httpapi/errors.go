package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coolbeans/seiview/pkg/sei"
	"github.com/coolbeans/seiview/pkg/store"
)

// errorEnvelope is the single error shape every route returns.
type errorEnvelope struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeErrorEnvelope(c *gin.Context, status int, errType, message string, details any) {
	c.AbortWithStatusJSON(status, gin.H{"error": errorEnvelope{
		Type:    errType,
		Message: message,
		Details: details,
	}})
}

// writeError maps any error from the lower layers onto the envelope.
// Upstream auth and validation statuses pass through; transport and
// upstream failures become 502; an open breaker becomes 503.
func writeError(c *gin.Context, err error) {
	var apiErr *sei.APIError
	if errors.As(err, &apiErr) {
		status := http.StatusBadGateway
		switch apiErr.Kind {
		case sei.KindAuth:
			status = apiErr.StatusCode
			if status != http.StatusUnauthorized && status != http.StatusForbidden {
				status = http.StatusUnauthorized
			}
		case sei.KindValidation:
			status = http.StatusUnprocessableEntity
		case sei.KindUnavailable:
			status = http.StatusServiceUnavailable
		case sei.KindTransport, sei.KindUpstream:
			status = http.StatusBadGateway
		}
		writeErrorEnvelope(c, status, string(apiErr.Kind), apiErr.Message, nil)
		return
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		writeErrorEnvelope(c, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, store.ErrForbidden):
		writeErrorEnvelope(c, http.StatusForbidden, "forbidden", err.Error(), nil)
	default:
		writeErrorEnvelope(c, http.StatusBadGateway, string(sei.KindUpstream), err.Error(), nil)
	}
}

// writeStoreError maps collaboration-store errors: unknown errors there are
// caller mistakes (validation), not upstream failures.
func writeStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeErrorEnvelope(c, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, store.ErrForbidden):
		writeErrorEnvelope(c, http.StatusForbidden, "forbidden", err.Error(), nil)
	default:
		writeErrorEnvelope(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	}
}
