package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orcamentos/internal/domain"
)

const codeBadRequest = "bad_request"

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusForKind сопоставляет класс ошибки HTTP-статусу.
func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidState:
		return http.StatusConflict
	case domain.KindStoreFailure:
		return http.StatusServiceUnavailable
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(c *gin.Context, operation string, err error) {
	kind := domain.Classify(err)
	status := statusForKind(kind)
	if errors.Is(err, context.Canceled) && kind == domain.KindInternal {
		// Клиент закрыл соединение; ответ уже никто не прочитает.
		status = 499
	}

	entry := h.logger.WithError(err).WithFields(log.Fields{
		"operation":  operation,
		"kind":       string(kind),
		"request_id": c.GetString(requestIDKey),
	})
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Warn("request rejected")
	}

	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error(), Code: string(kind)})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: message, Code: codeBadRequest})
}
