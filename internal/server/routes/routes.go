// Package routes holds the HTTP handlers for the signing API.
package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sealflow/internal/reminder"
	"sealflow/internal/workflow"
)

// ServerInterface exposes the wired services route groups need.
type ServerInterface interface {
	GetSigning() *workflow.Service
	GetScheduler() *reminder.Scheduler
	GetLogger() *zap.Logger
}

// respondError maps domain sentinels to HTTP statuses. Unknown errors
// become 500s with the detail kept in the log, not the response.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, workflow.ErrTokenInvalid), errors.Is(err, workflow.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, workflow.ErrTokenExpired):
		c.JSON(http.StatusGone, gin.H{"error": "signing link has expired"})
	case errors.Is(err, workflow.ErrTokenUsed):
		c.JSON(http.StatusConflict, gin.H{"error": "signing link has already been used"})
	case errors.Is(err, workflow.ErrOutOfTurn):
		c.JSON(http.StatusConflict, gin.H{"error": "it is not this recipient's turn to sign"})
	case errors.Is(err, workflow.ErrAlreadySigned):
		c.JSON(http.StatusConflict, gin.H{"error": "recipient has already signed"})
	case errors.Is(err, workflow.ErrEnvelopeClosed), errors.Is(err, workflow.ErrWorkflowClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "workflow is no longer accepting signatures"})
	case errors.Is(err, workflow.ErrBlobUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "document storage unavailable"})
	default:
		logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
