package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ReminderRoutes struct {
	server ServerInterface
}

func NewReminderRoutes(server ServerInterface) *ReminderRoutes {
	return &ReminderRoutes{server: server}
}

func (rr *ReminderRoutes) RegisterRoutes(r *gin.Engine) {
	middleware := NewMiddleware(rr.server)

	remind := r.Group("/")
	remind.Use(middleware.AuthMiddleware())
	{
		remind.POST("/workflows/:workflowID/remind", rr.remindAllHandler)
		remind.POST("/recipients/:recipientID/remind", rr.remindNowHandler)
	}
}

// remindAllHandler triggers an on-demand reminder pass: same gating and
// ordering as the periodic tick.
func (rr *ReminderRoutes) remindAllHandler(c *gin.Context) {
	workflowID, err := uuid.Parse(c.Param("workflowID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow id"})
		return
	}

	total, err := rr.server.GetScheduler().RemindAll(c.Request.Context(), workflowID)
	if err != nil {
		respondError(c, rr.server.GetLogger(), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total_reminded": total})
}

// remindNowHandler nudges a single recipient immediately, skipping the
// ordering computation but not the signed/closed checks.
func (rr *ReminderRoutes) remindNowHandler(c *gin.Context) {
	recipientID, err := uuid.Parse(c.Param("recipientID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recipient id"})
		return
	}

	if err := rr.server.GetScheduler().RemindNow(c.Request.Context(), recipientID); err != nil {
		respondError(c, rr.server.GetLogger(), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "reminder sent"})
}
