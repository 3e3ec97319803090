package routes

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type WorkflowRoutes struct {
	server ServerInterface
}

func NewWorkflowRoutes(server ServerInterface) *WorkflowRoutes {
	return &WorkflowRoutes{server: server}
}

func (wr *WorkflowRoutes) RegisterRoutes(r *gin.Engine) {
	middleware := NewMiddleware(wr.server)

	workflows := r.Group("/workflows/:workflowID")
	workflows.Use(middleware.AuthMiddleware())
	{
		workflows.GET("/progress", wr.progressHandler)
		workflows.GET("/status", wr.statusHandler)
		workflows.POST("/cancel", wr.cancelHandler)
		workflows.GET("/documents/:documentID/download", wr.downloadDocumentHandler)
	}
}

func (wr *WorkflowRoutes) progressHandler(c *gin.Context) {
	workflowID, err := uuid.Parse(c.Param("workflowID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow id"})
		return
	}

	progress, err := wr.server.GetSigning().Progress(c.Request.Context(), workflowID)
	if err != nil {
		respondError(c, wr.server.GetLogger(), err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

func (wr *WorkflowRoutes) statusHandler(c *gin.Context) {
	workflowID, err := uuid.Parse(c.Param("workflowID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow id"})
		return
	}

	stored, effective, err := wr.server.GetSigning().Status(c.Request.Context(), workflowID)
	if err != nil {
		respondError(c, wr.server.GetLogger(), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stored_status":    stored,
		"effective_status": effective,
	})
}

func (wr *WorkflowRoutes) cancelHandler(c *gin.Context) {
	workflowID, err := uuid.Parse(c.Param("workflowID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow id"})
		return
	}

	if err := wr.server.GetSigning().Cancel(c.Request.Context(), workflowID); err != nil {
		respondError(c, wr.server.GetLogger(), err)
		return
	}
	wr.server.GetScheduler().CancelReminders(workflowID)
	c.JSON(http.StatusOK, gin.H{"message": "workflow cancelled"})
}

// downloadDocumentHandler streams the newest version of a signed document.
func (wr *WorkflowRoutes) downloadDocumentHandler(c *gin.Context) {
	documentID, err := uuid.Parse(c.Param("documentID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
		return
	}

	data, version, err := wr.server.GetSigning().LatestDocument(c.Request.Context(), documentID)
	if err != nil {
		respondError(c, wr.server.GetLogger(), err)
		return
	}
	c.Header("X-Document-Version", strconv.Itoa(version.Version))
	c.Data(http.StatusOK, "application/pdf", data)
}
