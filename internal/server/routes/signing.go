package routes

import (
	"encoding/base64"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sealflow/internal/signing"
	"sealflow/internal/workflow"
)

// maxDocumentBytes bounds an uploaded signed document.
const maxDocumentBytes = 32 << 20

type SigningRoutes struct {
	server ServerInterface
}

func NewSigningRoutes(server ServerInterface) *SigningRoutes {
	return &SigningRoutes{server: server}
}

func (sr *SigningRoutes) RegisterRoutes(r *gin.Engine) {
	// Token-addressed routes: the token is the credential, no session.
	sign := r.Group("/sign/:token")
	{
		sign.GET("", sr.sessionHandler)
		sign.POST("", sr.submitHandler)
		sign.POST("/preview", sr.previewHandler)
	}
}

type fieldPayload struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Position string `json:"position"`
	Required bool   `json:"required"`
	GroupID  string `json:"group_id,omitempty"`
	Common   bool   `json:"common"`
}

func fieldPayloads(fields []signing.Field, common bool) []fieldPayload {
	out := make([]fieldPayload, 0, len(fields))
	for _, f := range fields {
		out = append(out, fieldPayload{
			ID:       f.ID.String(),
			Type:     string(f.Type),
			Position: signing.WirePosition(f.Position),
			Required: f.Required,
			GroupID:  f.GroupID,
			Common:   common,
		})
	}
	return out
}

// sessionHandler returns the signing page payload for a token.
func (sr *SigningRoutes) sessionHandler(c *gin.Context) {
	session, err := sr.server.GetSigning().Session(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, sr.server.GetLogger(), err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"workflow_id":  session.Workflow.ID,
		"valid_until":  session.Workflow.ValidUntil,
		"sequential":   session.Workflow.Sequential,
		"document_ref": session.Workflow.SourceBlobRef,
		"recipient": gin.H{
			"id":    session.Recipient.ID,
			"name":  session.Recipient.Name,
			"email": session.Recipient.Email,
			"role":  session.Recipient.Role,
		},
		"fields":        fieldPayloads(session.Fields, false),
		"common_fields": fieldPayloads(session.CommonFields, true),
	})
}

// submitHandler accepts a multipart submission: the recipient id and the
// assembled document file. The response always carries the tri-state
// status body on success and info outcomes.
func (sr *SigningRoutes) submitHandler(c *gin.Context) {
	recipientID, err := uuid.Parse(c.PostForm("recipient_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recipient_id is required"})
		return
	}

	file, header, err := c.Request.FormFile("document")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "document file is required"})
		return
	}
	defer file.Close()

	if header.Size > maxDocumentBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "document too large"})
		return
	}
	document, err := io.ReadAll(io.LimitReader(file, maxDocumentBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read document"})
		return
	}

	result, err := sr.server.GetSigning().SubmitSignature(c.Request.Context(), workflow.SubmitRequest{
		Token:       c.Param("token"),
		RecipientID: recipientID,
		Document:    document,
	})
	if err != nil {
		respondError(c, sr.server.GetLogger(), err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type previewRequest struct {
	OverlayWidth  float64           `json:"overlay_width" binding:"required"`
	OverlayHeight float64           `json:"overlay_height" binding:"required"`
	Values        map[string]string `json:"values"`
}

// previewHandler assembles the document server-side with the supplied
// values and returns the bytes without recording anything.
func (sr *SigningRoutes) previewHandler(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	values := make(map[uuid.UUID]string, len(req.Values))
	for k, v := range req.Values {
		id, err := uuid.Parse(k)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid field id: " + k})
			return
		}
		values[id] = v
	}

	result, err := sr.server.GetSigning().Preview(c.Request.Context(), workflow.PreviewRequest{
		Token:    c.Param("token"),
		OverlayW: req.OverlayWidth,
		OverlayH: req.OverlayHeight,
		Values:   values,
	})
	if err != nil {
		respondError(c, sr.server.GetLogger(), err)
		return
	}

	warnings := make([]gin.H, 0, len(result.Warnings))
	for _, w := range result.Warnings {
		warnings = append(warnings, gin.H{"field_id": w.FieldID, "reason": w.Reason})
	}
	c.JSON(http.StatusOK, gin.H{
		"document": base64.StdEncoding.EncodeToString(result.Bytes),
		"warnings": warnings,
	})
}
