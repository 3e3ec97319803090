package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sealflow/internal/config"
	"sealflow/internal/notify"
	"sealflow/internal/reminder"
	"sealflow/internal/storage"
	"sealflow/internal/workflow"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type apiFixture struct {
	handler   http.Handler
	store     *workflow.MemStore
	w         workflow.Workflow
	recipient workflow.Recipient
	token     string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	store := workflow.NewMemStore()
	blobs := storage.NewMemBlobStore()

	w := workflow.Workflow{
		ID:         uuid.New(),
		TemplateID: uuid.New(),
		CreatedBy:  uuid.New(),
		ValidUntil: time.Now().Add(48 * time.Hour),
		Status:     workflow.WorkflowInProgress,
	}
	e := workflow.Envelope{ID: uuid.New(), WorkflowID: w.ID, Status: workflow.EnvelopeInProgress}
	r := workflow.Recipient{
		ID:                  uuid.New(),
		EnvelopeID:          e.ID,
		TemplateRecipientID: uuid.New(),
		Role:                "signer",
		RolePriority:        1,
		Delivery:            workflow.DeliveryNeedsToSign,
		Name:                "Jane Doe",
		Email:               "jane@example.com",
		DeliveryStatus:      "pending",
	}
	token := uuid.NewString()
	store.Seed(w, e, []workflow.Recipient{r}, []workflow.SigningToken{
		{Token: token, RecipientID: r.ID, ExpiresAt: time.Now().Add(24 * time.Hour)},
	}, nil)

	svc := workflow.NewService(store, blobs, nil, nil)
	sched := reminder.NewScheduler(store, notify.NewLogSender(nil), nil)

	cfg := config.AppConfig{
		SessionSecret:     "test-secret",
		SessionCookieName: "test_session",
	}
	srv := New(cfg, svc, sched, nil, nil)
	return &apiFixture{
		handler:   srv.RegisterRoutes(),
		store:     store,
		w:         w,
		recipient: r,
		token:     token,
	}
}

func (f *apiFixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) submitRequest(t *testing.T, recipientID uuid.UUID, document []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("recipient_id", recipientID.String()))
	fw, err := mw.CreateFormFile("document", "signed.pdf")
	require.NoError(t, err)
	_, err = fw.Write(document)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/sign/"+f.token, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"up"`)
}

func TestSigningSessionEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/sign/"+f.token, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		WorkflowID string `json:"workflow_id"`
		Recipient  struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"recipient"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, f.w.ID.String(), payload.WorkflowID)
	assert.Equal(t, f.recipient.ID.String(), payload.Recipient.ID)
	assert.Equal(t, "jane@example.com", payload.Recipient.Email)
}

func TestSigningSessionUnknownToken(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/sign/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitSignatureEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, f.submitRequest(t, f.recipient.ID, []byte("%PDF-signed")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result workflow.SubmitResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, workflow.OutcomeSuccess, result.Status)
	assert.Equal(t, 1, result.Version)

	// Resubmitting the consumed token is the idempotent info outcome.
	rec = f.do(t, f.submitRequest(t, f.recipient.ID, []byte("%PDF-signed")))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, workflow.OutcomeInfo, result.Status)
}

func TestSubmitSignatureMissingFields(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/sign/"+f.token, nil)
	rec := f.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitSignatureWrongRecipient(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, f.submitRequest(t, uuid.New(), []byte("%PDF")))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorkflowRoutesRequireSession(t *testing.T) {
	f := newAPIFixture(t)

	paths := []string{
		fmt.Sprintf("/workflows/%s/progress", f.w.ID),
		fmt.Sprintf("/workflows/%s/status", f.w.ID),
	}
	for _, path := range paths {
		rec := f.do(t, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	rec := f.do(t, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/workflows/%s/remind", f.w.ID), nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
