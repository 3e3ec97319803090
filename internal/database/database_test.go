package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"sealflow/internal/signing"
	"sealflow/internal/workflow"
)

var testStore *Store

// mustStartPostgresContainer starts a postgres container and returns a
// teardown function plus the connection string.
func mustStartPostgresContainer() (func(context.Context, ...testcontainers.TerminateOption) error, string, error) {
	var (
		dbName = "sealflow_test"
		dbPwd  = "password"
		dbUser = "user"
	)

	dbContainer, err := postgres.Run(
		context.Background(),
		"postgres:latest",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPwd),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	host, err := dbContainer.Host(context.Background())
	if err != nil {
		return dbContainer.Terminate, "", fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := dbContainer.MappedPort(context.Background(), "5432/tcp")
	if err != nil {
		return dbContainer.Terminate, "", fmt.Errorf("failed to get container mapped port: %w", err)
	}

	connStr := fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable", dbUser, dbPwd, host, port.Port(), dbName)

	return dbContainer.Terminate, connStr, nil
}

func TestMain(m *testing.M) {
	teardown, connStr, err := mustStartPostgresContainer()
	if err != nil {
		log.Fatalf("could not start postgres container for tests: %v", err)
	}

	testStore, err = New(connStr)
	if err != nil {
		log.Fatalf("could not connect to test database: %v", err)
	}
	if err := testStore.RunMigrations("file://../../migrations"); err != nil {
		log.Fatalf("could not run migrations: %v", err)
	}

	exitCode := m.Run()

	testStore.Close()
	if teardown != nil {
		if err := teardown(context.Background()); err != nil {
			log.Fatalf("could not teardown postgres container: %v", err)
		}
	}
	os.Exit(exitCode)
}

func TestHealth(t *testing.T) {
	stats := testStore.Health()
	require.Equal(t, "up", stats["status"], "health error: %s", stats["error"])
}

// seedWorkflow inserts a full workflow fixture and returns it.
func seedWorkflow(t *testing.T, sequential bool, signerCount int) (workflow.Workflow, workflow.Envelope, []workflow.Recipient, []workflow.SigningToken) {
	t.Helper()
	ctx := context.Background()

	w := workflow.Workflow{
		ID:                   uuid.New(),
		TemplateID:           uuid.New(),
		CreatedBy:            uuid.New(),
		SourceBlobRef:        "blobs/source.pdf",
		ValidUntil:           time.Now().Add(48 * time.Hour),
		ReminderIntervalDays: 1,
		Sequential:           sequential,
		Status:               workflow.WorkflowInProgress,
	}
	now := time.Now()
	e := workflow.Envelope{ID: uuid.New(), WorkflowID: w.ID, Status: workflow.EnvelopeInProgress, SentAt: &now}

	var rs []workflow.Recipient
	var ts []workflow.SigningToken
	for i := 0; i < signerCount; i++ {
		r := workflow.Recipient{
			ID:                  uuid.New(),
			EnvelopeID:          e.ID,
			TemplateRecipientID: uuid.New(),
			Role:                fmt.Sprintf("signer-%d", i+1),
			RolePriority:        i + 1,
			Delivery:            workflow.DeliveryNeedsToSign,
			Name:                fmt.Sprintf("Recipient %d", i+1),
			Email:               fmt.Sprintf("r%d@example.com", i+1),
			DeliveryStatus:      "pending",
		}
		rs = append(rs, r)
		ts = append(ts, workflow.SigningToken{
			Token:       uuid.NewString(),
			RecipientID: r.ID,
			ExpiresAt:   time.Now().Add(24 * time.Hour),
		})
	}

	fields := []signing.Field{{
		ID:       uuid.New(),
		Type:     signing.FieldSignature,
		Position: signing.Position{X: 100, Y: 200, Page: 1, Width: 150, Height: 60},
		Required: true,
		Scope:    signing.ForRecipient(rs[0].ID),
	}, {
		ID:       uuid.New(),
		Type:     signing.FieldDate,
		Position: signing.Position{X: 10, Y: 20, Page: 1, Width: 100, Height: 32},
		Scope:    signing.CommonScope(),
		GroupID:  "signing-date",
	}}

	require.NoError(t, testStore.CreateWorkflow(ctx, w, e, rs, ts, fields))
	return w, e, rs, ts
}

func TestCreateWorkflowAndSnapshot(t *testing.T) {
	w, e, rs, _ := seedWorkflow(t, true, 2)
	ctx := context.Background()

	snap, err := testStore.GetSnapshot(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, w.ID, snap.Workflow.ID)
	assert.Equal(t, e.ID, snap.Envelope.ID)
	require.Len(t, snap.Recipients, 2)
	assert.Equal(t, rs[0].ID, snap.Recipients[0].ID, "snapshot recipients ordered by priority")
	assert.Empty(t, snap.Signatures)

	byRecipient, err := testStore.SnapshotForRecipient(ctx, rs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, w.ID, byRecipient.Workflow.ID)
}

func TestListFieldsScopes(t *testing.T) {
	w, _, rs, _ := seedWorkflow(t, false, 1)

	fields, err := testStore.ListFields(context.Background(), w.ID)
	require.NoError(t, err)
	require.Len(t, fields, 2)

	var common, owned int
	for _, f := range fields {
		if f.Scope.IsCommon() {
			common++
			assert.Equal(t, "signing-date", f.GroupID)
		} else {
			owned++
			id, ok := f.Scope.RecipientID()
			require.True(t, ok)
			assert.Equal(t, rs[0].ID, id)
		}
	}
	assert.Equal(t, 1, common)
	assert.Equal(t, 1, owned)
}

func TestConsumeTokenSingleUse(t *testing.T) {
	_, _, rs, ts := seedWorkflow(t, false, 1)
	ctx := context.Background()
	now := time.Now()

	tok, err := testStore.ConsumeToken(ctx, ts[0].Token, now)
	require.NoError(t, err)
	assert.Equal(t, rs[0].ID, tok.RecipientID)
	assert.True(t, tok.Used)

	_, err = testStore.ConsumeToken(ctx, ts[0].Token, now)
	assert.ErrorIs(t, err, workflow.ErrTokenUsed)

	_, err = testStore.ConsumeToken(ctx, "no-such-token", now)
	assert.ErrorIs(t, err, workflow.ErrTokenInvalid)
}

func TestConsumeTokenExpired(t *testing.T) {
	_, _, _, ts := seedWorkflow(t, false, 1)

	_, err := testStore.ConsumeToken(context.Background(), ts[0].Token, time.Now().Add(48*time.Hour))
	assert.ErrorIs(t, err, workflow.ErrTokenExpired)

	// An expired rejection does not consume the token.
	tok, err := testStore.GetToken(context.Background(), ts[0].Token)
	require.NoError(t, err)
	assert.False(t, tok.Used)
}

func TestAppendVersionMonotonic(t *testing.T) {
	ctx := context.Background()
	docID := uuid.New()

	for want := 1; want <= 3; want++ {
		v, err := testStore.AppendVersion(ctx, docID, fmt.Sprintf("blobs/v%d", want), time.Now())
		require.NoError(t, err)
		assert.Equal(t, want, v.Version)
	}

	latest, err := testStore.GetLatestVersion(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Version)
	assert.Equal(t, "blobs/v3", latest.BlobRef)
}

func TestSaveSignatureUpsert(t *testing.T) {
	_, _, rs, _ := seedWorkflow(t, false, 1)
	ctx := context.Background()

	sig := workflow.Signature{
		ID:               uuid.New(),
		RecipientID:      rs[0].ID,
		SignedDocumentID: uuid.New(),
	}
	require.NoError(t, testStore.SaveSignature(ctx, sig))

	now := time.Now()
	sig.IsSigned = true
	sig.SignedAt = &now
	sig.LatestVersion = 1
	require.NoError(t, testStore.SaveSignature(ctx, sig))

	got, err := testStore.GetSignature(ctx, rs[0].ID)
	require.NoError(t, err)
	assert.True(t, got.IsSigned)
	assert.Equal(t, 1, got.LatestVersion)
	assert.Equal(t, sig.SignedDocumentID, got.SignedDocumentID)
}

func TestTxRollbackLeavesTokenUnused(t *testing.T) {
	_, _, _, ts := seedWorkflow(t, false, 1)
	ctx := context.Background()

	err := testStore.Tx(ctx, func(tx workflow.Store) error {
		if _, err := tx.ConsumeToken(ctx, ts[0].Token, time.Now()); err != nil {
			return err
		}
		return fmt.Errorf("forced rollback")
	})
	require.Error(t, err)

	tok, err := testStore.GetToken(ctx, ts[0].Token)
	require.NoError(t, err)
	assert.False(t, tok.Used, "rollback must release the token")
}

func TestUpdateStatuses(t *testing.T) {
	w, e, _, _ := seedWorkflow(t, false, 1)
	ctx := context.Background()

	completedAt := time.Now()
	require.NoError(t, testStore.UpdateEnvelopeStatus(ctx, e.ID, workflow.EnvelopeCompleted, &completedAt))
	require.NoError(t, testStore.UpdateWorkflowStatus(ctx, w.ID, workflow.WorkflowCompleted))

	snap, err := testStore.GetSnapshot(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.WorkflowCompleted, snap.Workflow.Status)
	assert.Equal(t, workflow.EnvelopeCompleted, snap.Envelope.Status)
	require.NotNil(t, snap.Envelope.CompletedAt)

	assert.ErrorIs(t, testStore.UpdateWorkflowStatus(ctx, uuid.New(), workflow.WorkflowCancelled), workflow.ErrNotFound)
}

func TestSetLastReminded(t *testing.T) {
	w, _, rs, _ := seedWorkflow(t, false, 1)
	ctx := context.Background()

	at := time.Now()
	require.NoError(t, testStore.SetLastReminded(ctx, rs[0].ID, at))

	snap, err := testStore.GetSnapshot(ctx, w.ID)
	require.NoError(t, err)
	require.NotNil(t, snap.Recipients[0].LastRemindedAt)
}
