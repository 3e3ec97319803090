package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sealflow/internal/signing"
)

// Store defines the persistence operations the signing core needs. The
// postgres implementation lives in internal/database; MemStore backs
// tests and local runs.
type Store interface {
	// Tx runs fn against a store view whose operations form one atomic
	// unit of work. The sequential-gate check and the signature write
	// happen inside the same Tx so the gate never reads a stale or
	// partially-updated snapshot.
	Tx(ctx context.Context, fn func(Store) error) error

	// Workflow operations
	GetWorkflow(ctx context.Context, id uuid.UUID) (Workflow, error)
	ListActiveWorkflows(ctx context.Context) ([]Workflow, error)
	UpdateWorkflowStatus(ctx context.Context, id uuid.UUID, status WorkflowStatus) error

	// Envelope operations
	UpdateEnvelopeStatus(ctx context.Context, id uuid.UUID, status EnvelopeStatus, completedAt *time.Time) error

	// Snapshot reads
	GetSnapshot(ctx context.Context, workflowID uuid.UUID) (Snapshot, error)
	SnapshotForRecipient(ctx context.Context, recipientID uuid.UUID) (Snapshot, error)

	// Token operations
	GetToken(ctx context.Context, token string) (SigningToken, error)
	// ConsumeToken atomically flips used=false -> true. Exactly one
	// caller succeeds per token regardless of concurrency; later calls
	// get ErrTokenUsed. Expired tokens are rejected with ErrTokenExpired
	// and stay unconsumed.
	ConsumeToken(ctx context.Context, token string, now time.Time) (SigningToken, error)

	// Signature and version operations
	GetSignature(ctx context.Context, recipientID uuid.UUID) (Signature, error)
	SaveSignature(ctx context.Context, sig Signature) error
	// AppendVersion creates the next version for the signed document:
	// prior maximum plus one, starting at 1.
	AppendVersion(ctx context.Context, signedDocumentID uuid.UUID, blobRef string, now time.Time) (DocumentVersion, error)
	GetLatestVersion(ctx context.Context, signedDocumentID uuid.UUID) (DocumentVersion, error)

	// Field placements for a workflow's document.
	ListFields(ctx context.Context, workflowID uuid.UUID) ([]signing.Field, error)

	// Reminder bookkeeping
	SetLastReminded(ctx context.Context, recipientID uuid.UUID, at time.Time) error
}
