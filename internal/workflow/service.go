package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sealflow/internal/signing"
	"sealflow/internal/storage"
)

// Submission outcome statuses, mirrored on the wire.
const (
	OutcomeSuccess = "success"
	OutcomeInfo    = "info"
	OutcomeError   = "error"
)

// SubmitRequest carries one recipient's signing submission: the single-use
// token, the recipient the client believes it acts for, and the assembled
// document bytes.
type SubmitRequest struct {
	Token       string
	RecipientID uuid.UUID
	Document    []byte
}

// SubmitResult is the tri-state submission outcome. Info means the
// submission was an idempotent no-op (already signed).
type SubmitResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Version int    `json:"version,omitempty"`
}

// PreviewRequest asks the server-side engine to assemble the current
// field values without recording anything.
type PreviewRequest struct {
	Token    string
	OverlayW float64
	OverlayH float64
	Values   map[uuid.UUID]string
}

// Service drives the signing state machine. All writes flow through
// Store.Tx units so the gate decision, the token consumption and the
// version append commit or roll back together.
type Service struct {
	store     Store
	blobs     storage.BlobStore
	assembler *signing.Assembler
	logger    *zap.Logger
	now       func() time.Time
}

// NewService wires the state machine to its collaborators.
func NewService(store Store, blobs storage.BlobStore, assembler *signing.Assembler, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		blobs:     blobs,
		assembler: assembler,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the service clock. Tests drive expiry through it.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// SubmitSignature validates the token and signing order, persists the
// assembled bytes as a new document version, records the signature, and
// advances envelope/workflow status. The token is consumed in the same
// atomic unit as the signature write: a gate rejection rolls everything
// back and leaves the token usable for a later retry.
func (s *Service) SubmitSignature(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	now := s.now()

	tok, err := s.store.GetToken(ctx, req.Token)
	if err != nil {
		return SubmitResult{}, err
	}
	if tok.RecipientID != req.RecipientID {
		return SubmitResult{}, ErrTokenInvalid
	}

	// Bytes go to the blob store before any state changes. A put failure
	// is fatal for this submission only; nothing is recorded, so there is
	// never a signature without a confirmed stored version.
	blobRef, err := s.blobs.Put(ctx, req.Document)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %v", ErrBlobUnavailable, err)
	}

	var version DocumentVersion
	err = s.store.Tx(ctx, func(tx Store) error {
		if _, err := tx.ConsumeToken(ctx, req.Token, now); err != nil {
			return err
		}

		snap, err := tx.SnapshotForRecipient(ctx, req.RecipientID)
		if err != nil {
			return err
		}
		if st := EffectiveStatusOf(snap, now); st == WorkflowExpired || st == WorkflowCancelled {
			return ErrWorkflowClosed
		}
		if err := CanSign(snap, req.RecipientID); err != nil {
			return err
		}

		sig, err := tx.GetSignature(ctx, req.RecipientID)
		if errors.Is(err, ErrNotFound) {
			sig = Signature{
				ID:               uuid.New(),
				RecipientID:      req.RecipientID,
				SignedDocumentID: uuid.New(),
			}
		} else if err != nil {
			return err
		}

		version, err = tx.AppendVersion(ctx, sig.SignedDocumentID, blobRef, now)
		if err != nil {
			return err
		}

		signedAt := now
		sig.IsSigned = true
		sig.SignedAt = &signedAt
		sig.LatestVersion = version.Version
		if err := tx.SaveSignature(ctx, sig); err != nil {
			return err
		}

		// Re-evaluate completion against the snapshot this unit of work
		// already holds, plus the signature it just wrote.
		snap.Signatures[req.RecipientID] = sig
		if AllSigned(snap) {
			completedAt := now
			if err := tx.UpdateEnvelopeStatus(ctx, snap.Envelope.ID, EnvelopeCompleted, &completedAt); err != nil {
				return err
			}
			if err := tx.UpdateWorkflowStatus(ctx, snap.Workflow.ID, WorkflowCompleted); err != nil {
				return err
			}
		}
		return nil
	})

	switch {
	case err == nil:
		s.logger.Info("signature recorded",
			zap.String("recipient_id", req.RecipientID.String()),
			zap.Int("version", version.Version))
		return SubmitResult{Status: OutcomeSuccess, Message: "document signed", Version: version.Version}, nil

	case errors.Is(err, ErrAlreadySigned):
		return SubmitResult{Status: OutcomeInfo, Message: "recipient has already signed"}, nil

	case errors.Is(err, ErrTokenUsed):
		// A consumed token from a prior successful submission is the
		// idempotent resubmit case, not a failure.
		if sig, sigErr := s.store.GetSignature(ctx, req.RecipientID); sigErr == nil && sig.IsSigned {
			return SubmitResult{Status: OutcomeInfo, Message: "recipient has already signed"}, nil
		}
		return SubmitResult{}, err

	default:
		return SubmitResult{}, err
	}
}

// Session loads the signing page payload for a token: the workflow, the
// acting recipient, and the fields visible to them with common fields
// carried explicitly.
func (s *Service) Session(ctx context.Context, token string) (SigningSession, error) {
	tok, err := s.store.GetToken(ctx, token)
	if err != nil {
		return SigningSession{}, err
	}
	if s.now().After(tok.ExpiresAt) {
		return SigningSession{}, ErrTokenExpired
	}

	snap, err := s.store.SnapshotForRecipient(ctx, tok.RecipientID)
	if err != nil {
		return SigningSession{}, err
	}
	recipient, ok := snap.Recipient(tok.RecipientID)
	if !ok {
		return SigningSession{}, ErrNotFound
	}

	all, err := s.store.ListFields(ctx, snap.Workflow.ID)
	if err != nil {
		return SigningSession{}, err
	}
	session := SigningSession{Workflow: snap.Workflow, Recipient: recipient}
	for _, f := range all {
		if f.Scope.IsCommon() {
			session.CommonFields = append(session.CommonFields, f)
		} else if f.Scope.AppliesTo(recipient.ID) {
			session.Fields = append(session.Fields, f)
		}
	}
	return session, nil
}

// Preview runs the assembly engine server-side over the workflow's source
// document and the supplied values. Nothing is recorded.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (signing.AssembleResult, error) {
	session, err := s.Session(ctx, req.Token)
	if err != nil {
		return signing.AssembleResult{}, err
	}
	source, err := s.blobs.Get(ctx, session.Workflow.SourceBlobRef)
	if err != nil {
		return signing.AssembleResult{}, fmt.Errorf("%w: %v", ErrBlobUnavailable, err)
	}
	return s.assembler.Assemble(signing.AssembleInput{
		Source:       source,
		OverlayW:     req.OverlayW,
		OverlayH:     req.OverlayH,
		RecipientID:  session.Recipient.ID,
		Fields:       session.Fields,
		CommonFields: session.CommonFields,
		Values:       req.Values,
	})
}

// Progress projects completion metrics for a workflow.
func (s *Service) Progress(ctx context.Context, workflowID uuid.UUID) (Progress, error) {
	snap, err := s.store.GetSnapshot(ctx, workflowID)
	if err != nil {
		return Progress{}, err
	}
	return ProjectProgress(snap), nil
}

// Status returns both the stored, transition-driven status and the
// effective status derived at read time.
func (s *Service) Status(ctx context.Context, workflowID uuid.UUID) (stored, effective WorkflowStatus, err error) {
	snap, err := s.store.GetSnapshot(ctx, workflowID)
	if err != nil {
		return "", "", err
	}
	return snap.Workflow.Status, EffectiveStatusOf(snap, s.now()), nil
}

// Cancel applies the external cancellation transition. Completed
// workflows stay completed.
func (s *Service) Cancel(ctx context.Context, workflowID uuid.UUID) error {
	return s.store.Tx(ctx, func(tx Store) error {
		w, err := tx.GetWorkflow(ctx, workflowID)
		if err != nil {
			return err
		}
		if w.Status == WorkflowCompleted {
			return ErrWorkflowClosed
		}
		if w.Status == WorkflowCancelled {
			return nil
		}
		return tx.UpdateWorkflowStatus(ctx, workflowID, WorkflowCancelled)
	})
}

// LatestDocument fetches the newest assembled bytes for a signed document.
func (s *Service) LatestDocument(ctx context.Context, signedDocumentID uuid.UUID) ([]byte, DocumentVersion, error) {
	v, err := s.store.GetLatestVersion(ctx, signedDocumentID)
	if err != nil {
		return nil, DocumentVersion{}, err
	}
	data, err := s.blobs.Get(ctx, v.BlobRef)
	if err != nil {
		return nil, DocumentVersion{}, fmt.Errorf("%w: %v", ErrBlobUnavailable, err)
	}
	return data, v, nil
}

// ExpireOverdue marks workflows past their deadline as expired, envelope
// included. This is the stored transition the scheduler drives; the
// read-time derivation in EffectiveStatus stays independent of it.
func (s *Service) ExpireOverdue(ctx context.Context) error {
	now := s.now()
	active, err := s.store.ListActiveWorkflows(ctx)
	if err != nil {
		return err
	}
	for _, w := range active {
		if !now.After(w.ValidUntil) {
			continue
		}
		wf := w
		err := s.store.Tx(ctx, func(tx Store) error {
			snap, err := tx.GetSnapshot(ctx, wf.ID)
			if err != nil {
				return err
			}
			if snap.Workflow.Status.Terminal() {
				return nil
			}
			if err := tx.UpdateEnvelopeStatus(ctx, snap.Envelope.ID, EnvelopeExpired, nil); err != nil {
				return err
			}
			return tx.UpdateWorkflowStatus(ctx, wf.ID, WorkflowExpired)
		})
		if err != nil {
			s.logger.Error("failed to expire workflow",
				zap.String("workflow_id", wf.ID.String()), zap.Error(err))
		}
	}
	return nil
}
