package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sealflow/internal/signing"
	"sealflow/internal/workflow"
)

// GetWorkflow retrieves one workflow by id.
func (s *Store) GetWorkflow(ctx context.Context, id uuid.UUID) (workflow.Workflow, error) {
	query := `
		SELECT id, template_id, created_by, source_blob_ref, valid_until,
		       reminder_interval_days, sequential, status, created_at, updated_at
		FROM workflows WHERE id = $1`
	return s.scanWorkflow(s.q.QueryRowContext(ctx, query, id))
}

// ListActiveWorkflows returns workflows not yet in a terminal stored state.
func (s *Store) ListActiveWorkflows(ctx context.Context) ([]workflow.Workflow, error) {
	query := `
		SELECT id, template_id, created_by, source_blob_ref, valid_until,
		       reminder_interval_days, sequential, status, created_at, updated_at
		FROM workflows
		WHERE status NOT IN ('completed', 'expired', 'cancelled')
		ORDER BY created_at ASC`

	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active workflows: %w", err)
	}
	defer rows.Close()

	var out []workflow.Workflow
	for rows.Next() {
		w, err := s.scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// UpdateWorkflowStatus applies a stored status transition.
func (s *Store) UpdateWorkflowStatus(ctx context.Context, id uuid.UUID, status workflow.WorkflowStatus) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE workflows SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update workflow status: %w", err)
	}
	return requireRow(result, workflow.ErrNotFound)
}

// UpdateEnvelopeStatus applies an envelope status transition.
func (s *Store) UpdateEnvelopeStatus(ctx context.Context, id uuid.UUID, status workflow.EnvelopeStatus, completedAt *time.Time) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE workflow_envelopes SET status = $1, completed_at = COALESCE($2, completed_at) WHERE id = $3`,
		status, completedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update envelope status: %w", err)
	}
	return requireRow(result, workflow.ErrNotFound)
}

// GetSnapshot reads a workflow, its envelope, recipients and signatures.
// Inside a Tx this is the consistent view the gate check runs against.
func (s *Store) GetSnapshot(ctx context.Context, workflowID uuid.UUID) (workflow.Snapshot, error) {
	w, err := s.GetWorkflow(ctx, workflowID)
	if err != nil {
		return workflow.Snapshot{}, err
	}

	var e workflow.Envelope
	var sentAt, completedAt sql.NullTime
	err = s.q.QueryRowContext(ctx,
		`SELECT id, workflow_id, status, sent_at, completed_at
		 FROM workflow_envelopes WHERE workflow_id = $1`, workflowID).
		Scan(&e.ID, &e.WorkflowID, &e.Status, &sentAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Snapshot{}, fmt.Errorf("envelope for workflow %s: %w", workflowID, workflow.ErrNotFound)
	}
	if err != nil {
		return workflow.Snapshot{}, fmt.Errorf("failed to get envelope: %w", err)
	}
	e.SentAt = nullTimePtr(sentAt)
	e.CompletedAt = nullTimePtr(completedAt)

	snap := workflow.Snapshot{
		Workflow:   w,
		Envelope:   e,
		Signatures: make(map[uuid.UUID]workflow.Signature),
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT r.id, r.envelope_id, r.template_recipient_id, r.role, r.role_priority,
		       r.delivery, r.name, r.email, r.delivery_status, r.last_reminded_at,
		       g.id, g.signed_document_id, g.is_signed, g.signed_at, g.latest_version
		FROM workflow_recipients r
		LEFT JOIN recipient_signatures g ON g.recipient_id = r.id
		WHERE r.envelope_id = $1
		ORDER BY r.role_priority ASC, r.id ASC`, e.ID)
	if err != nil {
		return workflow.Snapshot{}, fmt.Errorf("failed to get recipients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r             workflow.Recipient
			lastReminded  sql.NullTime
			sigID         uuid.NullUUID
			sigDocID      uuid.NullUUID
			sigSigned     sql.NullBool
			sigSignedAt   sql.NullTime
			latestVersion sql.NullInt64
		)
		err := rows.Scan(
			&r.ID, &r.EnvelopeID, &r.TemplateRecipientID, &r.Role, &r.RolePriority,
			&r.Delivery, &r.Name, &r.Email, &r.DeliveryStatus, &lastReminded,
			&sigID, &sigDocID, &sigSigned, &sigSignedAt, &latestVersion,
		)
		if err != nil {
			return workflow.Snapshot{}, fmt.Errorf("failed to scan recipient: %w", err)
		}
		r.LastRemindedAt = nullTimePtr(lastReminded)
		snap.Recipients = append(snap.Recipients, r)

		if sigID.Valid {
			snap.Signatures[r.ID] = workflow.Signature{
				ID:               sigID.UUID,
				RecipientID:      r.ID,
				SignedDocumentID: sigDocID.UUID,
				IsSigned:         sigSigned.Bool,
				SignedAt:         nullTimePtr(sigSignedAt),
				LatestVersion:    int(latestVersion.Int64),
			}
		}
	}
	return snap, rows.Err()
}

// SnapshotForRecipient resolves the recipient's workflow and snapshots it.
func (s *Store) SnapshotForRecipient(ctx context.Context, recipientID uuid.UUID) (workflow.Snapshot, error) {
	var workflowID uuid.UUID
	err := s.q.QueryRowContext(ctx, `
		SELECT e.workflow_id
		FROM workflow_recipients r
		JOIN workflow_envelopes e ON r.envelope_id = e.id
		WHERE r.id = $1`, recipientID).Scan(&workflowID)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Snapshot{}, fmt.Errorf("recipient %s: %w", recipientID, workflow.ErrNotFound)
	}
	if err != nil {
		return workflow.Snapshot{}, fmt.Errorf("failed to resolve recipient workflow: %w", err)
	}
	return s.GetSnapshot(ctx, workflowID)
}

// GetToken looks a token up without consuming it.
func (s *Store) GetToken(ctx context.Context, token string) (workflow.SigningToken, error) {
	var t workflow.SigningToken
	var usedAt sql.NullTime
	err := s.q.QueryRowContext(ctx,
		`SELECT token, recipient_id, expires_at, used, used_at FROM signing_tokens WHERE token = $1`,
		token).Scan(&t.Token, &t.RecipientID, &t.ExpiresAt, &t.Used, &usedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.SigningToken{}, workflow.ErrTokenInvalid
	}
	if err != nil {
		return workflow.SigningToken{}, fmt.Errorf("failed to get token: %w", err)
	}
	t.UsedAt = nullTimePtr(usedAt)
	return t, nil
}

// ConsumeToken atomically flips used=false -> true. The conditional
// UPDATE is the single serialization point preventing double submission:
// concurrent callers race on the row and exactly one sees it unused.
func (s *Store) ConsumeToken(ctx context.Context, token string, now time.Time) (workflow.SigningToken, error) {
	var t workflow.SigningToken
	err := s.q.QueryRowContext(ctx, `
		UPDATE signing_tokens
		SET used = true, used_at = $2
		WHERE token = $1 AND NOT used AND expires_at > $2
		RETURNING token, recipient_id, expires_at, used`, token, now).
		Scan(&t.Token, &t.RecipientID, &t.ExpiresAt, &t.Used)
	if err == nil {
		usedAt := now
		t.UsedAt = &usedAt
		return t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return workflow.SigningToken{}, fmt.Errorf("failed to consume token: %w", err)
	}

	// No row updated: classify why.
	existing, lookupErr := s.GetToken(ctx, token)
	if lookupErr != nil {
		return workflow.SigningToken{}, lookupErr
	}
	if existing.Used {
		return workflow.SigningToken{}, workflow.ErrTokenUsed
	}
	return workflow.SigningToken{}, workflow.ErrTokenExpired
}

// GetSignature retrieves the signature row for a recipient.
func (s *Store) GetSignature(ctx context.Context, recipientID uuid.UUID) (workflow.Signature, error) {
	var sig workflow.Signature
	var signedAt sql.NullTime
	err := s.q.QueryRowContext(ctx, `
		SELECT id, recipient_id, signed_document_id, is_signed, signed_at, latest_version
		FROM recipient_signatures WHERE recipient_id = $1`, recipientID).
		Scan(&sig.ID, &sig.RecipientID, &sig.SignedDocumentID, &sig.IsSigned, &signedAt, &sig.LatestVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Signature{}, fmt.Errorf("signature for recipient %s: %w", recipientID, workflow.ErrNotFound)
	}
	if err != nil {
		return workflow.Signature{}, fmt.Errorf("failed to get signature: %w", err)
	}
	sig.SignedAt = nullTimePtr(signedAt)
	return sig, nil
}

// SaveSignature upserts the signature row for a recipient.
func (s *Store) SaveSignature(ctx context.Context, sig workflow.Signature) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO recipient_signatures (id, recipient_id, signed_document_id, is_signed, signed_at, latest_version)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (recipient_id)
		DO UPDATE SET is_signed = EXCLUDED.is_signed,
		              signed_at = EXCLUDED.signed_at,
		              latest_version = EXCLUDED.latest_version`,
		sig.ID, sig.RecipientID, sig.SignedDocumentID, sig.IsSigned, sig.SignedAt, sig.LatestVersion)
	if err != nil {
		return fmt.Errorf("failed to save signature: %w", err)
	}
	return nil
}

// AppendVersion inserts the next version for a signed document: prior
// maximum plus one, starting at 1. The unique constraint on
// (signed_document_id, version) rejects concurrent duplicates.
func (s *Store) AppendVersion(ctx context.Context, signedDocumentID uuid.UUID, blobRef string, now time.Time) (workflow.DocumentVersion, error) {
	v := workflow.DocumentVersion{
		ID:               uuid.New(),
		SignedDocumentID: signedDocumentID,
		BlobRef:          blobRef,
		CreatedAt:        now,
	}
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO signed_document_versions (id, signed_document_id, version, blob_ref, created_at)
		VALUES ($1, $2,
		        (SELECT COALESCE(MAX(version), 0) + 1 FROM signed_document_versions WHERE signed_document_id = $2),
		        $3, $4)
		RETURNING version`,
		v.ID, signedDocumentID, blobRef, now).Scan(&v.Version)
	if err != nil {
		return workflow.DocumentVersion{}, fmt.Errorf("failed to append document version: %w", err)
	}
	return v, nil
}

// GetLatestVersion returns the newest version row for a signed document.
func (s *Store) GetLatestVersion(ctx context.Context, signedDocumentID uuid.UUID) (workflow.DocumentVersion, error) {
	var v workflow.DocumentVersion
	err := s.q.QueryRowContext(ctx, `
		SELECT id, signed_document_id, version, blob_ref, created_at
		FROM signed_document_versions
		WHERE signed_document_id = $1
		ORDER BY version DESC LIMIT 1`, signedDocumentID).
		Scan(&v.ID, &v.SignedDocumentID, &v.Version, &v.BlobRef, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.DocumentVersion{}, fmt.Errorf("versions for document %s: %w", signedDocumentID, workflow.ErrNotFound)
	}
	if err != nil {
		return workflow.DocumentVersion{}, fmt.Errorf("failed to get latest version: %w", err)
	}
	return v, nil
}

// ListFields loads the field placements for a workflow's document.
func (s *Store) ListFields(ctx context.Context, workflowID uuid.UUID) ([]signing.Field, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, field_type, position_data, required, recipient_id, group_id
		FROM field_placements WHERE workflow_id = $1
		ORDER BY id ASC`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fields: %w", err)
	}
	defer rows.Close()

	var fields []signing.Field
	for rows.Next() {
		var (
			f           signing.Field
			positionRaw string
			recipientID uuid.NullUUID
		)
		if err := rows.Scan(&f.ID, &f.Type, &positionRaw, &f.Required, &recipientID, &f.GroupID); err != nil {
			return nil, fmt.Errorf("failed to scan field: %w", err)
		}
		f.Position, err = signing.ParsePosition(positionRaw)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.ID, err)
		}
		if recipientID.Valid {
			f.Scope = signing.ForRecipient(recipientID.UUID)
		} else {
			f.Scope = signing.CommonScope()
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

// SetLastReminded records when a recipient was last nudged.
func (s *Store) SetLastReminded(ctx context.Context, recipientID uuid.UUID, at time.Time) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE workflow_recipients SET last_reminded_at = $1 WHERE id = $2`, at, recipientID)
	if err != nil {
		return fmt.Errorf("failed to set last reminded: %w", err)
	}
	return requireRow(result, workflow.ErrNotFound)
}

// CreateWorkflow inserts a dispatched workflow with its envelope,
// recipients, tokens and field placements in one transaction. The
// dispatch surface (template resolution, link mailing) lives elsewhere;
// this is the persistence it calls into.
func (s *Store) CreateWorkflow(ctx context.Context, w workflow.Workflow, e workflow.Envelope, rs []workflow.Recipient, ts []workflow.SigningToken, fs []signing.Field) error {
	return s.Tx(ctx, func(txStore workflow.Store) error {
		tx := txStore.(*Store)

		_, err := tx.q.ExecContext(ctx, `
			INSERT INTO workflows (id, template_id, created_by, source_blob_ref, valid_until,
				reminder_interval_days, sequential, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())`,
			w.ID, w.TemplateID, w.CreatedBy, w.SourceBlobRef, w.ValidUntil,
			w.ReminderIntervalDays, w.Sequential, w.Status)
		if err != nil {
			return fmt.Errorf("failed to create workflow: %w", err)
		}

		_, err = tx.q.ExecContext(ctx, `
			INSERT INTO workflow_envelopes (id, workflow_id, status, sent_at)
			VALUES ($1, $2, $3, $4)`,
			e.ID, w.ID, e.Status, e.SentAt)
		if err != nil {
			return fmt.Errorf("failed to create envelope: %w", err)
		}

		for _, r := range rs {
			_, err = tx.q.ExecContext(ctx, `
				INSERT INTO workflow_recipients (id, envelope_id, template_recipient_id, role,
					role_priority, delivery, name, email, delivery_status)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				r.ID, e.ID, r.TemplateRecipientID, r.Role, r.RolePriority,
				r.Delivery, r.Name, r.Email, r.DeliveryStatus)
			if err != nil {
				return fmt.Errorf("failed to create recipient %s: %w", r.ID, err)
			}
		}

		for _, t := range ts {
			_, err = tx.q.ExecContext(ctx, `
				INSERT INTO signing_tokens (token, recipient_id, expires_at, used)
				VALUES ($1, $2, $3, false)`,
				t.Token, t.RecipientID, t.ExpiresAt)
			if err != nil {
				return fmt.Errorf("failed to create token for recipient %s: %w", t.RecipientID, err)
			}
		}

		for _, f := range fs {
			var recipientID uuid.NullUUID
			if id, ok := f.Scope.RecipientID(); ok {
				recipientID = uuid.NullUUID{UUID: id, Valid: true}
			}
			_, err = tx.q.ExecContext(ctx, `
				INSERT INTO field_placements (id, workflow_id, field_type, position_data, required, recipient_id, group_id)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				f.ID, w.ID, f.Type, signing.WirePosition(f.Position), f.Required, recipientID, f.GroupID)
			if err != nil {
				return fmt.Errorf("failed to create field %s: %w", f.ID, err)
			}
		}
		return nil
	})
}

func requireRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// scanner lets scanWorkflow work with both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanWorkflow(row scanner) (workflow.Workflow, error) {
	var w workflow.Workflow
	err := row.Scan(
		&w.ID, &w.TemplateID, &w.CreatedBy, &w.SourceBlobRef, &w.ValidUntil,
		&w.ReminderIntervalDays, &w.Sequential, &w.Status, &w.CreatedAt, &w.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Workflow{}, workflow.ErrNotFound
	}
	if err != nil {
		return workflow.Workflow{}, fmt.Errorf("failed to scan workflow: %w", err)
	}
	return w, nil
}
