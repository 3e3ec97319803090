// Package workflow implements the signing lifecycle: the
// Workflow -> Envelope -> Recipient -> Signature -> DocumentVersion
// hierarchy, the sequential signing gate, and submission handling.
package workflow

import (
	"time"

	"github.com/google/uuid"

	"sealflow/internal/signing"
)

// DeliveryType says what a recipient is in the workflow for.
type DeliveryType string

const (
	DeliveryNeedsToSign  DeliveryType = "needs_to_sign"
	DeliveryReceivesCopy DeliveryType = "receives_copy"
)

// Workflow is one dispatch of a template for signature.
type Workflow struct {
	ID                   uuid.UUID      `json:"id"`
	TemplateID           uuid.UUID      `json:"template_id"`
	CreatedBy            uuid.UUID      `json:"created_by"`
	SourceBlobRef        string         `json:"source_blob_ref"`
	ValidUntil           time.Time      `json:"valid_until"`
	ReminderIntervalDays int            `json:"reminder_interval_days"`
	Sequential           bool           `json:"sequential"`
	Status               WorkflowStatus `json:"status"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// Envelope is the dispatch/completion bookkeeping unit for a workflow's
// recipient batch. Exactly one envelope exists per workflow.
type Envelope struct {
	ID          uuid.UUID      `json:"id"`
	WorkflowID  uuid.UUID      `json:"workflow_id"`
	Status      EnvelopeStatus `json:"status"`
	SentAt      *time.Time     `json:"sent_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// Recipient is one participant in a workflow.
type Recipient struct {
	ID                  uuid.UUID    `json:"id"`
	EnvelopeID          uuid.UUID    `json:"envelope_id"`
	TemplateRecipientID uuid.UUID    `json:"template_recipient_id"`
	Role                string       `json:"role"`
	RolePriority        int          `json:"role_priority"`
	Delivery            DeliveryType `json:"delivery"`
	Name                string       `json:"name"`
	Email               string       `json:"email"`
	DeliveryStatus      string       `json:"delivery_status"`
	LastRemindedAt      *time.Time   `json:"last_reminded_at,omitempty"`
}

// SigningToken is the single-use credential authorizing one recipient's
// submission. It transitions used=false -> true exactly once.
type SigningToken struct {
	Token       string     `json:"token"`
	RecipientID uuid.UUID  `json:"recipient_id"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Used        bool       `json:"used"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
}

// Signature records one signing act against one logical signed document.
type Signature struct {
	ID               uuid.UUID  `json:"id"`
	RecipientID      uuid.UUID  `json:"recipient_id"`
	SignedDocumentID uuid.UUID  `json:"signed_document_id"`
	IsSigned         bool       `json:"is_signed"`
	SignedAt         *time.Time `json:"signed_at,omitempty"`
	LatestVersion    int        `json:"latest_version"`
}

// DocumentVersion is an immutable snapshot of assembled signed bytes.
// Versions for a signed document are strictly increasing from 1 and are
// never mutated, only superseded.
type DocumentVersion struct {
	ID               uuid.UUID `json:"id"`
	SignedDocumentID uuid.UUID `json:"signed_document_id"`
	Version          int       `json:"version"`
	BlobRef          string    `json:"blob_ref"`
	CreatedAt        time.Time `json:"created_at"`
}

// Snapshot is a consistent read of one workflow's signing state. The gate
// decision and the signature write must observe the same snapshot, so
// stores produce it inside the same unit of work that records signatures.
type Snapshot struct {
	Workflow   Workflow
	Envelope   Envelope
	Recipients []Recipient
	Signatures map[uuid.UUID]Signature // keyed by recipient id
}

// SignedBy reports whether the given recipient has signed in this snapshot.
func (s Snapshot) SignedBy(recipientID uuid.UUID) bool {
	sig, ok := s.Signatures[recipientID]
	return ok && sig.IsSigned
}

// Recipient returns the recipient row with the given id.
func (s Snapshot) Recipient(recipientID uuid.UUID) (Recipient, bool) {
	for _, r := range s.Recipients {
		if r.ID == recipientID {
			return r, true
		}
	}
	return Recipient{}, false
}

// SigningSession is the payload a recipient's signing page loads: who they
// are, the workflow they act in, and the fields they can fill. Common
// fields are carried explicitly alongside the recipient's own.
type SigningSession struct {
	Workflow     Workflow        `json:"workflow"`
	Recipient    Recipient       `json:"recipient"`
	Fields       []signing.Field `json:"fields"`
	CommonFields []signing.Field `json:"common_fields"`
}
