package workflow

import "errors"

// Submission error taxonomy. Token errors and ordering errors are
// distinguishable so clients know whether waiting can help: an
// out-of-turn submission becomes valid once the gating recipient signs,
// a consumed or expired token never does.
var (
	// ErrTokenInvalid is returned for unknown tokens or tokens bound to a
	// different recipient.
	ErrTokenInvalid = errors.New("signing token invalid")

	// ErrTokenUsed is returned when a token has already been consumed.
	ErrTokenUsed = errors.New("signing token already used")

	// ErrTokenExpired is returned when a token is past its expiry.
	ErrTokenExpired = errors.New("signing token expired")

	// ErrOutOfTurn is returned when sequential signing gates the
	// recipient behind others who have not signed yet. Retryable by
	// waiting.
	ErrOutOfTurn = errors.New("recipient cannot sign yet: earlier recipients pending")

	// ErrAlreadySigned marks the idempotent no-op: the recipient has
	// already signed. Surfaced to callers as an "info" outcome.
	ErrAlreadySigned = errors.New("recipient already signed")

	// ErrEnvelopeClosed is returned when the envelope is not open for
	// signatures (draft, completed, failed or expired).
	ErrEnvelopeClosed = errors.New("envelope not accepting signatures")

	// ErrWorkflowClosed is returned when the workflow is expired,
	// cancelled or completed.
	ErrWorkflowClosed = errors.New("workflow not accepting signatures")

	// ErrNotFound is returned for missing workflows, recipients or
	// signed documents.
	ErrNotFound = errors.New("not found")

	// ErrBlobUnavailable wraps blob store failures. Fatal for the
	// submission, retryable by the caller; no state is recorded without
	// a confirmed stored version.
	ErrBlobUnavailable = errors.New("blob store unavailable")
)
