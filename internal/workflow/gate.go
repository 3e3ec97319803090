package workflow

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
)

// SigningOrder returns the recipients who still need to sign, ordered by
// (RolePriority, RecipientID) ascending. Copy-only recipients never
// appear: they neither sign nor gate anyone.
func SigningOrder(s Snapshot) []Recipient {
	ordered := make([]Recipient, 0, len(s.Recipients))
	for _, r := range s.Recipients {
		if r.Delivery == DeliveryNeedsToSign {
			ordered = append(ordered, r)
		}
	}
	sortByPriority(ordered)
	return ordered
}

// PendingRecipients returns the signing-required recipients who have not
// signed yet, in gate order.
func PendingRecipients(s Snapshot) []Recipient {
	var pending []Recipient
	for _, r := range SigningOrder(s) {
		if !s.SignedBy(r.ID) {
			pending = append(pending, r)
		}
	}
	return pending
}

// CanSign decides whether the recipient may submit a signature against
// this snapshot. The error identifies why not: ErrAlreadySigned for the
// idempotent case, ErrOutOfTurn when sequential signing gates them,
// ErrEnvelopeClosed when the envelope is not open.
func CanSign(s Snapshot, recipientID uuid.UUID) error {
	r, ok := s.Recipient(recipientID)
	if !ok {
		return ErrNotFound
	}
	if r.Delivery != DeliveryNeedsToSign {
		return ErrEnvelopeClosed
	}
	if s.SignedBy(r.ID) {
		return ErrAlreadySigned
	}
	if s.Envelope.Status != EnvelopeInProgress {
		return ErrEnvelopeClosed
	}
	if !s.Workflow.Sequential {
		return nil
	}
	for _, other := range SigningOrder(s) {
		if other.ID == r.ID {
			return nil
		}
		if !s.SignedBy(other.ID) {
			return ErrOutOfTurn
		}
	}
	return ErrNotFound
}

// AllSigned reports whether every signing-required recipient has signed.
func AllSigned(s Snapshot) bool {
	for _, r := range SigningOrder(s) {
		if !s.SignedBy(r.ID) {
			return false
		}
	}
	return true
}

func sortByPriority(rs []Recipient) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].RolePriority != rs[j].RolePriority {
			return rs[i].RolePriority < rs[j].RolePriority
		}
		return bytes.Compare(rs[i].ID[:], rs[j].ID[:]) < 0
	})
}
